package integration

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func buildBinary() string {
	binaryPath := filepath.Join(GinkgoT().TempDir(), "genesis-test")

	cmd := exec.Command("go", "build", "-o", binaryPath, "..")
	output, err := cmd.CombinedOutput()
	Expect(err).ToNot(HaveOccurred(), "build output: %s", output)
	return binaryPath
}

func freeAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())
	defer l.Close()
	return l.Addr().String()
}

var _ = Describe("CLI Integration Tests", func() {
	var (
		binaryPath string
		workDir    string
		baseURL    string
	)

	BeforeEach(func() {
		skipUnlessEnabled()

		binaryPath = buildBinary()
		workDir = GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(workDir, ".genesis"), 0755)).To(Succeed())

		addr := freeAddr()
		baseURL = "http://" + addr

		ctx, cancel := context.WithCancel(context.Background())
		server := exec.CommandContext(ctx, binaryPath, "devserver", "--addr", addr)
		server.Dir = workDir
		Expect(server.Start()).To(Succeed())
		DeferCleanup(func() {
			cancel()
			server.Wait()
		})

		Eventually(func() error {
			resp, err := http.Get(baseURL + "/api/models")
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		}, 10*time.Second, 100*time.Millisecond).Should(Succeed())
	})

	run := func(args ...string) string {
		args = append(args, "--backend", baseURL)
		cmd := exec.Command(binaryPath, args...)
		cmd.Dir = workDir
		output, err := cmd.CombinedOutput()
		Expect(err).ToNot(HaveOccurred(), "output: %s", output)
		return string(output)
	}

	It("should send a prompt and list the stored chat", func() {
		Expect(run("send", "-p", "hola desde la terminal")).To(ContainSubstring("Recibido: hola desde la terminal"))
		Expect(run("chats", "list")).To(ContainSubstring("hola desde la terminal"))
	})

	It("should list the emulator models", func() {
		output := run("models")
		Expect(output).To(ContainSubstring("Auto"))
		Expect(output).To(ContainSubstring("llama3.2-vision:11b"))
	})

	It("should answer diagram requests in two steps", func() {
		output := run("send", "-p", "genera un diagrama UML de un pedido", "--model", "Auto")
		Expect(output).To(ContainSubstring("Paso 2"))
		Expect(output).To(ContainSubstring("class Pedido"))
	})
})
