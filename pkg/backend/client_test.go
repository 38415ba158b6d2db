package backend_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/killallgit/genesis/pkg/backend"
	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/devserver"
	"github.com/killallgit/genesis/pkg/store"
	"github.com/killallgit/genesis/pkg/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		srv    *devserver.Server
		server *httptest.Server
		client *backend.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		srv = devserver.New(devserver.WithModels("qwen2.5-coder:14b", "llava:7b"))
		server = httptest.NewServer(srv.Handler())
		client = backend.NewClient(server.URL + "/")
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("GenerateStream", func() {
		It("should send the turn as multipart form data", func() {
			body, err := client.GenerateStream(ctx, backend.GenerateRequest{
				Model:    "qwen2.5-coder:14b",
				Prompt:   "hola",
				Messages: []chat.HistoryEntry{{Role: "user", Content: "hola"}},
				AutoMode: true,
				Images:   []chat.Attachment{{Name: "foto.png", ContentType: "image/png", Data: []byte{1, 2}}, {Data: []byte{3}}},
			})
			Expect(err).ToNot(HaveOccurred())
			defer body.Close()

			data, err := io.ReadAll(body)
			Expect(err).ToNot(HaveOccurred())
			events := stream.Decode(data)
			Expect(events[len(events)-1]).To(Equal(stream.Done()))

			calls := srv.Calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Model).To(Equal("qwen2.5-coder:14b"))
			Expect(calls[0].AutoMode).To(BeTrue())
			Expect(calls[0].Messages).To(Equal([]chat.HistoryEntry{{Role: "user", Content: "hola"}}))
			Expect(calls[0].Images).To(Equal([]string{"foto.png", "image_2"}))
		})

		It("should send an empty history as a JSON array", func() {
			body, err := client.GenerateStream(ctx, backend.GenerateRequest{Model: "m", Prompt: "x"})
			Expect(err).ToNot(HaveOccurred())
			body.Close()

			calls := srv.Calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Messages).To(BeEmpty())
			Expect(calls[0].AutoMode).To(BeFalse())
		})

		It("should return a StatusError for rejected calls", func() {
			server.Close()
			srv = devserver.New(devserver.WithResponder(devserver.ResponderFunc(func(devserver.Call) devserver.Reply {
				return devserver.StatusReply(http.StatusBadGateway, "upstream down")
			})))
			server = httptest.NewServer(srv.Handler())
			client = backend.NewClient(server.URL)

			_, err := client.GenerateStream(ctx, backend.GenerateRequest{Model: "m", Prompt: "x"})
			var statusErr *backend.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Code).To(Equal(http.StatusBadGateway))
			Expect(statusErr.Body).To(Equal("upstream down"))
		})

		It("should attach the bearer token when configured", func() {
			var auth string
			tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
				w.Write([]byte(stream.EncodeDone()))
			}))
			defer tokenServer.Close()

			body, err := backend.NewClient(tokenServer.URL, backend.WithToken("secreto")).
				GenerateStream(ctx, backend.GenerateRequest{Model: "m"})
			Expect(err).ToNot(HaveOccurred())
			body.Close()
			Expect(auth).To(Equal("Bearer secreto"))
		})
	})

	Describe("ListModels", func() {
		It("should return the backend models", func() {
			models, err := client.ListModels(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(backend.ModelNames("Auto", models)).To(Equal([]string{"Auto", "qwen2.5-coder:14b", "llava:7b"}))
		})
	})

	Describe("CheckHealth", func() {
		It("should report an available backend", func() {
			health := client.CheckHealth(ctx)
			Expect(health.Available).To(BeTrue())
			Expect(health.Error).ToNot(HaveOccurred())
			Expect(health.Models).To(HaveLen(2))
		})

		It("should report connection failures", func() {
			health := backend.NewClient("http://127.0.0.1:1").CheckHealth(ctx)
			Expect(health.Available).To(BeFalse())
			Expect(health.Error).To(HaveOccurred())
		})
	})

	Describe("ChatStore", func() {
		var chats *backend.ChatStore

		BeforeEach(func() {
			chats = backend.NewChatStore(client)
		})

		It("should round trip chats, messages and codes over REST", func() {
			c, err := chats.CreateChat(ctx, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Title).To(Equal(store.DefaultChatTitle))

			msg, err := chats.CreateMessage(ctx, c.ID, store.NewMessage{
				Role:          "assistant",
				Content:       "A\n\n[STEP_SEPARATOR]\n\nB",
				IsCollapsible: true,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(msg.ID).ToNot(BeEmpty())

			code, err := chats.CreateCode(ctx, msg.ID, store.NewCode{Language: "go", Content: "x", Name: "main"})
			Expect(err).ToNot(HaveOccurred())
			Expect(code.MessageID).To(Equal(msg.ID))

			renamed, err := chats.UpdateChatTitle(ctx, c.ID, "Pedidos")
			Expect(err).ToNot(HaveOccurred())
			Expect(renamed.Title).To(Equal("Pedidos"))

			pinned, err := chats.SetPinned(ctx, c.ID, true)
			Expect(err).ToNot(HaveOccurred())
			Expect(pinned.Pinned).To(BeTrue())

			got, err := chats.GetChat(ctx, c.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Messages).To(HaveLen(1))
			Expect(got.Messages[0].IsCollapsible).To(BeTrue())
			Expect(got.Messages[0].GeneratedCodes).To(HaveLen(1))

			messages, err := chats.ListMessages(ctx, c.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(messages).To(HaveLen(1))

			list, err := chats.ListChats(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(list).To(HaveLen(1))

			Expect(chats.DeleteChat(ctx, c.ID)).To(Succeed())
			list, err = chats.ListChats(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(list).To(BeEmpty())
		})

		It("should map 404 answers onto store.ErrNotFound", func() {
			_, err := chats.GetChat(ctx, "missing")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())

			var statusErr *backend.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Body).To(Equal("Chat no encontrado"))
		})
	})
})
