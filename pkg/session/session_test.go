package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/genesis/pkg/backend"
	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/devserver"
	"github.com/killallgit/genesis/pkg/session"
	"github.com/killallgit/genesis/pkg/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// brokenChats fails every chat creation
type brokenChats struct {
	store.Store
}

func (brokenChats) CreateChat(context.Context, string) (*store.Chat, error) {
	return nil, errors.New("store down")
}

func isTitlePrompt(call devserver.Call) bool {
	return strings.HasPrefix(call.Prompt, "Resume la siguiente petición")
}

var _ = Describe("Session", func() {
	var (
		ctx       context.Context
		mu        sync.Mutex
		respond   func(devserver.Call) devserver.Reply
		srv       *devserver.Server
		server    *httptest.Server
		client    *backend.Client
		sess      *session.Session
		persisted store.Store
	)

	setResponder := func(f func(devserver.Call) devserver.Reply) {
		mu.Lock()
		defer mu.Unlock()
		respond = f
	}

	mainCalls := func() []devserver.Call {
		var calls []devserver.Call
		for _, call := range srv.Calls() {
			if !isTitlePrompt(call) {
				calls = append(calls, call)
			}
		}
		return calls
	}

	titleCalls := func() []devserver.Call {
		var calls []devserver.Call
		for _, call := range srv.Calls() {
			if isTitlePrompt(call) {
				calls = append(calls, call)
			}
		}
		return calls
	}

	storedChat := func() *store.Chat {
		chats, err := persisted.ListChats(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(chats).To(HaveLen(1))
		c, err := persisted.GetChat(ctx, chats[0].ID)
		Expect(err).ToNot(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		setResponder(devserver.EchoResponder{}.Respond)

		persisted = store.NewMemory()
		srv = devserver.New(
			devserver.WithStore(persisted),
			devserver.WithResponder(devserver.ResponderFunc(func(call devserver.Call) devserver.Reply {
				mu.Lock()
				f := respond
				mu.Unlock()
				return f(call)
			})),
		)
		server = httptest.NewServer(srv.Handler())
		client = backend.NewClient(server.URL)
		sess = session.New(client, backend.NewChatStore(client), config.Defaults())
	})

	AfterEach(func() {
		sess.WaitTitle()
		server.Close()
	})

	Describe("SubmitTurn", func() {
		It("should stream a single-phase reply and persist the turn", func() {
			Expect(sess.SubmitTurn(ctx, "  hola  ", nil, "")).To(Succeed())

			messages := sess.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Role).To(Equal(chat.RoleUser))
			Expect(messages[0].Content).To(Equal("  hola  "))
			Expect(messages[1].Content).To(Equal("Recibido: hola"))
			Expect(messages[1].IsLoading).To(BeFalse())
			Expect(messages[1].IsStreaming).To(BeFalse())
			Expect(messages[1].ServerID).ToNot(BeEmpty())
			Expect(sess.IsBusy()).To(BeFalse())

			calls := mainCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Model).To(Equal("qwen2.5-coder:14b"))
			Expect(calls[0].AutoMode).To(BeTrue())
			Expect(calls[0].Prompt).To(Equal("  hola  "))
			Expect(calls[0].Messages).To(Equal([]chat.HistoryEntry{{Role: "user", Content: "  hola  "}}))

			sess.WaitTitle()
			c := storedChat()
			Expect(c.ID).To(Equal(sess.ChatID()))
			Expect(c.Title).To(Equal("hola"))
			Expect(c.Messages).To(HaveLen(2))
			Expect(c.Messages[1].Content).To(Equal("Recibido: hola"))
			Expect(c.Messages[1].IsCollapsible).To(BeFalse())
		})

		It("should send the earlier conversation as history", func() {
			Expect(sess.SubmitTurn(ctx, "uno", nil, "mistral:7b")).To(Succeed())
			Expect(sess.SubmitTurn(ctx, "dos", nil, "mistral:7b")).To(Succeed())

			calls := mainCalls()
			Expect(calls).To(HaveLen(2))
			Expect(calls[1].Model).To(Equal("mistral:7b"))
			Expect(calls[1].AutoMode).To(BeFalse())
			Expect(calls[1].Messages).To(Equal([]chat.HistoryEntry{
				{Role: "user", Content: "uno"},
				{Role: "assistant", Content: "Recibido: uno"},
				{Role: "user", Content: "dos"},
			}))

			sess.WaitTitle()
			Expect(storedChat().Messages).To(HaveLen(4))
		})

		It("should still stream the reply when the chat cannot be created", func() {
			broken := session.New(client, brokenChats{Store: persisted}, config.Defaults())

			Expect(broken.SubmitTurn(ctx, "hola", nil, "")).To(Succeed())
			broken.WaitTitle()

			messages := broken.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[1].IsError).To(BeFalse())
			Expect(messages[1].Content).To(Equal("Recibido: hola"))
			Expect(broken.ChatID()).To(BeEmpty())
			Expect(mainCalls()).To(HaveLen(1))
			Expect(titleCalls()).To(BeEmpty())

			chats, err := persisted.ListChats(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(chats).To(BeEmpty())
		})

		It("should reject empty turns", func() {
			Expect(sess.SubmitTurn(ctx, "   ", nil, "")).To(MatchError(session.ErrEmptyTurn))
			Expect(srv.Calls()).To(BeEmpty())
		})

		It("should only send attachments to capable models", func() {
			image := chat.Attachment{Name: "foto.png", ContentType: "image/png", Data: []byte("png")}

			Expect(sess.SubmitTurn(ctx, "describe", []chat.Attachment{image}, "mistral:7b")).To(Succeed())
			Expect(sess.SubmitTurn(ctx, "describe", []chat.Attachment{image}, "llama3.2-vision:11b")).To(Succeed())

			calls := mainCalls()
			Expect(calls).To(HaveLen(2))
			Expect(calls[0].Images).To(BeEmpty())
			Expect(calls[1].Images).To(Equal([]string{"foto.png"}))
			Expect(sess.Messages()[0].Images).To(BeEmpty())
			Expect(sess.Messages()[2].Images).To(HaveLen(1))
		})

		It("should assemble and persist a two-step reply", func() {
			setResponder(func(call devserver.Call) devserver.Reply {
				if isTitlePrompt(call) {
					return devserver.TextReply("Diagrama")
				}
				r := devserver.TwoStepReply([]string{"```mermaid\n", "graph TD\n```"}, []string{"```python\n", "class A:\n    pass\n```"})
				r.ChunkSize = 5
				return r
			})

			Expect(sess.SubmitTurn(ctx, "diagrama", nil, "")).To(Succeed())

			reply := sess.Messages()[1]
			Expect(reply.IsTwoStep).To(BeTrue())
			Expect(reply.CurrentStep).To(Equal(chat.Step2))
			Expect(reply.Step1Text).To(Equal("```mermaid\ngraph TD\n```"))
			Expect(reply.Step2Text).To(Equal("```python\nclass A:\n    pass\n```"))
			Expect(reply.Content).To(Equal(reply.Step2Text))

			groups := sess.CodeRequests()
			Expect(groups).To(HaveLen(1))
			Expect(groups[0].Codes).To(HaveLen(1))
			Expect(groups[0].Codes[0].Language).To(Equal("python"))
			Expect(groups[0].Codes[0].Name).To(Equal("A"))

			sess.WaitTitle()
			stored := storedChat().Messages[1]
			Expect(stored.IsCollapsible).To(BeTrue())
			Expect(stored.Content).To(Equal(reply.Step1Text + chat.StepSeparator + reply.Step2Text))
			Expect(stored.GeneratedCodes).To(HaveLen(1))
			Expect(stored.GeneratedCodes[0].Name).To(Equal("A"))
		})

		It("should turn the no-diagram signal into a persisted error message", func() {
			setResponder(func(call devserver.Call) devserver.Reply {
				if isTitlePrompt(call) {
					return devserver.TextReply("x")
				}
				r := devserver.ErrorReply("No diagram detected in the request")
				r.Lines = append([]string{`data: "[STEP1_START]"` + "\n", `data: "partial"` + "\n"}, r.Lines...)
				return r
			})

			Expect(sess.SubmitTurn(ctx, "algo", nil, "")).To(Succeed())

			reply := sess.Messages()[1]
			Expect(reply.IsError).To(BeTrue())
			Expect(reply.IsTwoStep).To(BeFalse())
			Expect(reply.Step1Text).To(BeEmpty())
			Expect(reply.Content).To(Equal("No diagram detected in the request"))

			sess.WaitTitle()
			stored := storedChat().Messages[1]
			Expect(stored.IsError).To(BeTrue())
			Expect(stored.IsCollapsible).To(BeFalse())
		})

		It("should replace the reply with the turn error on a hard stream error", func() {
			setResponder(func(devserver.Call) devserver.Reply {
				return devserver.ErrorReply("model crashed", "parcial")
			})

			err := sess.SubmitTurn(ctx, "hola", nil, "")
			var streamErr *chat.StreamError
			Expect(errors.As(err, &streamErr)).To(BeTrue())
			Expect(streamErr.Message).To(Equal("model crashed"))

			messages := sess.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Content).To(Equal("hola"))
			Expect(messages[1].IsError).To(BeTrue())
			Expect(messages[1].Content).To(Equal(config.DefaultTurnError))

			Expect(storedChat().Messages).To(BeEmpty())
			Expect(titleCalls()).To(BeEmpty())
		})

		It("should replace the reply with the turn error when the backend rejects the call", func() {
			setResponder(func(devserver.Call) devserver.Reply {
				return devserver.StatusReply(http.StatusInternalServerError, "boom")
			})

			err := sess.SubmitTurn(ctx, "hola", nil, "")
			var statusErr *backend.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(sess.Messages()[1].Content).To(Equal(config.DefaultTurnError))
			Expect(sess.IsBusy()).To(BeFalse())
		})

		It("should reject a second turn while one is in flight", func() {
			setResponder(func(devserver.Call) devserver.Reply {
				r := devserver.TextReply("a", "b", "c", "d", "e")
				r.Delay = 40 * time.Millisecond
				return r
			})

			done := make(chan error, 1)
			go func() {
				done <- sess.SubmitTurn(ctx, "lento", nil, "")
			}()

			Eventually(sess.IsBusy).Should(BeTrue())
			Expect(sess.SubmitTurn(ctx, "otro", nil, "")).To(MatchError(session.ErrBusy))
			Expect(sess.NewChat()).To(MatchError(session.ErrBusy))
			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
			Expect(sess.Messages()[1].Content).To(Equal("abcde"))
		})

		It("should leave a cancelled reply partial and unsaved", func() {
			setResponder(func(devserver.Call) devserver.Reply {
				r := devserver.TextReply(strings.Split(strings.Repeat("x", 50), "")...)
				r.Delay = 20 * time.Millisecond
				return r
			})

			turnCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
			defer cancel()

			err := sess.SubmitTurn(turnCtx, "cancela", nil, "")
			Expect(err).To(MatchError(context.DeadlineExceeded))

			messages := sess.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[1].IsError).To(BeFalse())
			Expect(len(messages[1].Content)).To(BeNumerically("<", 50))
			Expect(sess.IsBusy()).To(BeFalse())
			Expect(storedChat().Messages).To(BeEmpty())
		})

		It("should publish updates while the reply streams", func() {
			updates, unsubscribe := sess.Subscribe()
			defer unsubscribe()

			Expect(sess.SubmitTurn(ctx, "hola mundo", nil, "")).To(Succeed())
			sess.WaitTitle()

			var kinds []session.UpdateKind
			var last session.Update
		drain:
			for {
				select {
				case u := <-updates:
					kinds = append(kinds, u.Kind)
					if u.Kind == session.MessagesChanged {
						last = u
					}
				default:
					break drain
				}
			}

			Expect(kinds[0]).To(Equal(session.BusyChanged))
			Expect(kinds).To(ContainElement(session.ChatsChanged))
			Expect(kinds).To(ContainElement(session.TitleChanged))
			Expect(last.Messages).To(HaveLen(2))
			Expect(last.Messages[1].Content).To(Equal("Recibido: hola mundo"))
		})
	})

	Describe("title generation", func() {
		It("should use a request of exactly four words as the title without asking the model", func() {
			Expect(sess.SubmitTurn(ctx, " crea una clase Pedido ", nil, "")).To(Succeed())
			sess.WaitTitle()

			Expect(titleCalls()).To(BeEmpty())
			Expect(storedChat().Title).To(Equal("crea una clase Pedido"))
			Expect(sess.Title()).To(Equal("crea una clase Pedido"))
		})

		It("should ask the model to summarize longer requests", func() {
			setResponder(func(call devserver.Call) devserver.Reply {
				if isTitlePrompt(call) {
					return devserver.TextReply(`"Clase`, ` Pedido`, ` con`, ` Métodos`, ` Extra"`)
				}
				return devserver.TextReply("ok")
			})

			Expect(sess.SubmitTurn(ctx, "crea una clase Pedido con métodos", nil, "mistral:7b")).To(Succeed())
			sess.WaitTitle()

			calls := titleCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Model).To(Equal("mistral:7b"))
			Expect(calls[0].AutoMode).To(BeFalse())
			Expect(calls[0].Messages).To(BeEmpty())
			Expect(calls[0].Prompt).To(ContainSubstring(`"crea una clase Pedido con métodos"`))
			Expect(storedChat().Title).To(Equal("Clase Pedido con Métodos"))
		})

		It("should fall back to the first four words when the model call fails", func() {
			setResponder(func(call devserver.Call) devserver.Reply {
				if isTitlePrompt(call) {
					return devserver.StatusReply(http.StatusBadGateway, "no")
				}
				return devserver.TextReply("ok")
			})

			Expect(sess.SubmitTurn(ctx, "crea una clase Pedido con métodos", nil, "")).To(Succeed())
			sess.WaitTitle()

			Expect(titleCalls()).To(HaveLen(1))
			Expect(storedChat().Title).To(Equal("crea una clase Pedido"))
		})

		It("should only name the chat on its first turn", func() {
			Expect(sess.SubmitTurn(ctx, "primero", nil, "")).To(Succeed())
			sess.WaitTitle()
			Expect(sess.SubmitTurn(ctx, "segundo turno con muchas palabras aquí", nil, "")).To(Succeed())
			sess.WaitTitle()

			Expect(titleCalls()).To(BeEmpty())
			Expect(storedChat().Title).To(Equal("primero"))
		})
	})

	Describe("LoadChat", func() {
		It("should restore a stored conversation", func() {
			c, err := persisted.CreateChat(ctx, "Guardado")
			Expect(err).ToNot(HaveOccurred())
			_, err = persisted.CreateMessage(ctx, c.ID, store.NewMessage{Role: "user", Content: "diagrama", Images: []string{"a.png"}})
			Expect(err).ToNot(HaveOccurred())
			_, err = persisted.CreateMessage(ctx, c.ID, store.NewMessage{
				Role:          "assistant",
				Content:       "A\n\n[STEP_SEPARATOR]\n\nB",
				IsCollapsible: true,
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(sess.LoadChat(ctx, c.ID)).To(Succeed())
			Expect(sess.ChatID()).To(Equal(c.ID))
			Expect(sess.Title()).To(Equal("Guardado"))

			messages := sess.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Images).To(Equal([]chat.Attachment{{Name: "a.png"}}))
			Expect(messages[1].Step1Text).To(Equal("A"))
			Expect(messages[1].Step2Text).To(Equal("B"))
			Expect(messages[1].CurrentStep).To(Equal(chat.Step2))
			Expect(messages[1].Content).To(Equal("B"))

			Expect(sess.SubmitTurn(ctx, "sigue", nil, "")).To(Succeed())
			sess.WaitTitle()
			Expect(titleCalls()).To(BeEmpty())
			got, err := persisted.GetChat(ctx, c.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Messages).To(HaveLen(4))
			Expect(mainCalls()[0].Messages[1]).To(Equal(chat.HistoryEntry{Role: "assistant", Content: "B"}))
		})

		It("should show the load error when the chat cannot be read", func() {
			err := sess.LoadChat(ctx, "missing")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())

			messages := sess.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].IsError).To(BeTrue())
			Expect(messages[0].Content).To(Equal(config.DefaultLoadError))
		})
	})

	Describe("NewChat", func() {
		It("should start over with a fresh stored chat", func() {
			Expect(sess.SubmitTurn(ctx, "uno", nil, "")).To(Succeed())
			sess.WaitTitle()
			first := sess.ChatID()

			Expect(sess.NewChat()).To(Succeed())
			Expect(sess.Messages()).To(BeEmpty())
			Expect(sess.ChatID()).To(BeEmpty())

			Expect(sess.SubmitTurn(ctx, "dos", nil, "")).To(Succeed())
			Expect(sess.ChatID()).ToNot(Equal(first))
			Expect(mainCalls()[1].Messages).To(HaveLen(1))
		})
	})

	Describe("anonymous mode", func() {
		It("should run turns without a store", func() {
			anon := session.New(client, nil, nil)

			Expect(anon.SubmitTurn(ctx, "una petición bastante larga para titular", nil, "")).To(Succeed())
			anon.WaitTitle()

			Expect(anon.ChatID()).To(BeEmpty())
			Expect(anon.Messages()).To(HaveLen(2))
			Expect(titleCalls()).To(BeEmpty())
			Expect(anon.LoadChat(ctx, "x")).To(MatchError(session.ErrNoStore))

			chats, err := persisted.ListChats(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(chats).To(BeEmpty())
		})
	})
})
