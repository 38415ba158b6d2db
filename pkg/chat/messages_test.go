package chat_test

import (
	"time"

	"github.com/killallgit/genesis/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Messages", func() {
	Describe("NewUserMessage", func() {
		It("should keep the content as typed", func() {
			msg := chat.NewUserMessage("  Hello World  ")

			Expect(msg.Role).To(Equal(chat.RoleUser))
			Expect(msg.Content).To(Equal("  Hello World  "))
			Expect(msg.ID).NotTo(BeEmpty())
			Expect(msg.Timestamp).To(BeTemporally("~", time.Now(), time.Second))
		})

		It("should keep attachments", func() {
			msg := chat.NewUserMessage("look", chat.Attachment{Name: "a.png"})
			Expect(msg.Images).To(HaveLen(1))
		})

		It("should handle empty content", func() {
			msg := chat.NewUserMessage("   ")
			Expect(msg.IsEmpty()).To(BeTrue())
		})
	})

	Describe("NewPlaceholder", func() {
		It("should create a loading assistant message", func() {
			msg := chat.NewPlaceholder()

			Expect(msg.IsAssistant()).To(BeTrue())
			Expect(msg.IsLoading).To(BeTrue())
			Expect(msg.IsStreaming).To(BeTrue())
			Expect(msg.Content).To(BeEmpty())
		})
	})

	Describe("FinalText", func() {
		It("should be empty for errors", func() {
			Expect(chat.NewErrorMessage("boom").FinalText()).To(BeEmpty())
		})

		It("should use the second phase of a two-step message", func() {
			msg := chat.Message{IsTwoStep: true, CurrentStep: chat.Step2, Step1Text: "plan", Step2Text: "final", Content: "final"}
			Expect(msg.FinalText()).To(Equal("final"))
		})

		It("should be empty while the first phase is still streaming", func() {
			msg := chat.Message{IsTwoStep: true, CurrentStep: chat.Step1, Step1Text: "```go\nx\n```", Content: "```go\nx\n```", IsStreaming: true}
			Expect(msg.IsPartial()).To(BeTrue())
			Expect(msg.FinalText()).To(BeEmpty())
		})

		It("should use the content of a recovered single-phase message", func() {
			msg := chat.Message{IsTwoStep: true, CurrentStep: chat.Step1, Step1Text: "only", Content: "only"}
			Expect(msg.FinalText()).To(Equal("only"))
		})
	})

	Describe("History", func() {
		It("should skip errors and placeholders", func() {
			messages := []chat.Message{
				chat.NewUserMessage("hi"),
				chat.NewAssistantMessage("hello"),
				chat.NewUserMessage("again"),
				chat.NewErrorMessage("failed"),
				chat.NewPlaceholder(),
			}

			Expect(chat.History(messages)).To(Equal([]chat.HistoryEntry{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello"},
				{Role: "user", Content: "again"},
			}))
		})
	})

	Describe("CloneAll", func() {
		It("should not share attachment slices", func() {
			original := []chat.Message{chat.NewUserMessage("x", chat.Attachment{Name: "a"})}
			copied := chat.CloneAll(original)
			copied[0].Images[0].Name = "b"

			Expect(original[0].Images[0].Name).To(Equal("a"))
		})
	})

	Describe("Words", func() {
		It("should count and truncate on whitespace", func() {
			Expect(chat.WordCount("  uno  dos\ttres\ncuatro ")).To(Equal(4))
			Expect(chat.FirstWords("uno dos  tres cuatro cinco", 4)).To(Equal("uno dos tres cuatro"))
			Expect(chat.FirstWords("uno", 4)).To(Equal("uno"))
		})

		It("should find the last user message", func() {
			messages := []chat.Message{chat.NewUserMessage("a"), chat.NewAssistantMessage("b"), chat.NewUserMessage("c")}
			last, ok := chat.GetLastUserMessage(messages)
			Expect(ok).To(BeTrue())
			Expect(last.Content).To(Equal("c"))

			_, ok = chat.GetLastUserMessage(nil)
			Expect(ok).To(BeFalse())
		})
	})
})
