package chat_test

import (
	"errors"
	"strings"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const sentinel = "No diagram detected"

func tokens(s string, size int) []stream.Event {
	var events []stream.Event
	runes := []rune(s)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		events = append(events, stream.Token(string(runes[i:end])))
	}
	return events
}

func twoStepEvents(step1, step2 string, size int) []stream.Event {
	events := []stream.Event{stream.PhaseMarker(stream.MarkerStep1Start)}
	events = append(events, tokens(step1, size)...)
	events = append(events, stream.PhaseMarker(stream.MarkerStep1End), stream.PhaseMarker(stream.MarkerStep2Start))
	events = append(events, tokens(step2, size)...)
	return append(events, stream.Done())
}

var _ = Describe("Assembler", func() {
	var asm *chat.Assembler

	BeforeEach(func() {
		asm = chat.NewAssembler(chat.NewPlaceholder(), sentinel)
	})

	Context("single phase responses", func() {
		It("should concatenate tokens into the content", func() {
			Expect(asm.ApplyAll(tokens("Hola mundo", 3))).To(Succeed())
			Expect(asm.Message().Content).To(Equal("Hola mundo"))
			Expect(asm.Message().IsLoading).To(BeFalse())

			Expect(asm.Apply(stream.Done())).To(Succeed())
			msg := asm.Message()
			Expect(msg.IsTwoStep).To(BeFalse())
			Expect(msg.IsStreaming).To(BeFalse())
			Expect(asm.Finalized()).To(BeTrue())
		})

		It("should reject events after done", func() {
			Expect(asm.Apply(stream.Done())).To(Succeed())
			Expect(errors.Is(asm.Apply(stream.Token("late")), chat.ErrFinalized)).To(BeTrue())
		})

		It("should stay loading until the first token", func() {
			Expect(asm.Apply(stream.PhaseMarker(stream.MarkerStep1Start))).To(Succeed())
			Expect(asm.Message().IsLoading).To(BeTrue())
		})
	})

	Context("two-step responses", func() {
		It("should route tokens into each phase", func() {
			Expect(asm.Apply(stream.PhaseMarker(stream.MarkerStep1Start))).To(Succeed())
			Expect(asm.ApplyAll(tokens("plan", 1))).To(Succeed())

			msg := asm.Message()
			Expect(msg.IsTwoStep).To(BeTrue())
			Expect(msg.CurrentStep).To(Equal(chat.Step1))
			Expect(msg.Step1Text).To(Equal("plan"))
			Expect(msg.Content).To(Equal("plan"))
			Expect(msg.IsPartial()).To(BeTrue())

			Expect(asm.Apply(stream.PhaseMarker(stream.MarkerStep1End))).To(Succeed())
			Expect(asm.State()).To(Equal(chat.StatePhase1Done))
			Expect(asm.Message().Content).To(Equal("plan"))

			Expect(asm.Apply(stream.PhaseMarker(stream.MarkerStep2Start))).To(Succeed())
			Expect(asm.ApplyAll(tokens("answer", 2))).To(Succeed())
			msg = asm.Message()
			Expect(msg.CurrentStep).To(Equal(chat.Step2))
			Expect(msg.Step1Text).To(Equal("plan"))
			Expect(msg.Step2Text).To(Equal("answer"))
			Expect(msg.Content).To(Equal("answer"))

			final := asm.Finalize()
			Expect(final.Content).To(Equal("answer"))
			Expect(final.Step1Text).To(Equal("plan"))
		})

		It("should give the same result regardless of token granularity", func() {
			step1 := "Diagrama: ```mermaid\ngraph TD; A-->B\n``` listo"
			step2 := "Explicación con ñ y 🚀 ```go\nfunc main() {}\n```"

			var results []chat.Message
			for _, size := range []int{1, 2, 5, 1000} {
				a := chat.NewAssembler(chat.NewPlaceholder(), sentinel)
				Expect(a.ApplyAll(twoStepEvents(step1, step2, size))).To(Succeed())
				results = append(results, a.Message())
			}

			for _, msg := range results {
				Expect(msg.Step1Text).To(Equal(step1))
				Expect(msg.Step2Text).To(Equal(step2))
				Expect(msg.Content).To(Equal(step2))
			}
		})

		It("should not touch the frozen first phase after phase two starts", func() {
			Expect(asm.ApplyAll(twoStepEvents("first", "second", 3))).NotTo(HaveOccurred())
			Expect(asm.Message().Step1Text).To(Equal("first"))
		})

		It("should ignore markers that move backwards", func() {
			Expect(asm.ApplyAll([]stream.Event{
				stream.PhaseMarker(stream.MarkerStep1Start),
				stream.Token("a"),
				stream.PhaseMarker(stream.MarkerStep2Start),
				stream.Token("b"),
				stream.PhaseMarker(stream.MarkerStep1Start),
				stream.PhaseMarker(stream.MarkerStep1End),
				stream.Token("c"),
			})).To(Succeed())

			msg := asm.Message()
			Expect(msg.Step1Text).To(Equal("a"))
			Expect(msg.Step2Text).To(Equal("bc"))
			Expect(asm.State()).To(Equal(chat.StatePhase2))
		})

		It("should close phase one implicitly when phase two starts", func() {
			Expect(asm.ApplyAll([]stream.Event{
				stream.PhaseMarker(stream.MarkerStep1Start),
				stream.Token("plan"),
				stream.PhaseMarker(stream.MarkerStep2Start),
				stream.Token("done"),
			})).To(Succeed())

			msg := asm.Message()
			Expect(msg.Step1Text).To(Equal("plan"))
			Expect(msg.Step2Text).To(Equal("done"))
		})

		It("should carry tokens sent between the phases into phase two", func() {
			Expect(asm.ApplyAll([]stream.Event{
				stream.PhaseMarker(stream.MarkerStep1Start),
				stream.Token("plan"),
				stream.PhaseMarker(stream.MarkerStep1End),
				stream.Token("pre-"),
			})).To(Succeed())
			Expect(asm.Message().Content).To(Equal("plan"))

			Expect(asm.ApplyAll([]stream.Event{stream.PhaseMarker(stream.MarkerStep2Start), stream.Token("answer")})).To(Succeed())
			Expect(asm.Message().Step2Text).To(Equal("pre-answer"))
		})

		It("should promote tokens after phase one to phase two when the stream ends", func() {
			Expect(asm.ApplyAll([]stream.Event{
				stream.PhaseMarker(stream.MarkerStep1Start),
				stream.Token("plan"),
				stream.PhaseMarker(stream.MarkerStep1End),
				stream.Token("tail"),
			})).To(Succeed())

			msg := asm.Finalize()
			Expect(msg.CurrentStep).To(Equal(chat.Step2))
			Expect(msg.Step2Text).To(Equal("tail"))
			Expect(msg.Content).To(Equal("tail"))
		})
	})

	Context("error signals", func() {
		It("should replace the message when the no-diagram sentinel arrives", func() {
			placeholder := chat.NewPlaceholder()
			a := chat.NewAssembler(placeholder, sentinel)

			Expect(a.ApplyAll([]stream.Event{
				stream.PhaseMarker(stream.MarkerStep1Start),
				stream.Token("partial plan"),
				stream.PhaseMarker(stream.MarkerStep1End),
				stream.ErrorSignal("Error: " + sentinel + " in image"),
			})).To(Succeed())

			msg := a.Message()
			Expect(msg.ID).To(Equal(placeholder.ID))
			Expect(msg.IsError).To(BeTrue())
			Expect(msg.IsTwoStep).To(BeFalse())
			Expect(msg.Step1Text).To(BeEmpty())
			Expect(msg.Step2Text).To(BeEmpty())
			Expect(msg.CurrentStep).To(Equal(chat.StepNone))
			Expect(msg.Content).To(ContainSubstring(sentinel))
			Expect(a.Finalized()).To(BeTrue())
		})

		It("should return a stream error for any other signal", func() {
			Expect(asm.Apply(stream.Token("x"))).To(Succeed())
			err := asm.Apply(stream.ErrorSignal("model not found"))

			var streamErr *chat.StreamError
			Expect(errors.As(err, &streamErr)).To(BeTrue())
			Expect(streamErr.Message).To(Equal("model not found"))
			Expect(strings.Contains(err.Error(), "model not found")).To(BeTrue())
		})
	})

	It("should report statistics", func() {
		Expect(asm.ApplyAll(tokens("abcdef", 2))).To(Succeed())
		stats := asm.Stats()
		Expect(stats.Events).To(Equal(3))
		Expect(stats.Tokens).To(Equal(3))
		Expect(stats.ContentLength).To(Equal(6))
		Expect(stats.Finalized).To(BeFalse())
	})
})
