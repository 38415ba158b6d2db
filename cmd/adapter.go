package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/render"
	"github.com/killallgit/genesis/pkg/session"
)

// turnPrinter adapts session updates to terminal output. In live mode the
// in-flight reply is redrawn in place on every update. Otherwise only the
// finished reply is printed.
type turnPrinter struct {
	out      io.Writer
	renderer *render.Renderer
	live     bool
	lines    int
}

func newTurnPrinter(out io.Writer, r *render.Renderer, live bool) *turnPrinter {
	return &turnPrinter{out: out, renderer: r, live: live}
}

// follow draws the streaming reply until updates is closed
func (p *turnPrinter) follow(updates <-chan session.Update, done chan<- struct{}) {
	defer close(done)
	for u := range updates {
		if !p.live || u.Kind != session.MessagesChanged || len(u.Messages) == 0 {
			continue
		}
		last := u.Messages[len(u.Messages)-1]
		if last.IsAssistant() && last.IsStreaming {
			p.redraw(p.renderer.Message(last))
		}
	}
}

func (p *turnPrinter) redraw(s string) {
	if p.lines > 0 {
		// Move to the start of the first drawn line and clear to the end
		fmt.Fprintf(p.out, "\x1b[%dF\x1b[J", p.lines)
	}
	fmt.Fprintln(p.out, s)
	p.lines = strings.Count(s, "\n") + 1
}

// finish draws the final form of msg over the in-flight one
func (p *turnPrinter) finish(msg chat.Message) {
	out := p.renderer.Message(msg)
	if p.live {
		p.redraw(out)
	} else {
		fmt.Fprintln(p.out, out)
	}
	p.lines = 0
	p.renderer.Forget(msg.ID)
}

// reset drops the render cache when the conversation is replaced
func (p *turnPrinter) reset() {
	p.lines = 0
	p.renderer.Reset()
}

// runTurn submits one turn and prints its reply. A failed turn still
// prints the error message the session put in place of the reply.
func runTurn(ctx context.Context, sess *session.Session, p *turnPrinter, text string, attachments []chat.Attachment, model string) error {
	updates, unsubscribe := sess.Subscribe()
	done := make(chan struct{})
	go p.follow(updates, done)

	err := sess.SubmitTurn(ctx, text, attachments, model)
	unsubscribe()
	<-done

	if errors.Is(err, session.ErrEmptyTurn) || errors.Is(err, session.ErrBusy) {
		return err
	}
	if messages := sess.Messages(); len(messages) > 0 {
		if last := messages[len(messages)-1]; last.IsAssistant() {
			p.finish(last)
		}
	}
	return err
}
