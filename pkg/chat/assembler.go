package chat

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/killallgit/genesis/pkg/logger"
	"github.com/killallgit/genesis/pkg/stream"
)

// ErrFinalized is returned when events arrive after the message was completed
var ErrFinalized = errors.New("assembler already finalized")

// StreamError is a backend error signal that is not the no-diagram sentinel
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream error: " + e.Message
}

// State of the two-step response state machine
type State int

const (
	StateUndifferentiated State = iota
	StatePhase1
	StatePhase1Done
	StatePhase2
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUndifferentiated:
		return "undifferentiated"
	case StatePhase1:
		return "phase1"
	case StatePhase1Done:
		return "phase1_done"
	case StatePhase2:
		return "phase2"
	default:
		return "unknown"
	}
}

// AssemblerStats provides statistics about an assembled response
type AssemblerStats struct {
	Events        int
	Tokens        int
	ContentLength int
	StartTime     time.Time
	LastUpdate    time.Time
	Duration      time.Duration
	Finalized     bool
}

// Assembler builds one assistant message from decoded stream events
type Assembler struct {
	msg       Message
	state     State
	live      strings.Builder
	sentinel  string
	finalized bool
	events    int
	tokens    int
	startTime time.Time
	lastEvent time.Time
	log       *slog.Logger
}

// NewAssembler starts assembling into the given placeholder. An error signal
// containing sentinel downgrades the message to an error bubble.
func NewAssembler(placeholder Message, sentinel string) *Assembler {
	now := time.Now()
	placeholder.Role = RoleAssistant
	placeholder.IsStreaming = true
	return &Assembler{
		msg:       placeholder,
		sentinel:  sentinel,
		startTime: now,
		lastEvent: now,
		log:       logger.WithComponent("assembler").With("message", placeholder.ID),
	}
}

// ApplyAll applies a batch of events in order, stopping at the first error
func (a *Assembler) ApplyAll(events []stream.Event) error {
	for _, ev := range events {
		if err := a.Apply(ev); err != nil {
			return err
		}
	}
	return nil
}

// Apply advances the state machine by one event
func (a *Assembler) Apply(ev stream.Event) error {
	if a.finalized {
		return ErrFinalized
	}
	a.events++
	a.lastEvent = time.Now()

	switch ev.Kind {
	case stream.KindToken:
		a.token(ev.Payload)
	case stream.KindMarker:
		a.marker(ev.Marker)
	case stream.KindDone:
		a.Finalize()
	case stream.KindError:
		return a.errorSignal(ev.Payload)
	}
	return nil
}

func (a *Assembler) token(payload string) {
	a.tokens++
	a.msg.IsLoading = false
	a.live.WriteString(payload)
	body := a.live.String()

	switch a.state {
	case StateUndifferentiated:
		a.msg.Content = body
	case StatePhase1:
		a.msg.Step1Text = body
		a.msg.Content = body
	case StatePhase1Done:
		// Held until phase 2 starts; the frozen first phase stays visible
	case StatePhase2:
		a.msg.Step2Text = body
		a.msg.Content = body
	}
}

func (a *Assembler) marker(m stream.Marker) {
	a.msg.IsTwoStep = true

	switch m {
	case stream.MarkerStep1Start:
		if a.state != StateUndifferentiated {
			a.ignoreMarker(m)
			return
		}
		a.state = StatePhase1
		a.msg.CurrentStep = Step1
		a.msg.Step1Text = a.live.String()

	case stream.MarkerStep1End:
		if a.state != StateUndifferentiated && a.state != StatePhase1 {
			a.ignoreMarker(m)
			return
		}
		a.closePhase1()
		a.state = StatePhase1Done

	case stream.MarkerStep2Start:
		switch a.state {
		case StatePhase2:
			a.ignoreMarker(m)
			return
		case StateUndifferentiated, StatePhase1:
			a.closePhase1()
		}
		a.startPhase2()
	}
}

func (a *Assembler) closePhase1() {
	a.msg.Step1Text = a.live.String()
	a.msg.Content = a.msg.Step1Text
	a.msg.CurrentStep = Step1
	a.live.Reset()
}

func (a *Assembler) startPhase2() {
	a.state = StatePhase2
	a.msg.CurrentStep = Step2
	a.msg.Step2Text = a.live.String()
	a.msg.Content = a.msg.Step2Text
}

func (a *Assembler) ignoreMarker(m stream.Marker) {
	a.log.Debug("Ignoring out of order phase marker", "marker", m.String(), "state", a.state.String())
}

func (a *Assembler) errorSignal(message string) error {
	a.finalized = true
	if a.sentinel != "" && strings.Contains(message, a.sentinel) {
		a.log.Debug("No-diagram signal received, replacing message")
		a.msg = Message{
			ID:        a.msg.ID,
			Role:      RoleAssistant,
			Content:   message,
			IsError:   true,
			Timestamp: a.msg.Timestamp,
		}
		return nil
	}
	a.msg.IsStreaming = false
	return &StreamError{Message: message}
}

// Finalize completes the message. It is called on Done and on a clean end
// of stream; calling it again is a no-op.
func (a *Assembler) Finalize() Message {
	if a.finalized {
		return a.Message()
	}
	a.finalized = true

	if a.state == StatePhase1Done && a.live.Len() > 0 {
		// Tokens after the first phase closed belong to the second one
		a.startPhase2()
	}
	if a.msg.IsTwoStep && a.msg.CurrentStep == Step2 {
		a.msg.Content = a.msg.Step2Text
	}

	a.msg.IsLoading = false
	a.msg.IsStreaming = false
	return a.Message()
}

// Message returns a copy of the message in its current state
func (a *Assembler) Message() Message {
	return a.msg.Clone()
}

// State returns the current state machine state
func (a *Assembler) State() State {
	return a.state
}

// Finalized reports whether Done, an error signal or Finalize completed the message
func (a *Assembler) Finalized() bool {
	return a.finalized
}

// Stats returns statistics about the assembly so far
func (a *Assembler) Stats() AssemblerStats {
	return AssemblerStats{
		Events:        a.events,
		Tokens:        a.tokens,
		ContentLength: len(a.msg.Content),
		StartTime:     a.startTime,
		LastUpdate:    a.lastEvent,
		Duration:      a.lastEvent.Sub(a.startTime),
		Finalized:     a.finalized,
	}
}
