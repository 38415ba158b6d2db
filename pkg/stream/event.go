package stream

import "fmt"

// Kind identifies what an Event carries
type Kind int

const (
	KindToken Kind = iota
	KindMarker
	KindDone
	KindError
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindMarker:
		return "marker"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Marker is one of the phase sentinels of a two-step response
type Marker int

const (
	MarkerNone Marker = iota
	MarkerStep1Start
	MarkerStep1End
	MarkerStep2Start
)

// Wire literals
const (
	DataPrefix   = "data: "
	DoneLiteral  = "[DONE]"
	ErrorLiteral = "[ERROR]"

	Step1StartLiteral = "[STEP1_START]"
	Step1EndLiteral   = "[STEP1_END]"
	Step2StartLiteral = "[STEP2_START]"
)

// String returns the wire literal of the marker
func (m Marker) String() string {
	switch m {
	case MarkerStep1Start:
		return Step1StartLiteral
	case MarkerStep1End:
		return Step1EndLiteral
	case MarkerStep2Start:
		return Step2StartLiteral
	default:
		return ""
	}
}

// ParseMarker maps a decoded payload onto a marker
func ParseMarker(s string) (Marker, bool) {
	switch s {
	case Step1StartLiteral:
		return MarkerStep1Start, true
	case Step1EndLiteral:
		return MarkerStep1End, true
	case Step2StartLiteral:
		return MarkerStep2Start, true
	default:
		return MarkerNone, false
	}
}

// Event is a single decoded protocol unit
type Event struct {
	Kind    Kind
	Payload string // token text or error message
	Marker  Marker
}

// Token creates a content event
func Token(payload string) Event {
	return Event{Kind: KindToken, Payload: payload}
}

// PhaseMarker creates a marker event
func PhaseMarker(m Marker) Event {
	return Event{Kind: KindMarker, Marker: m}
}

// Done creates the end-of-stream event
func Done() Event {
	return Event{Kind: KindDone}
}

// ErrorSignal creates an error event carrying the backend's message
func ErrorSignal(message string) Event {
	return Event{Kind: KindError, Payload: message}
}

// Terminal reports whether the event ends the sequence
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

func (e Event) String() string {
	switch e.Kind {
	case KindToken:
		return fmt.Sprintf("Token(%q)", e.Payload)
	case KindMarker:
		return fmt.Sprintf("PhaseMarker(%s)", e.Marker)
	case KindDone:
		return "Done"
	case KindError:
		return fmt.Sprintf("ErrorSignal(%q)", e.Payload)
	default:
		return "Unknown"
	}
}
