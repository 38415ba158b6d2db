package devserver

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/stream"
)

// Call is one request received on the generation endpoint
type Call struct {
	Model    string
	Prompt   string
	Messages []chat.HistoryEntry
	AutoMode bool
	Images   []string
}

// Reply is what the server streams back for a Call. A non-200 Status is
// sent as a JSON error with Body as its message and no stream.
type Reply struct {
	Status int
	Body   string
	Lines  []string
	// ChunkSize splits the stream into writes of at most this many bytes
	ChunkSize int
	Delay     time.Duration
}

// Responder decides the reply to a generation call
type Responder interface {
	Respond(call Call) Reply
}

// ResponderFunc adapts a function to Responder
type ResponderFunc func(call Call) Reply

func (f ResponderFunc) Respond(call Call) Reply {
	return f(call)
}

// TextReply streams the tokens as a single-phase answer
func TextReply(tokens ...string) Reply {
	lines := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		lines = append(lines, stream.EncodeToken(t))
	}
	return Reply{Status: http.StatusOK, Lines: append(lines, stream.EncodeDone())}
}

// TwoStepReply streams a two-phase answer
func TwoStepReply(step1, step2 []string) Reply {
	lines := []string{stream.EncodeMarker(stream.MarkerStep1Start)}
	for _, t := range step1 {
		lines = append(lines, stream.EncodeToken(t))
	}
	lines = append(lines, stream.EncodeMarker(stream.MarkerStep1End), stream.EncodeMarker(stream.MarkerStep2Start))
	for _, t := range step2 {
		lines = append(lines, stream.EncodeToken(t))
	}
	return Reply{Status: http.StatusOK, Lines: append(lines, stream.EncodeDone())}
}

// ErrorReply streams the given tokens and then an error line
func ErrorReply(message string, tokens ...string) Reply {
	r := TextReply(tokens...)
	r.Lines[len(r.Lines)-1] = stream.EncodeError(message)
	return r
}

// StatusReply rejects the call with an HTTP status
func StatusReply(status int, message string) Reply {
	return Reply{Status: status, Body: message}
}

var quoted = regexp.MustCompile(`"([^"]*)"`)

// EchoResponder is the default scripted model. Title prompts get a short
// quoted title, auto-mode diagram requests get a two-step answer and
// everything else is echoed back word by word.
type EchoResponder struct {
	TitlePrefix string
}

func (e EchoResponder) Respond(call Call) Reply {
	prefix := e.TitlePrefix
	if prefix == "" {
		prefix = "Resume la siguiente petición"
	}

	if strings.HasPrefix(call.Prompt, prefix) {
		source := call.Prompt
		if m := quoted.FindAllStringSubmatch(call.Prompt, -1); len(m) > 0 {
			source = m[len(m)-1][1]
		}
		return TextReply(`"` + chat.FirstWords(source, 4) + `"`)
	}

	lower := strings.ToLower(call.Prompt)
	if call.AutoMode && (strings.Contains(lower, "diagram") || strings.Contains(lower, "uml")) {
		return TwoStepReply(
			[]string{"```mermaid\n", "classDiagram\n", "  class Pedido\n", "```"},
			[]string{"```python\n", "class Pedido:\n", "    pass\n", "```"},
		)
	}

	words := strings.Fields(call.Prompt)
	tokens := make([]string, 0, len(words)+1)
	tokens = append(tokens, "Recibido:")
	for _, w := range words {
		tokens = append(tokens, " "+w)
	}
	return TextReply(tokens...)
}
