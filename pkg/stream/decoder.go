package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/killallgit/genesis/pkg/logger"
)

// Decoder turns raw stream bytes into events. Bytes are held until a full
// line is available, so chunk boundaries never change the output.
type Decoder struct {
	buf        []byte
	utf8       *encoding.Decoder
	terminated bool
	lines      int
	log        *slog.Logger
}

// NewDecoder creates a decoder for a single stream
func NewDecoder() *Decoder {
	return &Decoder{
		utf8: unicode.UTF8.NewDecoder(),
		log:  logger.WithComponent("stream"),
	}
}

// Feed consumes one chunk and returns the events it completes
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.terminated {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []Event
	start := 0
	for {
		idx := bytes.IndexByte(d.buf[start:], '\n')
		if idx < 0 {
			break
		}
		line := d.buf[start : start+idx]
		start += idx + 1

		if ev, ok := d.processLine(line); ok {
			events = append(events, ev)
			if ev.Terminal() {
				d.terminate()
				return events
			}
		}
	}

	// Keep the partial line for the next chunk
	rest := copy(d.buf, d.buf[start:])
	d.buf = d.buf[:rest]
	return events
}

// Flush handles an unterminated final line at end of stream
func (d *Decoder) Flush() []Event {
	if d.terminated {
		return nil
	}
	defer d.terminate()
	if len(d.buf) == 0 {
		return nil
	}
	if ev, ok := d.processLine(d.buf); ok {
		return []Event{ev}
	}
	return nil
}

// Terminated reports whether Done, an error or Flush ended the sequence
func (d *Decoder) Terminated() bool {
	return d.terminated
}

func (d *Decoder) terminate() {
	d.terminated = true
	d.buf = nil
}

func (d *Decoder) processLine(raw []byte) (Event, bool) {
	d.lines++
	line := d.decodeUTF8(bytes.TrimSuffix(raw, []byte{'\r'}))

	body, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		if line != "" {
			d.log.Debug("Ignoring non-data line", "line", d.lines)
		}
		return Event{}, false
	}

	if body == DoneLiteral {
		return Done(), true
	}
	if msg, isErr := strings.CutPrefix(body, ErrorLiteral); isErr {
		return ErrorSignal(strings.TrimPrefix(msg, " ")), true
	}

	var value any
	if err := json.Unmarshal([]byte(body), &value); err != nil {
		d.log.Debug("Payload is not JSON, keeping raw body", "line", d.lines, "error", err)
		return Token(body), true
	}
	s, isString := value.(string)
	if !isString {
		d.log.Debug("Payload is not a JSON string, keeping raw body", "line", d.lines)
		return Token(body), true
	}
	if m, isMarker := ParseMarker(s); isMarker {
		return PhaseMarker(m), true
	}
	return Token(s), true
}

// decodeUTF8 replaces invalid sequences with U+FFFD
func (d *Decoder) decodeUTF8(b []byte) string {
	out, err := d.utf8.Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

// Decode runs a whole stream through a fresh decoder
func Decode(data []byte) []Event {
	d := NewDecoder()
	events := d.Feed(data)
	return append(events, d.Flush()...)
}
