package stream

import (
	"encoding/json"
	"errors"
	"io"
)

const defaultReadBuffer = 4096

// Reader pulls event batches from an underlying stream body
type Reader struct {
	r   io.Reader
	dec *Decoder
	buf []byte
}

// NewReader wraps r. size is the read buffer, zero picks a default.
func NewReader(r io.Reader, size int) *Reader {
	if size <= 0 {
		size = defaultReadBuffer
	}
	return &Reader{
		r:   r,
		dec: NewDecoder(),
		buf: make([]byte, size),
	}
}

// Next returns the events completed by the next chunk read. It returns
// io.EOF once the stream ended or a terminal event was delivered.
func (r *Reader) Next() ([]Event, error) {
	for {
		if r.dec.Terminated() {
			return nil, io.EOF
		}

		n, err := r.r.Read(r.buf)
		var events []Event
		if n > 0 {
			events = r.dec.Feed(r.buf[:n])
		}

		if errors.Is(err, io.EOF) {
			events = append(events, r.dec.Flush()...)
			if len(events) == 0 {
				return nil, io.EOF
			}
			return events, nil
		}
		if err != nil {
			return events, err
		}
		if len(events) > 0 {
			return events, nil
		}
	}
}

// EncodeToken renders a content token as a wire line
func EncodeToken(s string) string {
	encoded, _ := json.Marshal(s)
	return DataPrefix + string(encoded) + "\n"
}

// EncodeMarker renders a phase marker as a wire line
func EncodeMarker(m Marker) string {
	return EncodeToken(m.String())
}

// EncodeDone renders the end-of-stream line
func EncodeDone() string {
	return DataPrefix + DoneLiteral + "\n"
}

// EncodeError renders an error line
func EncodeError(message string) string {
	return DataPrefix + ErrorLiteral + " " + message + "\n"
}
