// Package fence splits message text into prose and fenced code segments,
// tolerating a code fence that is still being streamed.
package fence

import (
	"regexp"
	"strings"
)

// Kind of a segment
type Kind int

const (
	KindText Kind = iota
	KindCode
)

// String returns the string representation of the kind
func (k Kind) String() string {
	if k == KindCode {
		return "code"
	}
	return "text"
}

// DefaultLanguage is used for fences without a tag
const DefaultLanguage = "text"

const closer = "```"

var opener = regexp.MustCompile("```(\\w*)\\n")

// Segment is one contiguous run of prose or fenced code
type Segment struct {
	Kind     Kind
	Language string
	Content  string
	// Complete is false only for a trailing code fence with no closer yet
	Complete bool
	// Raw is the exact source text covered by the segment
	Raw string
}

// IsCode reports whether the segment is a code fence
func (s Segment) IsCode() bool {
	return s.Kind == KindCode
}

// Parse splits text into ordered segments. It never fails.
func Parse(text string) []Segment {
	segments, _ := scan(text, 0)
	if len(segments) == 0 {
		return []Segment{textSegment(text)}
	}
	return segments
}

// Join reassembles the source text of segments
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Raw)
	}
	return b.String()
}

// CompleteBlocks returns the closed code fences of text with non-empty content
func CompleteBlocks(text string) []Segment {
	var blocks []Segment
	for _, s := range Parse(text) {
		if s.IsCode() && s.Complete && s.Content != "" {
			blocks = append(blocks, s)
		}
	}
	return blocks
}

func textSegment(raw string) Segment {
	return Segment{Kind: KindText, Content: raw, Complete: true, Raw: raw}
}

// scan parses text from pos. It also returns how many of the returned
// segments lie before the end of the last closed fence, which is the prefix
// that cannot change when more text is appended.
func scan(text string, pos int) ([]Segment, int) {
	var segments []Segment
	stable := 0

	for pos < len(text) {
		loc := opener.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		contentStart := pos + loc[1]
		language := text[pos+loc[2] : pos+loc[3]]
		if language == "" {
			language = DefaultLanguage
		}

		if start > pos {
			segments = append(segments, textSegment(text[pos:start]))
		}

		idx := strings.Index(text[contentStart:], closer)
		if idx < 0 {
			segments = append(segments, Segment{
				Kind:     KindCode,
				Language: language,
				Content:  text[contentStart:],
				Complete: false,
				Raw:      text[start:],
			})
			return segments, stable
		}

		end := contentStart + idx
		segments = append(segments, Segment{
			Kind:     KindCode,
			Language: language,
			Content:  strings.TrimSpace(text[contentStart:end]),
			Complete: true,
			Raw:      text[start : end+len(closer)],
		})
		pos = end + len(closer)
		stable = len(segments)
	}

	if pos < len(text) {
		segments = append(segments, textSegment(text[pos:]))
	}
	return segments, stable
}
