package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Step is the phase of a two-step response currently receiving tokens
type Step int

const (
	StepNone Step = iota
	Step1
	Step2
)

// Attachment is an opaque file reference sent with a user turn
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"-"`
}

// Message is one visible unit of a conversation
type Message struct {
	ID          string       `json:"id"`
	ServerID    string       `json:"server_id,omitempty"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Images      []Attachment `json:"images,omitempty"`
	IsLoading   bool         `json:"is_loading,omitempty"`
	IsStreaming bool         `json:"-"`
	IsError     bool         `json:"is_error,omitempty"`
	IsTwoStep   bool         `json:"is_two_step,omitempty"`
	Step1Text   string       `json:"step1_text,omitempty"`
	Step2Text   string       `json:"step2_text,omitempty"`
	CurrentStep Step         `json:"current_step,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

func newID() string {
	return uuid.NewString()
}

func NewUserMessage(content string, images ...Attachment) Message {
	return Message{
		ID:        newID(),
		Role:      RoleUser,
		Content:   content,
		Images:    images,
		Timestamp: time.Now(),
	}
}

func NewAssistantMessage(content string) Message {
	return Message{
		ID:        newID(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewPlaceholder returns the loading assistant message shown while a turn waits for tokens
func NewPlaceholder() Message {
	return Message{
		ID:          newID(),
		Role:        RoleAssistant,
		IsLoading:   true,
		IsStreaming: true,
		Timestamp:   time.Now(),
	}
}

// NewErrorMessage returns an assistant-side failure bubble
func NewErrorMessage(content string) Message {
	return Message{
		ID:        newID(),
		Role:      RoleAssistant,
		Content:   content,
		IsError:   true,
		Timestamp: time.Now(),
	}
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// IsPartial reports a two-step message whose final phase has not started
func (m Message) IsPartial() bool {
	return m.IsTwoStep && m.CurrentStep != Step2 && m.IsStreaming
}

// FinalText is the text code artifacts may be taken from. It is empty for
// errors and for two-step messages still in their first phase.
func (m Message) FinalText() string {
	switch {
	case m.IsError:
		return ""
	case m.IsTwoStep && m.CurrentStep == Step2:
		return m.Step2Text
	case m.IsPartial():
		return ""
	default:
		return m.Content
	}
}

// Clone returns a copy that shares no slices with m
func (m Message) Clone() Message {
	if m.Images != nil {
		images := make([]Attachment, len(m.Images))
		copy(images, m.Images)
		m.Images = images
	}
	return m
}

// HistoryEntry is the {role, content} pair sent to the model
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History converts messages into the request history. Error bubbles and
// loading placeholders are not part of the conversation the model sees.
func History(messages []Message) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		if msg.IsError || msg.IsLoading {
			continue
		}
		entries = append(entries, HistoryEntry{Role: msg.Role, Content: msg.Content})
	}
	return entries
}

// CloneAll copies a message slice
func CloneAll(messages []Message) []Message {
	result := make([]Message, len(messages))
	for i, msg := range messages {
		result[i] = msg.Clone()
	}
	return result
}

// GetLastUserMessage returns the most recent user message
func GetLastUserMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsUser() {
			return messages[i], true
		}
	}
	return Message{}, false
}

// WordCount counts whitespace separated words
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// FirstWords returns the first n words of s joined by single spaces
func FirstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
