// Package store defines the chat persistence contract and an in-memory
// implementation of it.
package store

import (
	"context"
	"errors"
	"sort"
	"time"
)

// DefaultChatTitle is given to chats created before a title is known
const DefaultChatTitle = "Nuevo Chat"

// ErrNotFound is returned when a chat or message does not exist
var ErrNotFound = errors.New("not found")

// Chat is a stored conversation
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages,omitempty"`
}

// Message is a stored chat message
type Message struct {
	ID             string    `json:"id"`
	ChatID         string    `json:"chatId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	IsError        bool      `json:"isError"`
	IsCollapsible  bool      `json:"isCollapsible"`
	Images         []string  `json:"images"`
	GeneratedCodes []Code    `json:"generatedCodes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewMessage is the payload for CreateMessage
type NewMessage struct {
	Role          string   `json:"role"`
	Content       string   `json:"content"`
	IsError       bool     `json:"isError"`
	IsCollapsible bool     `json:"isCollapsible"`
	Images        []string `json:"images"`
}

// Code is a code artifact saved against the message that produced it
type Code struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	Language  string    `json:"language"`
	Content   string    `json:"content"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCode is the payload for CreateCode
type NewCode struct {
	Language string `json:"language"`
	Content  string `json:"content"`
	Name     string `json:"name"`
}

// Store persists chats, their messages and generated code
type Store interface {
	CreateChat(ctx context.Context, title string) (*Chat, error)
	GetChat(ctx context.Context, id string) (*Chat, error)
	ListChats(ctx context.Context) ([]Chat, error)
	UpdateChatTitle(ctx context.Context, id, title string) (*Chat, error)
	SetPinned(ctx context.Context, id string, pinned bool) (*Chat, error)
	DeleteChat(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, chatID string, msg NewMessage) (*Message, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	CreateCode(ctx context.Context, messageID string, code NewCode) (*Code, error)
}

// SortChats orders pinned chats first, then most recently updated
func SortChats(chats []Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].Pinned != chats[j].Pinned {
			return chats[i].Pinned
		}
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
}
