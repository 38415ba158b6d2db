package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. With a file path it snapshots itself to
// JSON after every change and reloads that file on start.
type Memory struct {
	mu       sync.RWMutex
	Chats    map[string]*Chat `json:"chats"`
	Codes    map[string]*Code `json:"codes"`
	filePath string
	now      func() time.Time
}

// NewMemory creates an empty store that lives only in memory
func NewMemory() *Memory {
	return &Memory{
		Chats: make(map[string]*Chat),
		Codes: make(map[string]*Code),
		now:   time.Now,
	}
}

// NewMemoryFile creates a store persisted to a JSON file
func NewMemoryFile(filePath string) (*Memory, error) {
	m := NewMemory()
	m.filePath = filePath

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	if _, err := os.Stat(filePath); err == nil {
		if err := m.load(); err != nil {
			return nil, fmt.Errorf("failed to load store: %w", err)
		}
	}
	return m, nil
}

func (m *Memory) CreateChat(ctx context.Context, title string) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if title == "" {
		title = DefaultChatTitle
	}
	now := m.now()
	c := &Chat{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	m.Chats[c.ID] = c

	if err := m.save(); err != nil {
		return nil, err
	}
	return copyChat(c, false), nil
}

func (m *Memory) GetChat(ctx context.Context, id string) (*Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.Chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	result := copyChat(c, true)
	for i := range result.Messages {
		result.Messages[i].GeneratedCodes = m.codesFor(result.Messages[i].ID)
	}
	return result, nil
}

func (m *Memory) ListChats(ctx context.Context) ([]Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chats := make([]Chat, 0, len(m.Chats))
	for _, c := range m.Chats {
		chats = append(chats, *copyChat(c, false))
	}
	SortChats(chats)
	return chats, nil
}

func (m *Memory) UpdateChatTitle(ctx context.Context, id, title string) (*Chat, error) {
	return m.updateChat(id, func(c *Chat) { c.Title = title })
}

func (m *Memory) SetPinned(ctx context.Context, id string, pinned bool) (*Chat, error) {
	return m.updateChat(id, func(c *Chat) { c.Pinned = pinned })
}

func (m *Memory) updateChat(id string, update func(*Chat)) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.Chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	update(c)
	c.UpdatedAt = m.now()

	if err := m.save(); err != nil {
		return nil, err
	}
	return copyChat(c, false), nil
}

func (m *Memory) DeleteChat(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.Chats[id]
	if !ok {
		return fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	for _, msg := range c.Messages {
		for codeID, code := range m.Codes {
			if code.MessageID == msg.ID {
				delete(m.Codes, codeID)
			}
		}
	}
	delete(m.Chats, id)
	return m.save()
}

func (m *Memory) CreateMessage(ctx context.Context, chatID string, msg NewMessage) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.Chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}

	images := msg.Images
	if images == nil {
		images = []string{}
	}
	now := m.now()
	stored := Message{
		ID:            uuid.NewString(),
		ChatID:        chatID,
		Role:          msg.Role,
		Content:       msg.Content,
		IsError:       msg.IsError,
		IsCollapsible: msg.IsCollapsible,
		Images:        append([]string{}, images...),
		CreatedAt:     now,
	}
	c.Messages = append(c.Messages, stored)
	c.UpdatedAt = now

	if err := m.save(); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (m *Memory) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	c, err := m.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return c.Messages, nil
}

func (m *Memory) CreateCode(ctx context.Context, messageID string, code NewCode) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasMessage(messageID) {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}

	stored := &Code{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Language:  code.Language,
		Content:   code.Content,
		Name:      code.Name,
		CreatedAt: m.now(),
	}
	m.Codes[stored.ID] = stored

	if err := m.save(); err != nil {
		return nil, err
	}
	result := *stored
	return &result, nil
}

func (m *Memory) hasMessage(id string) bool {
	for _, c := range m.Chats {
		for _, msg := range c.Messages {
			if msg.ID == id {
				return true
			}
		}
	}
	return false
}

// copyChat copies c, optionally with its messages and their generated code
func copyChat(c *Chat, withMessages bool) *Chat {
	result := *c
	result.Messages = nil
	if withMessages {
		result.Messages = append([]Message(nil), c.Messages...)
	}
	return &result
}

// codesFor must be called with the lock held
func (m *Memory) codesFor(messageID string) []Code {
	var codes []Code
	for _, code := range m.Codes {
		if code.MessageID == messageID {
			codes = append(codes, *code)
		}
	}
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].CreatedAt.Equal(codes[j].CreatedAt) {
			return codes[i].ID < codes[j].ID
		}
		return codes[i].CreatedAt.Before(codes[j].CreatedAt)
	})
	return codes
}

// save writes the snapshot when a file is configured. Callers hold the lock.
func (m *Memory) save() error {
	if m.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

func (m *Memory) load() error {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to unmarshal store: %w", err)
	}
	if m.Chats == nil {
		m.Chats = make(map[string]*Chat)
	}
	if m.Codes == nil {
		m.Codes = make(map[string]*Code)
	}
	return nil
}

var _ Store = (*Memory)(nil)
