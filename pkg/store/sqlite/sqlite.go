// Package sqlite persists chats in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/genesis/pkg/logger"
	"github.com/killallgit/genesis/pkg/store"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	pinned INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	is_error INTEGER NOT NULL DEFAULT 0,
	is_collapsible INTEGER NOT NULL DEFAULT 0,
	images TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS codes (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	language TEXT NOT NULL,
	content TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
CREATE INDEX IF NOT EXISTS idx_codes_message_id ON codes(message_id);`

// Store is a store.Store backed by database/sql and modernc.org/sqlite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and ensures the schema
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithComponent("sqlite").Debug("Opened chat database", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateChat(ctx context.Context, title string) (*store.Chat, error) {
	if title == "" {
		title = store.DefaultChatTitle
	}
	now := s.now().UnixMilli()
	c := &store.Chat{ID: uuid.NewString(), Title: title, CreatedAt: time.UnixMilli(now), UpdatedAt: time.UnixMilli(now)}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, pinned, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		c.ID, c.Title, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return c, nil
}

func (s *Store) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	c, err := s.chat(ctx, id)
	if err != nil {
		return nil, err
	}

	c.Messages, err = s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) chat(ctx context.Context, id string) (*store.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, pinned, created_at, updated_at FROM chats WHERE id = ?`, id)

	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}
	return c, nil
}

func (s *Store) ListChats(ctx context.Context) ([]store.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, pinned, created_at, updated_at FROM chats ORDER BY pinned DESC, updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []store.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}
	store.SortChats(chats)
	return chats, nil
}

func (s *Store) UpdateChatTitle(ctx context.Context, id, title string) (*store.Chat, error) {
	return s.updateChat(ctx, id, `UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`, title)
}

func (s *Store) SetPinned(ctx context.Context, id string, pinned bool) (*store.Chat, error) {
	return s.updateChat(ctx, id, `UPDATE chats SET pinned = ?, updated_at = ? WHERE id = ?`, boolInt(pinned))
}

func (s *Store) updateChat(ctx context.Context, id, query string, value any) (*store.Chat, error) {
	res, err := s.db.ExecContext(ctx, query, value, s.now().UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
	}
	return s.chat(ctx, id)
}

func (s *Store) DeleteChat(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM codes WHERE message_id IN (SELECT id FROM messages WHERE chat_id = ?)`, id); err != nil {
		return fmt.Errorf("failed to delete codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return tx.Commit()
}

func (s *Store) CreateMessage(ctx context.Context, chatID string, msg store.NewMessage) (*store.Message, error) {
	images := msg.Images
	if images == nil {
		images = []string{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}

	now := s.now().UnixMilli()
	stored := &store.Message{
		ID:            uuid.NewString(),
		ChatID:        chatID,
		Role:          msg.Role,
		Content:       msg.Content,
		IsError:       msg.IsError,
		IsCollapsible: msg.IsCollapsible,
		Images:        append([]string{}, images...),
		CreatedAt:     time.UnixMilli(now),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, is_error, is_collapsible, images, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, chatID, stored.Role, stored.Content,
		boolInt(stored.IsError), boolInt(stored.IsCollapsible), string(encoded), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return stored, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	if _, err := s.chat(ctx, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, is_error, is_collapsible, images, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at, rowid`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	messages := []store.Message{}
	for rows.Next() {
		var (
			m                      store.Message
			isError, isCollapsible int
			images                 string
			createdAt              int64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &isError, &isCollapsible, &images, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.IsError = isError == 1
		m.IsCollapsible = isCollapsible == 1
		m.CreatedAt = time.UnixMilli(createdAt)
		if err := json.Unmarshal([]byte(images), &m.Images); err != nil || m.Images == nil {
			m.Images = []string{}
		}
		messages = append(messages, m)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	for i := range messages {
		codes, err := s.codes(ctx, messages[i].ID)
		if err != nil {
			return nil, err
		}
		messages[i].GeneratedCodes = codes
	}
	return messages, nil
}

func (s *Store) CreateCode(ctx context.Context, messageID string, code store.NewCode) (*store.Code, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE id = ?`, messageID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
	}

	now := s.now().UnixMilli()
	stored := &store.Code{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Language:  code.Language,
		Content:   code.Content,
		Name:      code.Name,
		CreatedAt: time.UnixMilli(now),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO codes (id, message_id, language, content, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		stored.ID, messageID, stored.Language, stored.Content, stored.Name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert code: %w", err)
	}
	return stored, nil
}

func (s *Store) codes(ctx context.Context, messageID string) ([]store.Code, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, language, content, name, created_at
		FROM codes WHERE message_id = ? ORDER BY created_at, rowid`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query codes: %w", err)
	}
	defer rows.Close()

	var codes []store.Code
	for rows.Next() {
		var c store.Code
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.MessageID, &c.Language, &c.Content, &c.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdAt)
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (*store.Chat, error) {
	var (
		c                    store.Chat
		pinned               int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Title, &pinned, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Pinned = pinned == 1
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ store.Store = (*Store)(nil)
