// Package storetest holds behaviour checks every store.Store must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/killallgit/genesis/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a fresh store from newStore against the Store contract
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("should create chats with the default title", func(t *testing.T) {
		s := newStore(t)

		c, err := s.CreateChat(ctx, "")
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, store.DefaultChatTitle, c.Title)
		assert.False(t, c.Pinned)

		got, err := s.GetChat(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.Empty(t, got.Messages)
	})

	t.Run("should return ErrNotFound for unknown ids", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetChat(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		_, err = s.UpdateChatTitle(ctx, "missing", "x")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		_, err = s.SetPinned(ctx, "missing", true)
		assert.True(t, errors.Is(err, store.ErrNotFound))

		assert.True(t, errors.Is(s.DeleteChat(ctx, "missing"), store.ErrNotFound))

		_, err = s.CreateMessage(ctx, "missing", store.NewMessage{Role: "user", Content: "x"})
		assert.True(t, errors.Is(err, store.ErrNotFound))

		_, err = s.CreateCode(ctx, "missing", store.NewCode{Language: "go", Content: "x"})
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("should keep messages in insertion order", func(t *testing.T) {
		s := newStore(t)
		c, err := s.CreateChat(ctx, "Orden")
		require.NoError(t, err)

		first, err := s.CreateMessage(ctx, c.ID, store.NewMessage{Role: "user", Content: "uno", Images: []string{"a.png"}})
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)

		_, err = s.CreateMessage(ctx, c.ID, store.NewMessage{
			Role:          "assistant",
			Content:       "A\n\n[STEP_SEPARATOR]\n\nB",
			IsCollapsible: true,
		})
		require.NoError(t, err)
		_, err = s.CreateMessage(ctx, c.ID, store.NewMessage{Role: "assistant", Content: "No diagram detected", IsError: true})
		require.NoError(t, err)

		msgs, err := s.ListMessages(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "uno", msgs[0].Content)
		assert.Equal(t, []string{"a.png"}, msgs[0].Images)
		assert.True(t, msgs[1].IsCollapsible)
		assert.Equal(t, "A\n\n[STEP_SEPARATOR]\n\nB", msgs[1].Content)
		assert.True(t, msgs[2].IsError)
		assert.NotNil(t, msgs[2].Images)
	})

	t.Run("should attach generated code to its message", func(t *testing.T) {
		s := newStore(t)
		c, err := s.CreateChat(ctx, "")
		require.NoError(t, err)
		msg, err := s.CreateMessage(ctx, c.ID, store.NewMessage{Role: "assistant", Content: "```go\nfunc main() {}\n```"})
		require.NoError(t, err)

		code, err := s.CreateCode(ctx, msg.ID, store.NewCode{Language: "go", Content: "func main() {}", Name: "main"})
		require.NoError(t, err)
		assert.Equal(t, msg.ID, code.MessageID)

		got, err := s.GetChat(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, got.Messages, 1)
		require.Len(t, got.Messages[0].GeneratedCodes, 1)
		assert.Equal(t, "main", got.Messages[0].GeneratedCodes[0].Name)
	})

	t.Run("should list pinned chats first then most recent", func(t *testing.T) {
		s := newStore(t)
		older, err := s.CreateChat(ctx, "older")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		newer, err := s.CreateChat(ctx, "newer")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		pinned, err := s.CreateChat(ctx, "pinned")
		require.NoError(t, err)
		_, err = s.SetPinned(ctx, pinned.ID, true)
		require.NoError(t, err)

		chats, err := s.ListChats(ctx)
		require.NoError(t, err)
		require.Len(t, chats, 3)
		assert.Equal(t, pinned.ID, chats[0].ID)
		assert.True(t, chats[0].Pinned)
		assert.Equal(t, newer.ID, chats[1].ID)
		assert.Equal(t, older.ID, chats[2].ID)
	})

	t.Run("should rename and delete chats", func(t *testing.T) {
		s := newStore(t)
		c, err := s.CreateChat(ctx, "")
		require.NoError(t, err)

		renamed, err := s.UpdateChatTitle(ctx, c.ID, "Diagrama de clases")
		require.NoError(t, err)
		assert.Equal(t, "Diagrama de clases", renamed.Title)

		require.NoError(t, s.DeleteChat(ctx, c.ID))
		_, err = s.GetChat(ctx, c.ID)
		assert.True(t, errors.Is(err, store.ErrNotFound))

		chats, err := s.ListChats(ctx)
		require.NoError(t, err)
		assert.Empty(t, chats)
	})
}
