package controllers

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/logger"
	"github.com/killallgit/genesis/pkg/render"
	"github.com/killallgit/genesis/pkg/session"
	"github.com/killallgit/genesis/pkg/store"
)

// ChatsController manages stored chats from the command line
type ChatsController struct {
	store store.Store
	cfg   *config.Config
}

// NewChatsController returns a controller over st. A nil st makes every
// operation fail with session.ErrNoStore.
func NewChatsController(st store.Store, cfg *config.Config) *ChatsController {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &ChatsController{
		store: st,
		cfg:   cfg,
	}
}

func (cc *ChatsController) ListChats(ctx context.Context, writer io.Writer) error {
	if cc.store == nil {
		return session.ErrNoStore
	}

	chats, err := cc.store.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}
	logger.WithComponent("chats_controller").Debug("Listed chats", "chat_count", len(chats))

	if len(chats) == 0 {
		fmt.Fprintln(writer, "No chats found")
		return nil
	}

	w := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPINNED\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Title, mark(c.Pinned), c.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

// ShowChat prints every message of a stored chat
func (cc *ChatsController) ShowChat(ctx context.Context, id string, r *render.Renderer, writer io.Writer) error {
	sess := session.New(nil, cc.store, cc.cfg)
	if err := sess.LoadChat(ctx, id); err != nil {
		return err
	}

	fmt.Fprintln(writer, sess.Title())
	for _, msg := range sess.Messages() {
		fmt.Fprintln(writer)
		fmt.Fprintln(writer, r.Message(msg))
	}
	return nil
}

func (cc *ChatsController) RenameChat(ctx context.Context, id, title string) (*store.Chat, error) {
	if cc.store == nil {
		return nil, session.ErrNoStore
	}
	c, err := cc.store.UpdateChatTitle(ctx, id, title)
	if err != nil {
		return nil, fmt.Errorf("failed to rename chat: %w", err)
	}
	return c, nil
}

func (cc *ChatsController) PinChat(ctx context.Context, id string, pinned bool) (*store.Chat, error) {
	if cc.store == nil {
		return nil, session.ErrNoStore
	}
	c, err := cc.store.SetPinned(ctx, id, pinned)
	if err != nil {
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	return c, nil
}

func (cc *ChatsController) DeleteChat(ctx context.Context, id string) error {
	if cc.store == nil {
		return session.ErrNoStore
	}
	if err := cc.store.DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}
