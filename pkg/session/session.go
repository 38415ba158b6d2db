// Package session runs chat turns: it sends the conversation to the
// backend, reconciles the streamed reply into the message list, persists
// finished turns and names new chats.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/killallgit/genesis/pkg/artifacts"
	"github.com/killallgit/genesis/pkg/backend"
	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/fence"
	"github.com/killallgit/genesis/pkg/logger"
	"github.com/killallgit/genesis/pkg/store"
	"github.com/killallgit/genesis/pkg/stream"
)

var (
	// ErrBusy is returned when a turn is already in flight
	ErrBusy = errors.New("a turn is already in progress")
	// ErrEmptyTurn is returned for a turn with neither text nor attachments
	ErrEmptyTurn = errors.New("nothing to send")
	// ErrNoStore is returned by operations that need persistence in anonymous mode
	ErrNoStore = errors.New("no chat store configured")
)

// Generator opens the response stream for one request
type Generator interface {
	GenerateStream(ctx context.Context, req backend.GenerateRequest) (io.ReadCloser, error)
}

// Session owns the message list of one conversation
type Session struct {
	gen   Generator
	store store.Store
	cfg   *config.Config
	log   *slog.Logger

	mu       sync.Mutex
	messages []chat.Message
	chatID   string
	title    string
	busy     bool

	subsMu  sync.Mutex
	subs    map[int]chan Update
	nextSub int

	titles sync.WaitGroup
}

// New creates an empty session. A nil store runs turns anonymously: no
// persistence and no title generation. A nil cfg uses config.Defaults.
func New(gen Generator, st store.Store, cfg *config.Config) *Session {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &Session{
		gen:   gen,
		store: st,
		cfg:   cfg,
		log:   logger.WithComponent("session"),
		subs:  make(map[int]chan Update),
	}
}

// Messages returns a copy of the conversation
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.CloneAll(s.messages)
}

// CodeRequests extracts the code blocks of the conversation, grouped per request
func (s *Session) CodeRequests() []artifacts.CodeRequestGroup {
	return artifacts.Extract(s.Messages())
}

// ChatID returns the stored chat id, empty until the first turn is saved
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Title returns the chat title, empty until known
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// IsBusy reports whether a turn is in flight
func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// WaitTitle blocks until every title generation started so far finished
func (s *Session) WaitTitle() {
	s.titles.Wait()
}

// NewChat clears the conversation
func (s *Session) NewChat() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.messages = nil
	s.chatID = ""
	s.title = ""
	s.mu.Unlock()

	s.publishMessages()
	return nil
}

// LoadChat replaces the conversation with a stored chat. On failure the
// conversation becomes a single load error message.
func (s *Session) LoadChat(ctx context.Context, chatID string) error {
	if s.store == nil {
		return ErrNoStore
	}
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()

	c, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		s.log.Error("Failed to load chat", "chat_id", chatID, "error", err)
		s.mu.Lock()
		s.messages = []chat.Message{chat.NewErrorMessage(s.cfg.Messages.LoadError)}
		s.chatID = chatID
		s.title = ""
		s.mu.Unlock()
		s.publishMessages()
		return fmt.Errorf("failed to load chat %s: %w", chatID, err)
	}

	messages := make([]chat.Message, 0, len(c.Messages))
	for _, stored := range c.Messages {
		msg := chat.Restore(stored.Role, stored.Content, stored.IsError, stored.IsCollapsible)
		msg.ServerID = stored.ID
		msg.Timestamp = stored.CreatedAt
		for _, name := range stored.Images {
			msg.Images = append(msg.Images, chat.Attachment{Name: name})
		}
		messages = append(messages, msg)
	}

	s.mu.Lock()
	s.messages = messages
	s.chatID = c.ID
	s.title = c.Title
	s.mu.Unlock()

	s.log.Debug("Loaded chat", "chat_id", c.ID, "messages", len(messages))
	s.publishMessages()
	return nil
}

func (s *Session) acquire() bool {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return false
	}
	s.busy = true
	s.mu.Unlock()

	s.publish(Update{Kind: BusyChanged, Busy: true})
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()

	s.publish(Update{Kind: BusyChanged, Busy: false})
}

// turn carries the per-request state of SubmitTurn
type turn struct {
	text        string
	attachments []chat.Attachment
	model       string
	autoMode    bool
	placeholder string
	newChat     bool
}

// SubmitTurn sends one user turn and streams the reply into the
// conversation. It returns once the reply is complete, failed or ctx is
// cancelled. A failed turn leaves an error message in place of the reply.
func (s *Session) SubmitTurn(ctx context.Context, text string, attachments []chat.Attachment, selector string) error {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return ErrEmptyTurn
	}
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()

	t := s.prepare(text, attachments, selector)

	s.ensureChat(ctx, &t)

	final, err := s.stream(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Debug("Turn cancelled", "error", err)
			return ctx.Err()
		}
		s.fail(t, err)
		return err
	}

	s.persist(ctx, t, final)
	return nil
}

// prepare appends the user message and the loading placeholder
func (s *Session) prepare(text string, attachments []chat.Attachment, selector string) turn {
	models := s.cfg.Models
	name := selector
	if name == "" {
		name = models.Default
	}
	if name == "" {
		name = models.AutoAlias
	}
	model, autoMode := models.Resolve(selector)

	if len(attachments) > 0 && !models.SupportsVision(name) {
		s.log.Warn("Model does not accept attachments, dropping them", "model", name, "count", len(attachments))
		attachments = nil
	}

	user := chat.NewUserMessage(text, attachments...)
	placeholder := chat.NewPlaceholder()

	s.mu.Lock()
	s.messages = append(s.messages, user, placeholder)
	s.mu.Unlock()
	s.publishMessages()

	return turn{
		text:        text,
		attachments: attachments,
		model:       model,
		autoMode:    autoMode,
		placeholder: placeholder.ID,
	}
}

// ensureChat creates the stored chat on the first turn of a conversation.
// When the store cannot create it the turn still streams, unsaved and
// untitled.
func (s *Session) ensureChat(ctx context.Context, t *turn) {
	if s.store == nil || s.ChatID() != "" {
		return
	}

	c, err := s.store.CreateChat(ctx, store.DefaultChatTitle)
	if err != nil {
		s.log.Error("Failed to create chat, reply will not be saved", "error", err)
		return
	}

	s.mu.Lock()
	s.chatID = c.ID
	s.title = c.Title
	s.mu.Unlock()
	t.newChat = true

	s.log.Debug("Created chat", "chat_id", c.ID)
	s.publish(Update{Kind: ChatsChanged, ChatID: c.ID})
}

// history is what the model sees: the conversation before the placeholder
func (s *Session) history() []chat.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return []chat.HistoryEntry{}
	}
	return chat.History(s.messages[:len(s.messages)-1])
}

func (s *Session) stream(ctx context.Context, t turn) (chat.Message, error) {
	body, err := s.gen.GenerateStream(ctx, backend.GenerateRequest{
		Model:    t.model,
		Prompt:   t.text,
		Messages: s.history(),
		AutoMode: t.autoMode,
		Images:   t.attachments,
	})
	if err != nil {
		return chat.Message{}, err
	}
	defer body.Close()

	placeholder, _ := s.message(t.placeholder)
	asm := chat.NewAssembler(placeholder, s.cfg.Stream.NoDiagramSentinel)
	reader := stream.NewReader(body, s.cfg.Stream.ReadBuffer)

	for {
		events, err := reader.Next()
		if len(events) > 0 {
			applyErr := asm.ApplyAll(events)
			if applyErr != nil && !errors.Is(applyErr, chat.ErrFinalized) {
				return chat.Message{}, applyErr
			}
			s.replace(t.placeholder, asm.Message())
			s.publishMessages()
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return chat.Message{}, fmt.Errorf("failed to read stream: %w", err)
		}
		if asm.Finalized() {
			break
		}
	}

	final := asm.Finalize()
	s.replace(t.placeholder, final)
	s.publishMessages()

	stats := asm.Stats()
	s.log.Debug("Turn complete",
		"tokens", stats.Tokens,
		"two_step", final.IsTwoStep,
		"is_error", final.IsError)
	return final, nil
}

// fail swaps the placeholder for the turn error message
func (s *Session) fail(t turn, err error) {
	s.log.Error("Turn failed", "model", t.model, "error", err)

	msg := chat.NewErrorMessage(s.cfg.Messages.TurnError)
	msg.ID = t.placeholder
	s.replace(t.placeholder, msg)
	s.publishMessages()
}

// persist saves the finished turn and starts title generation for a new
// chat. Storage failures are logged and do not undo the reply.
func (s *Session) persist(ctx context.Context, t turn, final chat.Message) {
	chatID := s.ChatID()
	if s.store == nil || chatID == "" {
		return
	}

	images := make([]string, 0, len(t.attachments))
	for _, a := range t.attachments {
		images = append(images, a.Name)
	}

	if _, err := s.store.CreateMessage(ctx, chatID, store.NewMessage{
		Role:    chat.RoleUser,
		Content: t.text,
		Images:  images,
	}); err != nil {
		s.log.Error("Failed to save user message", "chat_id", chatID, "error", err)
	}

	content, collapsible := chat.Serialize(final)
	saved, err := s.store.CreateMessage(ctx, chatID, store.NewMessage{
		Role:          chat.RoleAssistant,
		Content:       content,
		IsError:       final.IsError,
		IsCollapsible: collapsible,
		Images:        []string{},
	})
	if err != nil {
		s.log.Error("Failed to save assistant message", "chat_id", chatID, "error", err)
	} else {
		s.setServerID(t.placeholder, saved.ID)
		s.saveCodes(ctx, saved.ID, final)
	}

	s.publish(Update{Kind: ChatsChanged, ChatID: chatID})

	if t.newChat {
		s.titles.Add(1)
		go func() {
			defer s.titles.Done()
			s.generateTitle(context.WithoutCancel(ctx), chatID, t)
		}()
	}
}

func (s *Session) saveCodes(ctx context.Context, messageID string, final chat.Message) {
	blocks := fence.CompleteBlocks(final.FinalText())
	for i, block := range blocks {
		_, err := s.store.CreateCode(ctx, messageID, store.NewCode{
			Language: block.Language,
			Content:  block.Content,
			Name:     artifacts.Name(block.Language, block.Content, i+1),
		})
		if err != nil {
			s.log.Warn("Failed to save generated code", "message_id", messageID, "error", err)
			return
		}
	}
}

func (s *Session) message(id string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg.Clone(), true
		}
	}
	return chat.Message{}, false
}

func (s *Session) replace(id string, msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i] = msg
			return
		}
	}
}

func (s *Session) setServerID(id, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].ServerID = serverID
			return
		}
	}
}
