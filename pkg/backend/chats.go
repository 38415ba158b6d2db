package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/killallgit/genesis/pkg/store"
)

// ChatStore is a store.Store served by the backend's chat REST API
type ChatStore struct {
	client *Client
}

// NewChatStore persists chats through the client's backend
func NewChatStore(client *Client) *ChatStore {
	return &ChatStore{client: client}
}

func (s *ChatStore) CreateChat(ctx context.Context, title string) (*store.Chat, error) {
	if title == "" {
		title = store.DefaultChatTitle
	}
	var resp struct {
		Chat *store.Chat `json:"chat"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/chats", map[string]string{"title": title}, &resp); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return requireChat(resp.Chat)
}

func (s *ChatStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	var resp struct {
		Chat *store.Chat `json:"chat"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", id, err)
	}
	return requireChat(resp.Chat)
}

func (s *ChatStore) ListChats(ctx context.Context) ([]store.Chat, error) {
	var resp struct {
		Chats []store.Chat `json:"chats"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/chats", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	if resp.Chats == nil {
		resp.Chats = []store.Chat{}
	}
	return resp.Chats, nil
}

func (s *ChatStore) UpdateChatTitle(ctx context.Context, id, title string) (*store.Chat, error) {
	var resp struct {
		Chat *store.Chat `json:"chat"`
	}
	if err := s.do(ctx, http.MethodPut, "/api/chats/"+url.PathEscape(id), map[string]string{"title": title}, &resp); err != nil {
		return nil, fmt.Errorf("failed to update chat %s: %w", id, err)
	}
	return requireChat(resp.Chat)
}

func (s *ChatStore) SetPinned(ctx context.Context, id string, pinned bool) (*store.Chat, error) {
	var resp struct {
		Chat *store.Chat `json:"chat"`
	}
	if err := s.do(ctx, http.MethodPatch, "/api/chats/"+url.PathEscape(id)+"/pin", map[string]bool{"pinned": pinned}, &resp); err != nil {
		return nil, fmt.Errorf("failed to pin chat %s: %w", id, err)
	}
	return requireChat(resp.Chat)
}

func (s *ChatStore) DeleteChat(ctx context.Context, id string) error {
	if err := s.do(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	return nil
}

func (s *ChatStore) CreateMessage(ctx context.Context, chatID string, msg store.NewMessage) (*store.Message, error) {
	if msg.Images == nil {
		msg.Images = []string{}
	}
	var resp struct {
		Data *store.Message `json:"data"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/messages", msg, &resp); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("failed to create message: empty response")
	}
	return resp.Data, nil
}

func (s *ChatStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID)+"/messages", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if resp.Messages == nil {
		resp.Messages = []store.Message{}
	}
	return resp.Messages, nil
}

func (s *ChatStore) CreateCode(ctx context.Context, messageID string, code store.NewCode) (*store.Code, error) {
	var resp struct {
		Code *store.Code `json:"code"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(messageID)+"/codes", code, &resp); err != nil {
		return nil, fmt.Errorf("failed to save code: %w", err)
	}
	if resp.Code == nil {
		return nil, fmt.Errorf("failed to save code: empty response")
	}
	return resp.Code, nil
}

// do sends a JSON request and decodes the JSON answer into out. A 404
// wraps store.ErrNotFound; other failures become a *StatusError.
func (s *ChatStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.client.authorize(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: errorMessage(data)}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", store.ErrNotFound, statusErr)
		}
		return statusErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func requireChat(c *store.Chat) (*store.Chat, error) {
	if c == nil {
		return nil, fmt.Errorf("backend returned no chat")
	}
	return c, nil
}

var _ store.Store = (*ChatStore)(nil)
