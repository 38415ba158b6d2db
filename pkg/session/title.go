package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/genesis/pkg/backend"
	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/stream"
)

// generateTitle names a new chat after its first request. Short requests
// are their own title; longer ones are summarized by the model, falling
// back to their first words.
func (s *Session) generateTitle(ctx context.Context, chatID string, t turn) {
	maxWords := s.cfg.Title.MaxWords
	if maxWords <= 0 {
		maxWords = 4
	}

	title := strings.TrimSpace(t.text)
	if chat.WordCount(t.text) > maxWords {
		summary, err := s.summarize(ctx, t.model, t.text, maxWords)
		if err != nil {
			s.log.Warn("Title generation failed, using the request text", "chat_id", chatID, "error", err)
			summary = chat.FirstWords(t.text, maxWords)
		}
		title = summary
	}
	if title == "" {
		title = chat.FirstWords(t.text, maxWords)
	}

	if _, err := s.store.UpdateChatTitle(ctx, chatID, title); err != nil {
		s.log.Warn("Failed to save chat title", "chat_id", chatID, "error", err)
	} else {
		s.mu.Lock()
		if s.chatID == chatID {
			s.title = title
		}
		s.mu.Unlock()
		s.publish(Update{Kind: TitleChanged, ChatID: chatID, Title: title})
	}

	s.publish(Update{Kind: ChatsChanged, ChatID: chatID})
}

// summarize asks the model for a short title of text
func (s *Session) summarize(ctx context.Context, model, text string, maxWords int) (string, error) {
	template := s.cfg.Title.PromptTemplate
	if !strings.Contains(template, "%s") {
		template += "\n\n\"%s\""
	}

	body, err := s.gen.GenerateStream(ctx, backend.GenerateRequest{
		Model:    model,
		Prompt:   fmt.Sprintf(template, text),
		Messages: []chat.HistoryEntry{},
		AutoMode: false,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var b strings.Builder
	reader := stream.NewReader(body, s.cfg.Stream.ReadBuffer)
	for {
		events, err := reader.Next()
		for _, ev := range events {
			if ev.Kind == stream.KindToken {
				b.WriteString(ev.Payload)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read title stream: %w", err)
		}
	}

	title := chat.FirstWords(cleanTitle(b.String()), maxWords)
	if title == "" {
		return "", errors.New("model returned an empty title")
	}
	return title, nil
}

// cleanTitle trims whitespace and one pair of surrounding quotes
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimSuffix(s, "'")
	return strings.TrimSpace(s)
}
