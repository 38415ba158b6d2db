package session

import "github.com/killallgit/genesis/pkg/chat"

// UpdateKind says what changed in a session
type UpdateKind int

const (
	MessagesChanged UpdateKind = iota
	BusyChanged
	ChatsChanged
	TitleChanged
)

// String returns the string representation of the update kind
func (k UpdateKind) String() string {
	switch k {
	case MessagesChanged:
		return "messages_changed"
	case BusyChanged:
		return "busy_changed"
	case ChatsChanged:
		return "chats_changed"
	case TitleChanged:
		return "title_changed"
	default:
		return "unknown"
	}
}

// Update is a notification published to subscribers. Messages is a copy
// and is only set for MessagesChanged.
type Update struct {
	Kind     UpdateKind
	Messages []chat.Message
	Busy     bool
	ChatID   string
	Title    string
}

const subscriberBuffer = 64

// Subscribe returns a channel of session updates and a function that ends
// the subscription. A subscriber that falls behind loses its oldest
// pending updates, never the newest one.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Update, subscriberBuffer)
	s.subs[id] = ch

	var once bool
	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if once {
			return
		}
		once = true
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) publish(u Update) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		// Full: drop the oldest pending update to make room
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Session) publishMessages() {
	s.mu.Lock()
	u := Update{Kind: MessagesChanged, Messages: chat.CloneAll(s.messages), ChatID: s.chatID}
	s.mu.Unlock()
	s.publish(u)
}
