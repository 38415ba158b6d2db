package fence

import "sync"

// Memo caches parses per message so a growing message only rescans the
// text after its last closed fence. Results equal Parse.
type Memo struct {
	mu      sync.Mutex
	entries map[string]memoEntry
}

type memoEntry struct {
	prefix string
	stable []Segment
}

// NewMemo creates an empty cache
func NewMemo() *Memo {
	return &Memo{entries: make(map[string]memoEntry)}
}

// Parse returns the segments of text for the message id
func (m *Memo) Parse(id, text string) []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok || len(text) < len(entry.prefix) || text[:len(entry.prefix)] != entry.prefix {
		entry = memoEntry{}
	}

	tail, stable := scan(text, len(entry.prefix))
	segments := make([]Segment, 0, len(entry.stable)+len(tail))
	segments = append(segments, entry.stable...)
	segments = append(segments, tail...)

	if stable > 0 {
		end := len(entry.prefix)
		for _, s := range tail[:stable] {
			end += len(s.Raw)
		}
		entry.stable = append([]Segment(nil), segments[:len(entry.stable)+stable]...)
		entry.prefix = text[:end]
	}
	m.entries[id] = entry

	if len(segments) == 0 {
		return []Segment{textSegment(text)}
	}
	return segments
}

// Forget drops the cache for one message
func (m *Memo) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

// Len reports the number of cached messages
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reset drops all cached entries
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoEntry)
}
