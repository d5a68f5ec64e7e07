package call

import (
	"strconv"
	"sync"
)

// ChatEntry is one line of the call's chat.
type ChatEntry struct {
	Seq       uint64
	UserID    string
	Message   string
	Timestamp string
}

// key identifies an entry for deduplication. The server's per-room sequence
// number wins; lines from servers that do not issue one fall back to the
// sender, text and timestamp.
func (e ChatEntry) key() string {
	if e.Seq > 0 {
		return "#" + strconv.FormatUint(e.Seq, 10)
	}
	return e.UserID + "|" + e.Message + "|" + e.Timestamp
}

// Transcript is the ordered, deduplicated chat history of a call.
type Transcript struct {
	mu      sync.Mutex
	entries []ChatEntry
	seen    map[string]struct{}
}

func NewTranscript() *Transcript {
	return &Transcript{seen: make(map[string]struct{})}
}

// Add appends e unless an entry with the same identity is already present.
// It reports whether e was added.
func (t *Transcript) Add(e ChatEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := e.key()
	if _, dup := t.seen[k]; dup {
		return false
	}
	t.seen[k] = struct{}{}
	t.entries = append(t.entries, e)
	return true
}

// Entries returns a copy of the history in arrival order.
func (t *Transcript) Entries() []ChatEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ChatEntry(nil), t.entries...)
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
