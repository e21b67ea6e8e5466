package engine

import (
	"sync"
	"time"

	"labengine/internal/model"
)

// maxConsoleEntries caps the per-instance console ring. Older entries are
// dropped once the cap is reached.
const maxConsoleEntries = 500

// subscriberBufferSize is the channel buffer for each console subscriber.
// Entries are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// ConsoleBroker holds the per-instance console audit trail and streams new
// entries to subscribers. It is safe for concurrent use.
//
// Closed topics are retained so that the snapshot stays readable after an
// instance terminates and late subscribers receive a closed channel instead
// of blocking forever.
type ConsoleBroker struct {
	mu     sync.Mutex
	topics map[string]*consoleTopic
}

type consoleTopic struct {
	entries []model.ConsoleLogEntry
	subs    map[int]chan model.ConsoleLogEntry
	nextID  int
	closed  bool
}

// NewConsoleBroker creates an empty console broker.
func NewConsoleBroker() *ConsoleBroker {
	return &ConsoleBroker{
		topics: make(map[string]*consoleTopic),
	}
}

// Append records a console entry for the given instance and fans it out to
// subscribers. Appends after Close are dropped.
func (b *ConsoleBroker) Append(instanceID, entryType, message string) {
	entry := model.ConsoleLogEntry{
		Timestamp: time.Now().UTC(),
		Type:      entryType,
		Message:   message,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok {
		t = newConsoleTopic()
		b.topics[instanceID] = t
	}
	if t.closed {
		return
	}

	if len(t.entries) == maxConsoleEntries {
		copy(t.entries, t.entries[1:])
		t.entries[len(t.entries)-1] = entry
	} else {
		t.entries = append(t.entries, entry)
	}

	for _, ch := range t.subs {
		select {
		case ch <- entry:
		default:
			// Drop for slow subscribers to avoid blocking the writer.
		}
	}
}

// Snapshot returns a copy of the instance's console entries, oldest first.
// Reads never block writers beyond the copy.
func (b *ConsoleBroker) Snapshot(instanceID string) []model.ConsoleLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok {
		return nil
	}
	out := make([]model.ConsoleLogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Subscribe returns a channel receiving future console entries for the given
// instance and an unsubscribe function. If the instance has already
// terminated, the returned channel is immediately closed.
func (b *ConsoleBroker) Subscribe(instanceID string) (<-chan model.ConsoleLogEntry, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok {
		t = newConsoleTopic()
		b.topics[instanceID] = t
	}

	ch := make(chan model.ConsoleLogEntry, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Close marks the instance's console as finished. Subscriber channels are
// closed and future Subscribe calls return a closed channel; the snapshot
// remains readable.
func (b *ConsoleBroker) Close(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok {
		t = newConsoleTopic()
		b.topics[instanceID] = t
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

func newConsoleTopic() *consoleTopic {
	return &consoleTopic{subs: make(map[int]chan model.ConsoleLogEntry)}
}
