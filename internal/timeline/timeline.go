// Package timeline merges the two delivery paths of a conversation, REST
// history and live websocket events, into one ordered list of messages.
//
// Every producer feeds the same Timeline and the Timeline deduplicates by
// message id, so a sender that sees its own message both as the append
// response and as the room echo keeps a single copy.
package timeline

import (
	"sort"
	"sync"

	"github.com/npezzotti/go-alumnichat/internal/types"
)

type Timeline struct {
	mu             sync.RWMutex
	conversationId string
	messages       []types.Message
	ids            map[int64]struct{}

	// applied holds ids inserted while a Sync fetch is in flight.
	applied map[int64]struct{}
}

func New(conversationId string) *Timeline {
	return &Timeline{
		conversationId: conversationId,
		ids:            make(map[int64]struct{}),
	}
}

func (t *Timeline) ConversationId() string {
	return t.conversationId
}

// Apply inserts m unless a message with the same id is already present or
// m belongs to another conversation. It reports whether m was inserted.
func (t *Timeline) Apply(m types.Message) bool {
	if m.ConversationId != t.conversationId {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.insert(m)
}

func (t *Timeline) insert(m types.Message) bool {
	if _, ok := t.ids[m.Id]; ok {
		return false
	}
	if t.applied != nil {
		t.applied[m.Id] = struct{}{}
	}

	i := sort.Search(len(t.messages), func(i int) bool {
		return less(m, t.messages[i])
	})
	t.messages = append(t.messages, types.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = m
	t.ids[m.Id] = struct{}{}

	return true
}

// Remove drops the message with the given id. It reports whether the
// message was present.
func (t *Timeline) Remove(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ids[id]; !ok {
		return false
	}

	for i := range t.messages {
		if t.messages[i].Id == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			break
		}
	}
	delete(t.ids, id)
	delete(t.applied, id)

	return true
}

// Reconcile replaces the timeline with a freshly fetched history. The
// store is authoritative: anything missing from history is dropped.
func (t *Timeline) Reconcile(history []types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reconcile(history, nil)
}

// Sync reconciles the timeline with the history returned by fetch. Messages
// applied while fetch runs, such as a concurrent send, may be newer than
// the fetched history and are kept. When fetch fails the timeline is left
// unchanged.
func (t *Timeline) Sync(fetch func() ([]types.Message, error)) error {
	t.mu.Lock()
	t.applied = make(map[int64]struct{})
	t.mu.Unlock()

	history, err := fetch()

	t.mu.Lock()
	defer t.mu.Unlock()

	applied := t.applied
	t.applied = nil
	if err != nil {
		return err
	}

	t.reconcile(history, applied)
	return nil
}

func (t *Timeline) reconcile(history []types.Message, keep map[int64]struct{}) {
	live := t.messages
	t.messages = make([]types.Message, 0, len(history)+len(keep))
	t.ids = make(map[int64]struct{}, len(history)+len(keep))

	for _, m := range history {
		if m.ConversationId == t.conversationId {
			t.insert(m)
		}
	}
	for _, m := range live {
		if _, ok := keep[m.Id]; ok {
			t.insert(m)
		}
	}
}

// Messages returns a copy of the timeline in display order.
func (t *Timeline) Messages() []types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = nil
	t.ids = make(map[int64]struct{})
}

// less orders by creation time, breaking ties by id.
func less(a, b types.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Id < b.Id
}
