package server

import (
	"github.com/npezzotti/go-alumnichat/internal/messaging"
)

// Room is the set of live subscribers of one conversation. It is only
// touched by the hub goroutine.
type Room struct {
	id          string
	subscribers map[string]messaging.Subscriber
}

func newRoom(id string) *Room {
	return &Room{
		id:          id,
		subscribers: make(map[string]messaging.Subscriber),
	}
}

func (r *Room) add(sub messaging.Subscriber) {
	r.subscribers[sub.SubscriberId()] = sub
}

func (r *Room) remove(subId string) {
	delete(r.subscribers, subId)
}

func (r *Room) empty() bool {
	return len(r.subscribers) == 0
}

func (r *Room) broadcast(ev messaging.Event) (delivered, dropped int) {
	for _, sub := range r.subscribers {
		if sub.Deliver(ev) {
			delivered++
		} else {
			dropped++
		}
	}

	return delivered, dropped
}
