package messaging

import (
	"errors"

	"github.com/npezzotti/go-alumnichat/internal/types"
)

type EventKind string

const (
	EventMessageCreated      EventKind = "message_created"
	EventMessageDeleted      EventKind = "message_deleted"
	EventConversationDeleted EventKind = "conversation_deleted"
)

// Event is published to the room named by ConversationId. Message is set
// for message_created, MessageId for message_deleted.
type Event struct {
	Kind           EventKind
	ConversationId string
	Message        *types.Message
	MessageId      int64
}

var ErrFanOutUnavailable = errors.New("fan-out unavailable")

// Subscriber is a live connection that can be placed in rooms. Deliver must
// not block; it reports false when the event was dropped.
type Subscriber interface {
	SubscriberId() string
	Deliver(ev Event) bool
}

type Publisher interface {
	Publish(room string, ev Event) error
}

type FanOut interface {
	Publisher
	Join(room string, sub Subscriber)
	Leave(room string, sub Subscriber)
}
