package database

import "time"

type User struct {
	Id        string
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
}

type Connection struct {
	Id         string
	SenderId   string
	ReceiverId string
	Status     string
	CreatedAt  time.Time
}

const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
	ConnectionRejected = "rejected"
)

type Conversation struct {
	Id             string
	ParticipantA   string
	ParticipantB   string
	UserLo         string
	UserHi         string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

type Message struct {
	Id             int64
	ConversationId string
	SenderId       string
	Content        string
	Read           bool
	CreatedAt      time.Time
}

// ConversationSummary is a conversation joined with its newest message.
// LastMessage is nil for a conversation without messages.
type ConversationSummary struct {
	Conversation
	LastMessage *Message
	UnreadCount int
}

type Stats struct {
	Conversations int
	Messages      int
}

type CreateConversationParams struct {
	Id           string
	ParticipantA string
	ParticipantB string
	UserLo       string
	UserHi       string
	CreatedAt    time.Time
}

type CreateMessageParams struct {
	ConversationId string
	SenderId       string
	Content        string
	CreatedAt      time.Time
}

type UpsertUserParams struct {
	Id    string
	Name  string
	Email string
	Role  string
}

type UpsertConnectionParams struct {
	Id         string
	SenderId   string
	ReceiverId string
	Status     string
}
