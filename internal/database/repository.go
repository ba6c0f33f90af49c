package database

import (
	"context"
	"errors"
)

// ErrConflict is returned when an insert loses a race against a concurrent
// insert of the same unique key.
var ErrConflict = errors.New("unique constraint conflict")

type MessagingRepository interface {
	Ping() error
	GetUser(ctx context.Context, id string) (User, error)
	HasAcceptedConnection(ctx context.Context, a, b string) (bool, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	FindConversationByPair(ctx context.Context, userLo, userHi string) (Conversation, error)
	CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error)
	ListConversationsForUser(ctx context.Context, userId string) ([]ConversationSummary, error)
	ListAllConversations(ctx context.Context, search string) ([]ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessage(ctx context.Context, id int64) (Message, error)
	ListMessages(ctx context.Context, conversationId string) ([]Message, error)
	MarkMessagesRead(ctx context.Context, conversationId, readerId string) (int64, error)
	DeleteMessage(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (Stats, error)
}

// FixtureRepository writes the collaborator-owned tables. It is only used to
// load development fixtures.
type FixtureRepository interface {
	UpsertUser(ctx context.Context, params UpsertUserParams) (User, error)
	UpsertConnection(ctx context.Context, params UpsertConnectionParams) (Connection, error)
}
