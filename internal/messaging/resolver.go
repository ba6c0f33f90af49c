package messaging

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-alumnichat/internal/database"
	"github.com/npezzotti/go-alumnichat/internal/stats"
)

const maxResolveAttempts = 3

type ConversationStore interface {
	FindConversationByPair(ctx context.Context, userLo, userHi string) (database.Conversation, error)
	CreateConversation(ctx context.Context, params database.CreateConversationParams) (database.Conversation, error)
}

// PairKey returns the canonical (lo, hi) ordering of two user ids.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Resolver maps an unordered pair of users to their single conversation,
// creating it on first use.
type Resolver struct {
	store ConversationStore
	stats stats.StatsProvider
	now   func() time.Time
	newId func() string
}

func NewResolver(store ConversationStore, su stats.StatsProvider) *Resolver {
	return &Resolver{
		store: store,
		stats: su,
		now:   now,
		newId: uuid.NewString,
	}
}

// Resolve returns the conversation between a and b. Losing a creation race
// against a concurrent caller returns the winner's conversation.
func (r *Resolver) Resolve(ctx context.Context, a, b string) (database.Conversation, error) {
	if a == b {
		return database.Conversation{}, ErrSelfConversation
	}

	lo, hi := PairKey(a, b)
	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		conv, err := r.store.FindConversationByPair(ctx, lo, hi)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return database.Conversation{}, Internal("find conversation", err)
		}

		ts := r.now()
		conv, err = r.store.CreateConversation(ctx, database.CreateConversationParams{
			Id:           r.newId(),
			ParticipantA: a,
			ParticipantB: b,
			UserLo:       lo,
			UserHi:       hi,
			CreatedAt:    ts,
		})
		if err == nil {
			r.stats.Incr(stats.ConversationsCreated)
			return conv, nil
		}
		if !errors.Is(err, database.ErrConflict) {
			return database.Conversation{}, Internal("create conversation", err)
		}
		lastErr = err
	}

	return database.Conversation{}, Wrap(CodeConflict, "conversation could not be resolved", lastErr)
}

func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
