package messaging

import (
	"context"
	"database/sql"
	"errors"

	"github.com/npezzotti/go-alumnichat/internal/database"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

type IdentityProvider interface {
	GetUser(ctx context.Context, id string) (database.User, error)
}

// enricher attaches public identities to conversations and messages. It
// caches lookups for the lifetime of a single call.
type enricher struct {
	identity  IdentityProvider
	withEmail bool
	cache     map[string]*types.User
}

func newEnricher(identity IdentityProvider, withEmail bool) *enricher {
	return &enricher{
		identity:  identity,
		withEmail: withEmail,
		cache:     make(map[string]*types.User),
	}
}

func (e *enricher) user(ctx context.Context, id string) (*types.User, error) {
	if u, ok := e.cache[id]; ok {
		return u, nil
	}

	dbUser, err := e.identity.GetUser(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// users may be removed by their owning service
		u := &types.User{Id: id, Name: "Unknown user"}
		e.cache[id] = u
		return u, nil
	case err != nil:
		return nil, Internal("lookup user", err)
	}

	u := &types.User{
		Id:   dbUser.Id,
		Name: dbUser.Name,
		Role: dbUser.Role,
	}
	if e.withEmail {
		u.Email = dbUser.Email
	}
	e.cache[id] = u

	return u, nil
}

func (e *enricher) conversation(ctx context.Context, c database.Conversation) (types.Conversation, error) {
	a, err := e.user(ctx, c.ParticipantA)
	if err != nil {
		return types.Conversation{}, err
	}
	b, err := e.user(ctx, c.ParticipantB)
	if err != nil {
		return types.Conversation{}, err
	}

	return types.Conversation{
		Id:             c.Id,
		Participants:   []types.User{*a, *b},
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
	}, nil
}

func (e *enricher) summaries(ctx context.Context, in []database.ConversationSummary) ([]types.ConversationSummary, error) {
	out := make([]types.ConversationSummary, 0, len(in))
	for _, s := range in {
		conv, err := e.conversation(ctx, s.Conversation)
		if err != nil {
			return nil, err
		}

		// a conversation without messages reports when it was opened
		at := conv.CreatedAt
		summary := types.ConversationSummary{
			Conversation:  conv,
			LastMessageAt: &at,
			UnreadCount:   s.UnreadCount,
		}
		if s.LastMessage != nil {
			at = s.LastMessage.CreatedAt
			summary.LastMessageText = s.LastMessage.Content
		}
		out = append(out, summary)
	}

	return out, nil
}

func (e *enricher) message(ctx context.Context, m database.Message) (types.Message, error) {
	sender, err := e.user(ctx, m.SenderId)
	if err != nil {
		return types.Message{}, err
	}

	return types.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Sender:         sender,
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func (e *enricher) messages(ctx context.Context, in []database.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(in))
	for _, m := range in {
		msg, err := e.message(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}

	return out, nil
}
