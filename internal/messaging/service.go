package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-alumnichat/internal/database"
	"github.com/npezzotti/go-alumnichat/internal/stats"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

const DefaultMaxMessageLength = 2000

type Option func(*Service)

func WithMaxMessageLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// WithOracle replaces the relationship oracle, which defaults to the
// repository.
func WithOracle(oracle RelationshipOracle) Option {
	return func(s *Service) {
		s.gate = NewGate(oracle)
	}
}

// WithIdentityProvider replaces the identity provider, which defaults to
// the repository.
func WithIdentityProvider(identity IdentityProvider) Option {
	return func(s *Service) {
		s.identity = identity
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.now = clock
		s.resolver.now = clock
	}
}

// Service is the conversation and message facade. Every operation runs on
// behalf of an authenticated Actor.
type Service struct {
	logger    *log.Logger
	repo      database.MessagingRepository
	identity  IdentityProvider
	gate      *Gate
	resolver  *Resolver
	publisher Publisher
	stats     stats.StatsProvider
	maxLength int
	now       func() time.Time
}

func NewService(logger *log.Logger, repo database.MessagingRepository, publisher Publisher, su stats.StatsProvider, opts ...Option) *Service {
	if su == nil {
		su = stats.Nop{}
	}

	s := &Service{
		logger:    logger,
		repo:      repo,
		identity:  repo,
		gate:      NewGate(repo),
		resolver:  NewResolver(repo, su),
		publisher: publisher,
		stats:     su,
		maxLength: DefaultMaxMessageLength,
		now:       now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ListConversations returns the actor's conversations, most recently
// active first.
func (s *Service) ListConversations(ctx context.Context, actor Actor) ([]types.ConversationSummary, error) {
	rows, err := s.repo.ListConversationsForUser(ctx, actor.ID)
	if err != nil {
		return nil, Internal("list conversations", err)
	}

	return newEnricher(s.identity, false).summaries(ctx, rows)
}

// StartConversation returns the conversation between the actor and target,
// creating it when the pair has never talked.
func (s *Service) StartConversation(ctx context.Context, actor Actor, target string) (types.Conversation, error) {
	if actor.ID == target {
		return types.Conversation{}, ErrSelfConversation
	}

	if err := s.authorize(ctx, actor, target); err != nil {
		return types.Conversation{}, err
	}

	if err := s.requireTarget(ctx, actor, target); err != nil {
		return types.Conversation{}, err
	}

	conv, err := s.resolver.Resolve(ctx, actor.ID, target)
	if err != nil {
		return types.Conversation{}, err
	}

	return newEnricher(s.identity, false).conversation(ctx, conv)
}

// GetHistory returns every message of a conversation in chronological
// order. Only participants and privileged actors may read it.
func (s *Service) GetHistory(ctx context.Context, actor Actor, conversationId string) ([]types.Message, error) {
	conv, err := s.getConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	if !isParticipant(conv, actor.ID) && !actor.IsPrivileged() {
		s.stats.Incr(stats.AuthorizationDenied)
		return nil, Forbidden("you are not a participant in this conversation")
	}

	msgs, err := s.repo.ListMessages(ctx, conv.Id)
	if err != nil {
		return nil, Internal("list messages", err)
	}

	return newEnricher(s.identity, actor.IsPrivileged()).messages(ctx, msgs)
}

// AppendToConversation posts content into an existing conversation. The
// sender must be a participant and still connected to the other one.
func (s *Service) AppendToConversation(ctx context.Context, actor Actor, conversationId, content string) (types.Message, error) {
	if err := s.validateContent(content); err != nil {
		return types.Message{}, err
	}

	conv, err := s.getConversation(ctx, conversationId)
	if err != nil {
		return types.Message{}, err
	}

	if !isParticipant(conv, actor.ID) {
		s.stats.Incr(stats.AuthorizationDenied)
		return types.Message{}, Forbidden("you are not a participant in this conversation")
	}

	if err := s.authorize(ctx, actor, counterpart(conv, actor.ID)); err != nil {
		return types.Message{}, err
	}

	return s.append(ctx, actor, conv.Id, content)
}

// AppendToUser posts content to the conversation with target, creating the
// conversation if needed.
func (s *Service) AppendToUser(ctx context.Context, actor Actor, target, content string) (types.Message, error) {
	if actor.ID == target {
		return types.Message{}, ErrSelfConversation
	}

	if err := s.validateContent(content); err != nil {
		return types.Message{}, err
	}

	if err := s.authorize(ctx, actor, target); err != nil {
		return types.Message{}, err
	}

	if err := s.requireTarget(ctx, actor, target); err != nil {
		return types.Message{}, err
	}

	conv, err := s.resolver.Resolve(ctx, actor.ID, target)
	if err != nil {
		return types.Message{}, err
	}

	return s.append(ctx, actor, conv.Id, content)
}

// MarkRead flags the messages the actor received in a conversation as read
// and returns how many changed.
func (s *Service) MarkRead(ctx context.Context, actor Actor, conversationId string) (int64, error) {
	conv, err := s.getConversation(ctx, conversationId)
	if err != nil {
		return 0, err
	}

	if !isParticipant(conv, actor.ID) {
		return 0, Forbidden("you are not a participant in this conversation")
	}

	n, err := s.repo.MarkMessagesRead(ctx, conv.Id, actor.ID)
	if err != nil {
		return 0, Internal("mark messages read", err)
	}

	return n, nil
}

// ListAllConversations returns every conversation for moderation, filtered
// by participant name or email when search is not empty.
func (s *Service) ListAllConversations(ctx context.Context, actor Actor, search string) ([]types.ConversationSummary, error) {
	if err := requirePrivileged(actor); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListAllConversations(ctx, search)
	if err != nil {
		return nil, Internal("list all conversations", err)
	}

	return newEnricher(s.identity, true).summaries(ctx, rows)
}

// DeleteConversation removes a conversation with all of its messages.
func (s *Service) DeleteConversation(ctx context.Context, actor Actor, conversationId string) error {
	if err := requirePrivileged(actor); err != nil {
		return err
	}

	if err := s.repo.DeleteConversation(ctx, conversationId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("conversation not found")
		}
		return Internal("delete conversation", err)
	}

	s.logger.Printf("moderation: %s deleted conversation %s", actor.ID, conversationId)
	s.publish(conversationId, Event{
		Kind:           EventConversationDeleted,
		ConversationId: conversationId,
	})

	return nil
}

func (s *Service) DeleteMessage(ctx context.Context, actor Actor, messageId int64) error {
	if err := requirePrivileged(actor); err != nil {
		return err
	}

	msg, err := s.repo.GetMessage(ctx, messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("message not found")
		}
		return Internal("get message", err)
	}

	if err := s.repo.DeleteMessage(ctx, messageId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("message not found")
		}
		return Internal("delete message", err)
	}

	s.logger.Printf("moderation: %s deleted message %d in conversation %s", actor.ID, messageId, msg.ConversationId)
	s.publish(msg.ConversationId, Event{
		Kind:           EventMessageDeleted,
		ConversationId: msg.ConversationId,
		MessageId:      messageId,
	})

	return nil
}

func (s *Service) Stats(ctx context.Context, actor Actor) (types.Stats, error) {
	if err := requirePrivileged(actor); err != nil {
		return types.Stats{}, err
	}

	st, err := s.repo.GetStats(ctx)
	if err != nil {
		return types.Stats{}, Internal("get stats", err)
	}

	return types.Stats{Conversations: st.Conversations, Messages: st.Messages}, nil
}

// AuthorizeRoomJoin reports whether actor may subscribe to the live room of
// a conversation.
func (s *Service) AuthorizeRoomJoin(ctx context.Context, actor Actor, conversationId string) error {
	conv, err := s.getConversation(ctx, conversationId)
	if err != nil {
		return err
	}

	if !isParticipant(conv, actor.ID) && !actor.IsPrivileged() {
		s.stats.Incr(stats.AuthorizationDenied)
		return Forbidden("you are not a participant in this conversation")
	}

	return nil
}

func (s *Service) append(ctx context.Context, actor Actor, conversationId, content string) (types.Message, error) {
	dbMsg, err := s.repo.CreateMessage(ctx, database.CreateMessageParams{
		ConversationId: conversationId,
		SenderId:       actor.ID,
		Content:        content,
		CreatedAt:      s.now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, NotFound("conversation not found")
		}
		return types.Message{}, Internal("create message", err)
	}
	s.stats.Incr(stats.MessagesAppended)

	msg, err := newEnricher(s.identity, false).message(ctx, dbMsg)
	if err != nil {
		// the message is committed; deliver it without the sender identity
		s.logger.Printf("enrich message %d: %v", dbMsg.Id, err)
		msg = types.Message{
			Id:             dbMsg.Id,
			ConversationId: dbMsg.ConversationId,
			SenderId:       dbMsg.SenderId,
			Content:        dbMsg.Content,
			Read:           dbMsg.Read,
			CreatedAt:      dbMsg.CreatedAt,
		}
	}

	published := msg
	s.publish(conversationId, Event{
		Kind:           EventMessageCreated,
		ConversationId: conversationId,
		Message:        &published,
	})

	return msg, nil
}

func (s *Service) publish(room string, ev Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(room, ev); err != nil {
		s.logger.Printf("publish %s to room %s: %v", ev.Kind, room, err)
	}
}

func (s *Service) authorize(ctx context.Context, actor Actor, counterpart string) error {
	ok, err := s.gate.Allowed(ctx, actor, counterpart)
	if err != nil {
		return Internal("check connection", err)
	}
	if !ok {
		s.stats.Incr(stats.AuthorizationDenied)
		return ErrForbidden
	}

	return nil
}

func (s *Service) getConversation(ctx context.Context, id string) (database.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Conversation{}, NotFound("conversation not found")
		}
		return database.Conversation{}, Internal("get conversation", err)
	}

	return conv, nil
}

func (s *Service) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return Validation(fmt.Sprintf("message content must be at most %d characters", s.maxLength))
	}

	return nil
}

// requireTarget checks that target exists when a privileged actor addresses
// it. The connection oracle is skipped for those actors, so nothing else
// would catch an unknown id before a conversation is created.
func (s *Service) requireTarget(ctx context.Context, actor Actor, target string) error {
	if !actor.IsPrivileged() {
		return nil
	}

	if _, err := s.identity.GetUser(ctx, target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("user not found")
		}
		return Internal("lookup user", err)
	}

	return nil
}

func requirePrivileged(actor Actor) error {
	if !actor.IsPrivileged() {
		return Forbidden("admin access required")
	}
	return nil
}

func isParticipant(c database.Conversation, userId string) bool {
	return c.ParticipantA == userId || c.ParticipantB == userId
}

func counterpart(c database.Conversation, userId string) string {
	if c.ParticipantA == userId {
		return c.ParticipantB
	}
	return c.ParticipantA
}
