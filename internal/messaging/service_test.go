package messaging

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-alumnichat/internal/database"
	"github.com/npezzotti/go-alumnichat/internal/stats"
	"github.com/npezzotti/go-alumnichat/internal/testutil"
	"github.com/npezzotti/go-alumnichat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	room  string
	event Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(room string, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{room: room, event: ev})
	return nil
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

var (
	alice = Actor{ID: "alice", Role: types.RoleStudent}
	bob   = Actor{ID: "bob", Role: types.RoleAlumni}
	carol = Actor{ID: "carol", Role: types.RoleStudent}
	dave  = Actor{ID: "dave", Role: types.RoleAlumni}
	admin = Actor{ID: "admin", Role: types.RoleAdmin}
)

type fixture struct {
	repo      *database.SQLRepository
	publisher *recordingPublisher
	svc       *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	repo, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate())

	ctx := context.Background()
	for _, a := range []Actor{alice, bob, carol, dave, admin} {
		_, err := repo.UpsertUser(ctx, database.UpsertUserParams{
			Id:    a.ID,
			Name:  strings.ToUpper(a.ID[:1]) + a.ID[1:],
			Email: a.ID + "@example.com",
			Role:  a.Role,
		})
		require.NoError(t, err)
	}

	_, err = repo.UpsertConnection(ctx, database.UpsertConnectionParams{
		Id: "ab", SenderId: "alice", ReceiverId: "bob", Status: database.ConnectionAccepted,
	})
	require.NoError(t, err)
	_, err = repo.UpsertConnection(ctx, database.UpsertConnectionParams{
		Id: "cd", SenderId: "carol", ReceiverId: "dave", Status: database.ConnectionPending,
	})
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	svc := NewService(testutil.TestLogger(t), repo, publisher, stats.Nop{}, opts...)

	return &fixture{repo: repo, publisher: publisher, svc: svc}
}

func TestConnectedUsersExchangeMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	require.Len(t, conv.Participants, 2)
	assert.Equal(t, "alice", conv.Participants[0].Id)
	assert.Equal(t, "Bob", conv.Participants[1].Name)
	assert.Equal(t, types.RoleAlumni, conv.Participants[1].Role)

	m1, err := f.svc.AppendToConversation(ctx, alice, conv.Id, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "alice", m1.SenderId)
	require.NotNil(t, m1.Sender)
	assert.Equal(t, "Alice", m1.Sender.Name)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, conv.Id, events[0].room)
	assert.Equal(t, EventMessageCreated, events[0].event.Kind)
	require.NotNil(t, events[0].event.Message)
	assert.Equal(t, m1, *events[0].event.Message)

	history, err := f.svc.GetHistory(ctx, bob, conv.Id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m1.Id, history[0].Id)
	assert.Equal(t, "Hello", history[0].Content)

	reversed, err := f.svc.StartConversation(ctx, bob, "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.Id, reversed.Id)

	list, err := f.svc.ListConversations(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hello", list[0].LastMessageText)
	assert.Equal(t, 1, list[0].UnreadCount)
}

func TestSummaryLastMessageAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	list, err := f.svc.ListConversations(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].LastMessageText)
	require.NotNil(t, list[0].LastMessageAt, "empty conversation falls back to its creation time")
	assert.WithinDuration(t, conv.CreatedAt, *list[0].LastMessageAt, time.Second)

	m, err := f.svc.AppendToConversation(ctx, alice, conv.Id, "hi")
	require.NoError(t, err)

	list, err = f.svc.ListConversations(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastMessageAt)
	assert.WithinDuration(t, m.CreatedAt, *list[0].LastMessageAt, time.Second)
}

func TestUnconnectedUsersAreDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AppendToUser(ctx, carol, "dave", "hi")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, CodeForbidden, CodeOf(err))

	_, err = f.svc.StartConversation(ctx, carol, "dave")
	assert.ErrorIs(t, err, ErrForbidden)

	list, err := f.svc.ListConversations(ctx, carol)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	st, err := f.repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.Stats{}, st)
	assert.Empty(t, f.publisher.Events())
}

func TestSelfConversationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartConversation(ctx, alice, "alice")
	assert.ErrorIs(t, err, ErrSelfConversation)

	_, err = f.svc.AppendToUser(ctx, alice, "alice", "note to self")
	assert.ErrorIs(t, err, ErrSelfConversation)

	_, err = f.svc.StartConversation(ctx, admin, "admin")
	assert.ErrorIs(t, err, ErrSelfConversation)

	st, err := f.repo.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Conversations)
}

func TestAppendToUserCreatesConversationOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1, err := f.svc.AppendToUser(ctx, alice, "bob", "first")
	require.NoError(t, err)
	m2, err := f.svc.AppendToUser(ctx, bob, "alice", "second")
	require.NoError(t, err)

	assert.Equal(t, m1.ConversationId, m2.ConversationId)
	assert.Greater(t, m2.Id, m1.Id)

	history, err := f.svc.GetHistory(ctx, alice, m1.ConversationId)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[1].Content)
	assert.Equal(t, "bob", history[1].SenderId)
	assert.False(t, history[1].CreatedAt.Before(history[0].CreatedAt))
}

func TestConcurrentStartYieldsOneConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor, target := alice, "bob"
			if i%2 == 1 {
				actor, target = bob, "alice"
			}
			conv, err := f.svc.StartConversation(ctx, actor, target)
			ids[i], errs[i] = conv.Id, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	st, err := f.repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Conversations)
}

func TestValidation(t *testing.T) {
	f := newFixture(t, WithMaxMessageLength(10))
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	tcases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "empty", content: "", wantErr: true},
		{name: "whitespace", content: " \n\t ", wantErr: true},
		{name: "too long", content: strings.Repeat("a", 11), wantErr: true},
		{name: "multibyte at limit", content: strings.Repeat("é", 10), wantErr: false},
		{name: "ok", content: "hi bob", wantErr: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AppendToConversation(ctx, alice, conv.Id, tc.content)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetHistoryAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.AppendToUser(ctx, alice, "bob", "private")
	require.NoError(t, err)

	tcases := []struct {
		name     string
		actor    Actor
		convId   string
		wantCode Code
	}{
		{name: "participant", actor: bob, convId: msg.ConversationId},
		{name: "privileged non participant", actor: admin, convId: msg.ConversationId},
		{name: "non participant", actor: carol, convId: msg.ConversationId, wantCode: CodeForbidden},
		{name: "unknown conversation", actor: alice, convId: "missing", wantCode: CodeNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			history, err := f.svc.GetHistory(ctx, tc.actor, tc.convId)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func TestAppendRecomputesGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	_, err = f.repo.UpsertConnection(ctx, database.UpsertConnectionParams{
		Id: "ab2", SenderId: "bob", ReceiverId: "alice", Status: database.ConnectionRejected,
	})
	require.NoError(t, err)

	_, err = f.svc.AppendToConversation(ctx, alice, conv.Id, "still there?")
	assert.ErrorIs(t, err, ErrForbidden)

	history, err := f.svc.GetHistory(ctx, alice, conv.Id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendByNonParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	_, err = f.svc.AppendToConversation(ctx, admin, conv.Id, "moderator here")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.AppendToConversation(ctx, alice, "missing", "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrivilegedStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, admin, "carol")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.Id)

	_, err = f.svc.StartConversation(ctx, admin, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrivilegedAppendToUnknownUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AppendToUser(ctx, admin, "ghost", "anyone there?")
	assert.ErrorIs(t, err, ErrNotFound)

	convs, err := f.svc.ListAllConversations(ctx, admin, "")
	require.NoError(t, err)
	assert.Empty(t, convs)
	assert.Empty(t, f.publisher.Events())

	msg, err := f.svc.AppendToUser(ctx, admin, "carol", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "welcome", msg.Content)
}

func TestModeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1, err := f.svc.AppendToUser(ctx, alice, "bob", "one")
	require.NoError(t, err)
	m2, err := f.svc.AppendToUser(ctx, bob, "alice", "two")
	require.NoError(t, err)

	_, err = f.svc.ListAllConversations(ctx, alice, "")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, alice, m1.Id), ErrForbidden)

	all, err := f.svc.ListAllConversations(ctx, admin, "ALICE")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alice@example.com", all[0].Participants[0].Email)

	st, err := f.svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{Conversations: 1, Messages: 2}, st)

	require.NoError(t, f.svc.DeleteMessage(ctx, admin, m1.Id))
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, admin, m1.Id), ErrNotFound)

	history, err := f.svc.GetHistory(ctx, alice, m1.ConversationId)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m2.Id, history[0].Id)

	require.NoError(t, f.svc.DeleteConversation(ctx, admin, m1.ConversationId))
	assert.ErrorIs(t, f.svc.DeleteConversation(ctx, admin, m1.ConversationId), ErrNotFound)

	_, err = f.svc.GetHistory(ctx, admin, m1.ConversationId)
	assert.ErrorIs(t, err, ErrNotFound)

	st, err = f.svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{}, st)

	events := f.publisher.Events()
	require.Len(t, events, 4)
	assert.Equal(t, EventMessageDeleted, events[2].event.Kind)
	assert.Equal(t, m1.Id, events[2].event.MessageId)
	assert.Equal(t, EventConversationDeleted, events[3].event.Kind)
	assert.Equal(t, m1.ConversationId, events[3].room)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.AppendToUser(ctx, alice, "bob", "unread")
	require.NoError(t, err)

	n, err := f.svc.MarkRead(ctx, alice, m.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = f.svc.MarkRead(ctx, bob, m.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.MarkRead(ctx, carol, m.ConversationId)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = ErrFanOutUnavailable

	m, err := f.svc.AppendToUser(context.Background(), alice, "bob", "persisted anyway")
	require.NoError(t, err)

	history, err := f.svc.GetHistory(context.Background(), bob, m.ConversationId)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAuthorizeRoomJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	assert.NoError(t, f.svc.AuthorizeRoomJoin(ctx, bob, conv.Id))
	assert.NoError(t, f.svc.AuthorizeRoomJoin(ctx, admin, conv.Id))
	assert.ErrorIs(t, f.svc.AuthorizeRoomJoin(ctx, carol, conv.Id), ErrForbidden)
	assert.ErrorIs(t, f.svc.AuthorizeRoomJoin(ctx, alice, "missing"), ErrNotFound)
}

func TestOracleFailureIsInternal(t *testing.T) {
	repo := &database.MockMessagingRepository{}
	defer repo.AssertExpectations(t)

	repo.On("HasAcceptedConnection", mock.Anything, "alice", "bob").Return(false, errors.New("connection refused")).Once()

	svc := NewService(testutil.TestLogger(t), repo, &recordingPublisher{}, nil)
	_, err := svc.AppendToUser(context.Background(), alice, "bob", "hi")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "Internal Server Error", PublicMessage(err))
}

func TestAppendConversationDeletedConcurrently(t *testing.T) {
	repo := &database.MockMessagingRepository{}
	defer repo.AssertExpectations(t)

	conv := database.Conversation{Id: "c1", ParticipantA: "alice", ParticipantB: "bob"}
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.On("GetConversation", mock.Anything, "c1").Return(conv, nil).Once()
	repo.On("HasAcceptedConnection", mock.Anything, "alice", "bob").Return(true, nil).Once()
	repo.On("CreateMessage", mock.Anything, database.CreateMessageParams{
		ConversationId: "c1", SenderId: "alice", Content: "hi", CreatedAt: fixed,
	}).Return(database.Message{}, sql.ErrNoRows).Once()

	publisher := &recordingPublisher{}
	svc := NewService(testutil.TestLogger(t), repo, publisher, nil, WithClock(func() time.Time { return fixed }))

	_, err := svc.AppendToConversation(context.Background(), alice, "c1", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, publisher.Events())
}
