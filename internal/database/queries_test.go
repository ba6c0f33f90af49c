package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()

	repo, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.Migrate())

	return repo
}

func seedUsers(t *testing.T, repo *SQLRepository, ids ...string) {
	t.Helper()

	for _, id := range ids {
		_, err := repo.UpsertUser(context.Background(), UpsertUserParams{
			Id:    id,
			Name:  "User " + id,
			Email: id + "@example.com",
			Role:  "student",
		})
		require.NoError(t, err)
	}
}

func createTestConversation(t *testing.T, repo *SQLRepository, id, a, b string, at time.Time) Conversation {
	t.Helper()

	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	c, err := repo.CreateConversation(context.Background(), CreateConversationParams{
		Id:           id,
		ParticipantA: a,
		ParticipantB: b,
		UserLo:       lo,
		UserHi:       hi,
		CreatedAt:    at,
	})
	require.NoError(t, err)

	return c
}

func TestMigrateIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.Migrate())
}

func TestHasAcceptedConnection(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedUsers(t, repo, "alice", "bob", "carol", "dave")

	_, err := repo.UpsertConnection(ctx, UpsertConnectionParams{
		Id: "c1", SenderId: "alice", ReceiverId: "bob", Status: ConnectionAccepted,
	})
	require.NoError(t, err)
	_, err = repo.UpsertConnection(ctx, UpsertConnectionParams{
		Id: "c2", SenderId: "carol", ReceiverId: "dave", Status: ConnectionPending,
	})
	require.NoError(t, err)

	tcases := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "accepted", a: "alice", b: "bob", want: true},
		{name: "accepted reversed", a: "bob", b: "alice", want: true},
		{name: "pending", a: "carol", b: "dave", want: false},
		{name: "no row", a: "alice", b: "carol", want: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.HasAcceptedConnection(ctx, tc.a, tc.b)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUpsertConnectionUpdatesEitherDirection(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedUsers(t, repo, "carol", "dave")

	first, err := repo.UpsertConnection(ctx, UpsertConnectionParams{
		Id: "c1", SenderId: "carol", ReceiverId: "dave", Status: ConnectionPending,
	})
	require.NoError(t, err)

	second, err := repo.UpsertConnection(ctx, UpsertConnectionParams{
		Id: "c2", SenderId: "dave", ReceiverId: "carol", Status: ConnectionAccepted,
	})
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, ConnectionAccepted, second.Status)

	ok, err := repo.HasAcceptedConnection(ctx, "carol", "dave")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestGetUserNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateConversationConflict(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Millisecond)

	created := createTestConversation(t, repo, "conv-1", "bob", "alice", now)
	assert.Equal(t, "alice", created.UserLo)
	assert.Equal(t, "bob", created.UserHi)
	assert.True(t, now.Equal(created.LastActivityAt))

	_, err := repo.CreateConversation(ctx, CreateConversationParams{
		Id:           "conv-2",
		ParticipantA: "alice",
		ParticipantB: "bob",
		UserLo:       "alice",
		UserHi:       "bob",
		CreatedAt:    now,
	})
	assert.True(t, errors.Is(err, ErrConflict))

	found, err := repo.FindConversationByPair(ctx, "alice", "bob")
	assert.NoError(t, err)
	assert.Equal(t, "conv-1", found.Id)

	_, err = repo.FindConversationByPair(ctx, "alice", "carol")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMessagesLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	createTestConversation(t, repo, "conv-1", "alice", "bob", base)

	first, err := repo.CreateMessage(ctx, CreateMessageParams{
		ConversationId: "conv-1", SenderId: "alice", Content: "hi", CreatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)
	second, err := repo.CreateMessage(ctx, CreateMessageParams{
		ConversationId: "conv-1", SenderId: "bob", Content: "hey", CreatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)
	third, err := repo.CreateMessage(ctx, CreateMessageParams{
		ConversationId: "conv-1", SenderId: "alice", Content: "how are you?", CreatedAt: base.Add(2 * time.Second),
	})
	require.NoError(t, err)

	assert.Less(t, first.Id, second.Id)
	assert.False(t, first.Read)

	msgs, err := repo.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{first.Id, second.Id, third.Id}, []int64{msgs[0].Id, msgs[1].Id, msgs[2].Id})

	conv, err := repo.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, base.Add(2*time.Second).Equal(conv.LastActivityAt))

	summaries, err := repo.ListConversationsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, third.Id, summaries[0].LastMessage.Id)
	assert.Equal(t, "how are you?", summaries[0].LastMessage.Content)
	assert.Equal(t, 2, summaries[0].UnreadCount)

	n, err := repo.MarkMessagesRead(ctx, "conv-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	summaries, err = repo.ListConversationsForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, summaries[0].UnreadCount)

	require.NoError(t, repo.DeleteMessage(ctx, second.Id))
	assert.ErrorIs(t, repo.DeleteMessage(ctx, second.Id), sql.ErrNoRows)

	_, err = repo.GetMessage(ctx, second.Id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateMessageUnknownConversation(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.CreateMessage(context.Background(), CreateMessageParams{
		ConversationId: "missing", SenderId: "alice", Content: "hi", CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListConversationsOrdering(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	createTestConversation(t, repo, "conv-old", "alice", "bob", base)
	createTestConversation(t, repo, "conv-new", "alice", "carol", base.Add(time.Minute))
	createTestConversation(t, repo, "conv-other", "bob", "carol", base)

	_, err := repo.CreateMessage(ctx, CreateMessageParams{
		ConversationId: "conv-old", SenderId: "bob", Content: "bump", CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)

	summaries, err := repo.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "conv-old", summaries[0].Id)
	assert.Equal(t, "conv-new", summaries[1].Id)
	assert.Nil(t, summaries[1].LastMessage)
}

func TestListAllConversationsSearch(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.UpsertUser(ctx, UpsertUserParams{Id: "alice", Name: "Alice Liddell", Email: "alice@example.com", Role: "student"})
	require.NoError(t, err)
	_, err = repo.UpsertUser(ctx, UpsertUserParams{Id: "bob", Name: "Bob Stone", Email: "bob@example.com", Role: "alumni"})
	require.NoError(t, err)
	_, err = repo.UpsertUser(ctx, UpsertUserParams{Id: "carol", Name: "Carol King", Email: "carol@school.edu", Role: "alumni"})
	require.NoError(t, err)

	createTestConversation(t, repo, "conv-ab", "alice", "bob", base)
	createTestConversation(t, repo, "conv-bc", "bob", "carol", base.Add(time.Minute))

	tcases := []struct {
		name   string
		search string
		want   []string
	}{
		{name: "no filter", search: "", want: []string{"conv-bc", "conv-ab"}},
		{name: "name match case insensitive", search: "LIDDELL", want: []string{"conv-ab"}},
		{name: "email match", search: "school.edu", want: []string{"conv-bc"}},
		{name: "shared participant", search: "bob", want: []string{"conv-bc", "conv-ab"}},
		{name: "no match", search: "zed", want: []string{}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			summaries, err := repo.ListAllConversations(ctx, tc.search)
			require.NoError(t, err)

			ids := []string{}
			for _, s := range summaries {
				ids = append(ids, s.Id)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	createTestConversation(t, repo, "conv-1", "alice", "bob", now)
	_, err := repo.CreateMessage(ctx, CreateMessageParams{
		ConversationId: "conv-1", SenderId: "alice", Content: "hi", CreatedAt: now,
	})
	require.NoError(t, err)

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Conversations: 1, Messages: 1}, stats)

	require.NoError(t, repo.DeleteConversation(ctx, "conv-1"))
	assert.ErrorIs(t, repo.DeleteConversation(ctx, "conv-1"), sql.ErrNoRows)

	stats, err = repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	msgs, err := repo.ListMessages(ctx, "conv-1")
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: DriverPostgres}
	lite := &SQLRepository{driver: DriverSQLite}

	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}
