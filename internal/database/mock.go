package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockMessagingRepository struct {
	mock.Mock
}

func (m *MockMessagingRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockMessagingRepository) GetUser(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMessagingRepository) HasAcceptedConnection(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}
func (m *MockMessagingRepository) GetConversation(ctx context.Context, id string) (Conversation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockMessagingRepository) FindConversationByPair(ctx context.Context, userLo, userHi string) (Conversation, error) {
	args := m.Called(ctx, userLo, userHi)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockMessagingRepository) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockMessagingRepository) ListConversationsForUser(ctx context.Context, userId string) ([]ConversationSummary, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]ConversationSummary), args.Error(1)
}
func (m *MockMessagingRepository) ListAllConversations(ctx context.Context, search string) ([]ConversationSummary, error) {
	args := m.Called(ctx, search)
	return args.Get(0).([]ConversationSummary), args.Error(1)
}
func (m *MockMessagingRepository) DeleteConversation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockMessagingRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockMessagingRepository) GetMessage(ctx context.Context, id int64) (Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockMessagingRepository) ListMessages(ctx context.Context, conversationId string) ([]Message, error) {
	args := m.Called(ctx, conversationId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockMessagingRepository) MarkMessagesRead(ctx context.Context, conversationId, readerId string) (int64, error) {
	args := m.Called(ctx, conversationId, readerId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockMessagingRepository) DeleteMessage(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockMessagingRepository) GetStats(ctx context.Context) (Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(Stats), args.Error(1)
}
