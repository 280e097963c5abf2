package database

import (
	"context"
	"time"

	"github.com/npezzotti/chat-relay/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockStore) AppendMessage(ctx context.Context, msg NewMessage) (Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockStore) UpdateDeliveryState(ctx context.Context, id int64, state types.DeliveryState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}
func (m *MockStore) MarkRead(ctx context.Context, id int64, readerId string) (bool, error) {
	args := m.Called(ctx, id, readerId)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) UpsertConversation(ctx context.Context, key PairKey, lastMessage string, at time.Time) error {
	args := m.Called(ctx, key, lastMessage, at)
	return args.Error(0)
}
func (m *MockStore) QueryUnreadCount(ctx context.Context, viewerId, otherId string) (int, error) {
	args := m.Called(ctx, viewerId, otherId)
	return args.Int(0), args.Error(1)
}
func (m *MockStore) QueryHistory(ctx context.Context, userA, userB string, limit, offset int) ([]Message, error) {
	args := m.Called(ctx, userA, userB, limit, offset)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) ListConversations(ctx context.Context, userId string) ([]Conversation, error) {
	args := m.Called(ctx, userId)
	if convs, ok := args.Get(0).([]Conversation); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) SetPresence(ctx context.Context, userId string, online bool, at time.Time) error {
	args := m.Called(ctx, userId, online, at)
	return args.Error(0)
}
func (m *MockStore) ListPresence(ctx context.Context) ([]Presence, error) {
	args := m.Called(ctx)
	if users, ok := args.Get(0).([]Presence); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
