package database

import (
	"context"
	"time"

	"github.com/npezzotti/chat-relay/internal/types"
)

type Store interface {
	Ping(ctx context.Context) error
	AppendMessage(ctx context.Context, msg NewMessage) (Message, error)
	UpdateDeliveryState(ctx context.Context, id int64, state types.DeliveryState) error
	MarkRead(ctx context.Context, id int64, readerId string) (bool, error)
	UpsertConversation(ctx context.Context, key PairKey, lastMessage string, at time.Time) error
	QueryUnreadCount(ctx context.Context, viewerId, otherId string) (int, error)
	QueryHistory(ctx context.Context, userA, userB string, limit, offset int) ([]Message, error)
	ListConversations(ctx context.Context, userId string) ([]Conversation, error)
	SetPresence(ctx context.Context, userId string, online bool, at time.Time) error
	ListPresence(ctx context.Context) ([]Presence, error)
	Close() error
}
