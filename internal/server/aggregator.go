package server

import (
	"context"
	"time"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/types"
)

// Aggregator maintains one conversation summary per user pair. Unread
// counts are always derived from message rows.
type Aggregator struct {
	store database.Store
	dir   *Directory
}

func NewAggregator(store database.Store, dir *Directory) *Aggregator {
	return &Aggregator{store: store, dir: dir}
}

func (a *Aggregator) UpsertSummary(ctx context.Context, userA, userB, lastMessage string, at time.Time) error {
	return a.store.UpsertConversation(ctx, database.NewPairKey(userA, userB), lastMessage, at)
}

func (a *Aggregator) UnreadCount(ctx context.Context, viewer, other string) (int, error) {
	return a.store.QueryUnreadCount(ctx, viewer, other)
}

// Summaries lists the conversations of identity, newest first.
func (a *Aggregator) Summaries(ctx context.Context, identity string) ([]types.ConversationSummary, error) {
	convs, err := a.store.ListConversations(ctx, identity)
	if err != nil {
		return nil, err
	}

	summaries := make([]types.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		other := conv.Key.Other(identity)
		unread, err := a.UnreadCount(ctx, identity, other)
		if err != nil {
			return nil, err
		}

		_, online := a.dir.Lookup(other)
		summaries = append(summaries, types.ConversationSummary{
			OtherUserId:     other,
			LastMessage:     conv.LastMessage,
			LastMessageTime: conv.LastMessageTime,
			UnreadCount:     unread,
			IsOnline:        online,
		})
	}

	return summaries, nil
}
