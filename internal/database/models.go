package database

import (
	"time"

	"github.com/npezzotti/chat-relay/internal/types"
)

type Message struct {
	Id            int64
	SourceId      string
	TargetId      string
	Body          string
	MessageType   types.MessageType
	Path          string
	DeliveryState types.DeliveryState
	IsRead        bool
	CreatedAt     time.Time
}

type NewMessage struct {
	SourceId    string
	TargetId    string
	Body        string
	MessageType types.MessageType
	Path        string
}

// PairKey identifies a conversation between two identities regardless of
// which side initiated it. UserA always sorts before or equal to UserB.
type PairKey struct {
	UserA string
	UserB string
}

func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{UserA: a, UserB: b}
}

// Other returns the member of the pair that is not identity.
func (k PairKey) Other(identity string) string {
	if k.UserA == identity {
		return k.UserB
	}
	return k.UserA
}

type Conversation struct {
	Key             PairKey
	LastMessage     string
	LastMessageTime time.Time
}

type Presence struct {
	UserId   string
	IsOnline bool
	LastSeen time.Time
}
