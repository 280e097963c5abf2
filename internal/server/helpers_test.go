package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/stats"
	"github.com/npezzotti/chat-relay/internal/testutil"
	"github.com/npezzotti/chat-relay/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testRooms = []types.Room{
	{Id: "general_chat", Name: "General Chat"},
	{Id: "tech_talk", Name: "Tech Talk"},
}

func newMockStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("RegisterGauge", mock.Anything, mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

// newTestChatServer starts a ChatServer and stops it when the test ends.
func newTestChatServer(t *testing.T, store database.Store, opts Options) *ChatServer {
	t.Helper()
	if opts.Rooms == nil {
		opts.Rooms = testRooms
	}

	cs, err := NewChatServer(testutil.TestLogger(t), store, newMockStats(), opts)
	require.NoError(t, err, "failed to create test ChatServer")

	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	return cs
}

func newSQLiteStore(t *testing.T) *database.SQLStore {
	t.Helper()
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err, "expected sqlite store to open")
	t.Cleanup(func() { store.Close() })
	return store
}

// presenceStore is a mock store that accepts any presence update.
func presenceStore() *database.MockStore {
	store := &database.MockStore{}
	store.On("SetPresence", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return store
}

func newTestClient(t *testing.T, cs *ChatServer) *Client {
	return &Client{
		id:         t.Name(),
		chatServer: cs,
		log:        testutil.TestLogger(t),
		send:       make(chan *ServerMessage, sendBufferSize),
		stop:       make(chan struct{}),
	}
}

// signedIn registers a client for identity directly in the directory.
func signedIn(t *testing.T, dir *Directory, identity string) *Client {
	c := newTestClient(t, nil)
	c.id = identity
	dir.Register(identity, c)
	return c
}

// drain returns every message queued on c.
func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func eventsOf(msgs []*ServerMessage) []string {
	events := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, msg.Event)
	}
	return events
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
