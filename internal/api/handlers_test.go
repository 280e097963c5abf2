package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/chat-relay/internal/config"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/server"
	"github.com/npezzotti/chat-relay/internal/stats"
	"github.com/npezzotti/chat-relay/internal/testutil"
	"github.com/npezzotti/chat-relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const allowedOrigin = "http://localhost:3000"

func newMockStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("RegisterGauge", mock.Anything, mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

// newTestApp wires a RelayApp around a running chat server backed by store.
func newTestApp(t *testing.T, store database.Store) *RelayApp {
	t.Helper()
	logger := testutil.TestLogger(t)
	su := newMockStats()

	cs, err := server.NewChatServer(logger, store, su, server.Options{
		Rooms: []types.Room{
			{Id: "general_chat", Name: "General Chat"},
			{Id: "tech_talk", Name: "Tech Talk"},
		},
	})
	require.NoError(t, err)
	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	return NewRelayApp(http.NewServeMux(), logger, cs, store, su, &config.Config{
		ServerAddr:     "localhost:8000",
		AllowedOrigins: []string{allowedOrigin},
	})
}

func serve(app *RelayApp, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, req)
	return rr
}

func TestNewRelayApp(t *testing.T) {
	store := &database.MockStore{}
	app := newTestApp(t, store)

	assert.NotNil(t, app.srv, "expected http server to be initialized")
	assert.Equal(t, "localhost:8000", app.srv.Addr, "expected server address to match config")
	assert.Equal(t, store, app.store, "expected store to be set")
	assert.Equal(t, []string{allowedOrigin}, app.allowedOrigins)
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := &database.MockStore{}
			defer store.AssertExpectations(t)
			store.On("Ping", mock.Anything).Return(tc.mockErr).Once()

			rr := serve(newTestApp(t, store), httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
				var apiErr ApiError
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func Test_listRooms(t *testing.T) {
	rr := serve(newTestApp(t, &database.MockStore{}), httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var rooms []types.Room
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rooms))
	assert.Equal(t, []types.Room{
		{Id: "general_chat", Name: "General Chat"},
		{Id: "tech_talk", Name: "Tech Talk"},
	}, rooms)
}

func Test_listUsers(t *testing.T) {
	t0 := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns presence rows", func(t *testing.T) {
		store := &database.MockStore{}
		defer store.AssertExpectations(t)
		store.On("ListPresence", mock.Anything).Return([]database.Presence{
			{UserId: "alice", IsOnline: true, LastSeen: t0},
			{UserId: "bob", IsOnline: false, LastSeen: t0},
		}, nil).Once()

		rr := serve(newTestApp(t, store), httptest.NewRequest(http.MethodGet, "/api/users", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var users []types.UserPresence
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
		assert.Equal(t, []types.UserPresence{
			{UserId: "alice", IsOnline: true, LastSeen: t0},
			{UserId: "bob", IsOnline: false, LastSeen: t0},
		}, users)
	})

	t.Run("store error", func(t *testing.T) {
		store := &database.MockStore{}
		store.On("ListPresence", mock.Anything).Return(nil, errors.New("boom")).Once()

		rr := serve(newTestApp(t, store), httptest.NewRequest(http.MethodGet, "/api/users", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func Test_getMessages(t *testing.T) {
	t0 := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	history := []database.Message{
		{Id: 1, SourceId: "alice", TargetId: "bob", Body: "hi", MessageType: types.MessageTypeText, DeliveryState: types.DeliveryPending, CreatedAt: t0},
		{Id: 2, SourceId: "bob", TargetId: "alice", Body: "hey", MessageType: types.MessageTypeText, DeliveryState: types.DeliveryDelivered, IsRead: true, CreatedAt: t0.Add(time.Second)},
	}

	tcases := []struct {
		name       string
		query      string
		limit      int
		offset     int
		storeErr   error
		expectCall bool
		status     int
	}{
		{name: "default limit", query: "", limit: 50, offset: 0, expectCall: true, status: http.StatusOK},
		{name: "explicit page", query: "?limit=20&offset=40", limit: 20, offset: 40, expectCall: true, status: http.StatusOK},
		{name: "limit capped", query: "?limit=1000", limit: 200, offset: 0, expectCall: true, status: http.StatusOK},
		{name: "invalid limit", query: "?limit=abc", status: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", status: http.StatusBadRequest},
		{name: "store error", query: "", limit: 50, offset: 0, storeErr: errors.New("boom"), expectCall: true, status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := &database.MockStore{}
			defer store.AssertExpectations(t)
			if tc.expectCall {
				store.On("QueryHistory", mock.Anything, "alice", "bob", tc.limit, tc.offset).Return(history, tc.storeErr).Once()
			}

			rr := serve(newTestApp(t, store), httptest.NewRequest(http.MethodGet, "/api/messages/alice/bob"+tc.query, nil))
			assert.Equal(t, tc.status, rr.Code)

			if tc.status != http.StatusOK {
				return
			}

			var messages []types.Message
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&messages))
			require.Len(t, messages, 2)
			assert.Equal(t, "hi", messages[0].Body)
			assert.Equal(t, types.DeliveryPending, messages[0].DeliveryState)
			assert.True(t, messages[1].IsRead)
		})
	}
}

func Test_getConversations(t *testing.T) {
	t0 := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := &database.MockStore{}
	defer store.AssertExpectations(t)
	store.On("ListConversations", mock.Anything, "alice").Return([]database.Conversation{
		{Key: database.NewPairKey("alice", "bob"), LastMessage: "hi", LastMessageTime: t0},
	}, nil).Once()
	store.On("QueryUnreadCount", mock.Anything, "alice", "bob").Return(2, nil).Once()

	rr := serve(newTestApp(t, store), httptest.NewRequest(http.MethodGet, "/api/conversations/alice", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")

	var summaries []types.ConversationSummary
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&summaries))
	assert.Equal(t, []types.ConversationSummary{
		{OtherUserId: "bob", LastMessage: "hi", LastMessageTime: t0, UnreadCount: 2, IsOnline: false},
	}, summaries)
}

func Test_unreadCount(t *testing.T) {
	store := &database.MockStore{}
	defer store.AssertExpectations(t)
	store.On("QueryUnreadCount", mock.Anything, "bob", "alice").Return(1, nil).Once()
	store.On("QueryUnreadCount", mock.Anything, "bob", "carol").Return(0, errors.New("boom")).Once()

	app := newTestApp(t, store)

	rr := serve(app, httptest.NewRequest(http.MethodGet, "/api/conversations/bob/alice/unread", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"unreadCount":1}`, rr.Body.String())

	rr = serve(app, httptest.NewRequest(http.MethodGet, "/api/conversations/bob/carol/unread", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func Test_markRead(t *testing.T) {
	tcases := []struct {
		name    string
		path    string
		body    string
		setup   func(*database.MockStore)
		status  int
		expBody string
	}{
		{
			name:   "invalid id",
			path:   "/api/messages/abc/read",
			body:   `{"readerId":"bob"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid body",
			path:   "/api/messages/1/read",
			body:   `{`,
			status: http.StatusBadRequest,
		},
		{
			name:   "missing reader",
			path:   "/api/messages/1/read",
			body:   `{"senderId":"alice"}`,
			status: http.StatusBadRequest,
		},
		{
			name: "marks the message read",
			path: "/api/messages/1/read",
			body: `{"readerId":"bob","senderId":"alice"}`,
			setup: func(m *database.MockStore) {
				m.On("MarkRead", mock.Anything, int64(1), "bob").Return(true, nil).Once()
			},
			status:  http.StatusOK,
			expBody: `{"updated":true}`,
		},
		{
			name: "reader does not match",
			path: "/api/messages/1/read",
			body: `{"readerId":"carol"}`,
			setup: func(m *database.MockStore) {
				m.On("MarkRead", mock.Anything, int64(1), "carol").Return(false, nil).Once()
			},
			status:  http.StatusOK,
			expBody: `{"updated":false}`,
		},
		{
			name: "store error",
			path: "/api/messages/1/read",
			body: `{"readerId":"bob"}`,
			setup: func(m *database.MockStore) {
				m.On("MarkRead", mock.Anything, int64(1), "bob").Return(false, errors.New("boom")).Once()
			},
			status:  http.StatusInternalServerError,
			expBody: `{"status_code":500,"message":"internal server error","code":"persistence_failure"}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := &database.MockStore{}
			defer store.AssertExpectations(t)
			if tc.setup != nil {
				tc.setup(store)
			}

			rr := serve(newTestApp(t, store), httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rr.Code)
			if tc.expBody != "" {
				assert.JSONEq(t, tc.expBody, rr.Body.String())
			}
		})
	}
}

func Test_errorHandler(t *testing.T) {
	app := newTestApp(t, &database.MockStore{})
	h := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something went wrong")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.JSONEq(t, `{"status_code":500,"message":"internal server error"}`, rr.Body.String())
}

func Test_cors(t *testing.T) {
	app := newTestApp(t, &database.MockStore{})

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	req.Header.Set("Origin", allowedOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rr := serve(app, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, allowedOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeWs(t *testing.T) {
	store := &database.MockStore{}
	store.On("SetPresence", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	app := newTestApp(t, store)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("rejects unknown origins", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://evil.example"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("signin shows up in online users", func(t *testing.T) {
		header := http.Header{"Origin": []string{allowedOrigin}}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(server.ClientMessage{
			BaseMessage: server.BaseMessage{Id: 1},
			Signin:      &server.Signin{UserId: "alice"},
		}))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg server.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, server.EventSigninSuccess, msg.Event)

		rr := serve(app, httptest.NewRequest(http.MethodGet, "/api/users/online", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"users":["alice"]}`, rr.Body.String())
	})
}
