package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/chat-relay/internal/server"
	"github.com/npezzotti/chat-relay/internal/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type MarkReadRequest struct {
	ReaderId string `json:"readerId"`
	SenderId string `json:"senderId"`
}

func (s *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *RelayApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *RelayApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *RelayApp) onlineUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, map[string][]string{
		"users": s.cs.Directory().ListOnline(),
	})
}

func (s *RelayApp) listUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListPresence(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	users := make([]types.UserPresence, 0, len(rows))
	for _, p := range rows {
		users = append(users, types.UserPresence{
			UserId:   p.UserId,
			IsOnline: p.IsOnline,
			LastSeen: p.LastSeen,
		})
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *RelayApp) listRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.Rooms().List())
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New(name + " must not be negative")
	}

	return v, nil
}

func (s *RelayApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, targetId := r.PathValue("userId"), r.PathValue("targetId")

	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	switch {
	case limit == 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	history, err := s.store.QueryHistory(r.Context(), userId, targetId, limit, offset)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	messages := make([]types.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, server.WireMessage(m))
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *RelayApp) getConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.cs.Aggregator().Summaries(r.Context(), r.PathValue("userId"))
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, summaries)
}

func (s *RelayApp) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.cs.Aggregator().UnreadCount(r.Context(), r.PathValue("userId"), r.PathValue("otherId"))
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"unreadCount": count})
}

func (s *RelayApp) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, NewBadRequestError())
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReaderId == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	updated, err := s.cs.MarkAsRead(r.Context(), id, req.ReaderId, req.SenderId)
	if err != nil {
		s.writeError(w, NewRouteError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log)
	if err := s.cs.RegisterClient(client); err != nil {
		s.log.Println("register client:", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
