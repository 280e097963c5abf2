package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/chat-relay/internal/config"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/server"
	"github.com/npezzotti/chat-relay/internal/stats"
)

type RelayApp struct {
	log            *log.Logger
	store          database.Store
	srv            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	allowedOrigins []string
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, store database.Store, su stats.StatsProvider, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:            logger,
		store:          store,
		cs:             cs,
		stats:          su,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /api/users/online", noStore(s.onlineUsers))
	mux.HandleFunc("GET /api/users", s.listUsers)
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("GET /api/messages/{userId}/{targetId}", s.getMessages)
	mux.HandleFunc("POST /api/messages/{id}/read", s.markRead)
	mux.HandleFunc("GET /api/conversations/{userId}", noStore(s.getConversations))
	mux.HandleFunc("GET /api/conversations/{userId}/{otherId}/unread", noStore(s.unreadCount))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *RelayApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
