package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-alumnichat/internal/config"
	"github.com/npezzotti/go-alumnichat/internal/messaging"
	"github.com/npezzotti/go-alumnichat/internal/server"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping() error
}

type GoChatApp struct {
	log            *log.Logger
	svc            *messaging.Service
	cs             *server.ChatServer
	db             HealthChecker
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
	restrictJoin   bool
}

func NewGoChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, svc *messaging.Service, db HealthChecker, cfg *config.Config) *GoChatApp {
	s := &GoChatApp{
		log:            logger,
		svc:            svc,
		cs:             cs,
		db:             db,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		restrictJoin:   cfg.RestrictRoomJoin,
	}

	mux.HandleFunc("GET /healthz", s.healthz)

	mux.HandleFunc("GET /api/chats/conversations", s.authMiddleware(s.listConversations))
	mux.HandleFunc("POST /api/chats/conversations/start", s.authMiddleware(s.startConversation))
	mux.HandleFunc("POST /api/chats", s.authMiddleware(s.sendToUser))
	mux.HandleFunc("GET /api/chats/{conversation_id}", s.authMiddleware(s.getHistory))
	mux.HandleFunc("GET /api/chats/{conversation_id}/messages", s.authMiddleware(s.getHistory))
	mux.HandleFunc("POST /api/chats/{conversation_id}/messages", s.authMiddleware(s.sendToConversation))
	mux.HandleFunc("POST /api/chats/{conversation_id}/read", s.authMiddleware(s.markRead))

	mux.HandleFunc("GET /api/admin/conversations", s.adminMiddleware(s.listAllConversations))
	mux.HandleFunc("GET /api/admin/conversations/{conversation_id}/messages", s.adminMiddleware(s.getHistory))
	mux.HandleFunc("DELETE /api/admin/conversations/{conversation_id}", s.adminMiddleware(s.deleteConversation))
	mux.HandleFunc("DELETE /api/admin/messages/{message_id}", s.adminMiddleware(s.deleteMessage))
	mux.HandleFunc("GET /api/admin/stats", s.adminMiddleware(s.stats))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	mux.HandleFunc("/", s.notFound)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped root handler.
func (s *GoChatApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *GoChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
