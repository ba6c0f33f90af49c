package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-alumnichat/internal/server"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

type StartConversationRequest struct {
	TargetUserId string `json:"target_user_id"`
}

type SendToUserRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type ConversationsResponse struct {
	Conversations []types.ConversationSummary `json:"conversations"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoChatApp) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeError(w, NewServiceUnavailableError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *GoChatApp) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, NewNotFoundError())
}

func (s *GoChatApp) listConversations(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	convs, err := s.svc.ListConversations(r.Context(), actor)
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusOK, ConversationsResponse{Conversations: convs})
}

func (s *GoChatApp) startConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetUserId == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	conv, err := s.svc.StartConversation(r.Context(), actor, req.TargetUserId)
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusOK, conv)
}

func (s *GoChatApp) sendToUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req SendToUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	msg, err := s.svc.AppendToUser(r.Context(), actor, req.To, req.Content)
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) getHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	messages, err := s.svc.GetHistory(r.Context(), actor, r.PathValue("conversation_id"))
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *GoChatApp) sendToConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	msg, err := s.svc.AppendToConversation(r.Context(), actor, r.PathValue("conversation_id"), req.Content)
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	n, err := s.svc.MarkRead(r.Context(), actor, r.PathValue("conversation_id"))
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusOK, MarkReadResponse{Updated: n})
}

func (s *GoChatApp) listAllConversations(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	convs, err := s.svc.ListAllConversations(r.Context(), actor, r.URL.Query().Get("search"))
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusOK, ConversationsResponse{Conversations: convs})
}

func (s *GoChatApp) deleteConversation(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	if err := s.svc.DeleteConversation(r.Context(), actor, r.PathValue("conversation_id")); err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	id, err := strconv.ParseInt(r.PathValue("message_id"), 10, 64)
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.svc.DeleteMessage(r.Context(), actor, id); err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) stats(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	st, err := s.svc.Stats(r.Context(), actor)
	if err != nil {
		s.writeError(w, FromServiceError(err))
		return
	}

	s.writeJson(w, http.StatusOK, st)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

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

	var joinAuth server.JoinAuthorizer
	if s.restrictJoin {
		joinAuth = s.svc
	}

	server.NewClient(actor, conn, s.cs, s.svc, joinAuth, s.log).Start()
}
