// Package api exposes the conversation endpoints, the websocket upgrade and probes over chi.
package api

import (
	"campus-relay/domain"
	"campus-relay/errors"
	"campus-relay/services"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports a named dependency state, nil means healthy.
type HealthCheck func() error

type Router struct {
	log      *slog.Logger
	chat     services.IChatService
	ws       http.Handler
	checks   map[string]HealthCheck
	validate *validator.Validate
}

func NewRouter(log *slog.Logger, chat services.IChatService, ws http.Handler, checks map[string]HealthCheck) *Router {
	return &Router{log: log, chat: chat, ws: ws, checks: checks, validate: validator.New()}
}

func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.requestLogger)

	r.Get("/healthz", router.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", router.ws)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(10 * time.Second))
		r.Post("/conversations", router.requestChat)
		r.Get("/conversations/{id}/messages", router.transcript)
		r.Get("/conversations/{id}/search", router.search)
		r.Get("/users/{id}/conversations", router.conversations)
	})
	return r
}

type requestChatBody struct {
	ItemID   domain.ItemID `json:"itemId" validate:"required"`
	BuyerID  domain.UserID `json:"buyerId" validate:"required"`
	SellerID domain.UserID `json:"sellerId" validate:"required,nefield=BuyerID"`
}

type transcriptResponse struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
	Cursor       *string             `json:"cursor,omitempty"`
}

type errorResponse struct {
	Code                   string `json:"code"`
	Message                string `json:"message"`
	ExistingConversationID string `json:"existingConversationId,omitempty"`
}

func (router *Router) requestChat(w http.ResponseWriter, r *http.Request) {
	var body requestChatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		router.writeError(w, r, fmt.Errorf("%w: malformed body: %v", errors.ErrValidation, err))
		return
	}
	if err := router.validate.Struct(body); err != nil {
		router.writeError(w, r, fmt.Errorf("%w: %v", errors.ErrValidation, err))
		return
	}
	conv, err := router.chat.RequestChat(r.Context(), body.ItemID, body.BuyerID, body.SellerID)
	if err != nil {
		router.writeError(w, r, err)
		return
	}
	router.writeJSON(w, http.StatusCreated, conv)
}

func (router *Router) transcript(w http.ResponseWriter, r *http.Request) {
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	conv, messages, next, err := router.chat.GetTranscript(r.Context(), domain.ConversationID(chi.URLParam(r, "id")), cursor)
	if err != nil {
		router.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	router.writeJSON(w, http.StatusOK, transcriptResponse{Conversation: conv, Messages: messages, Cursor: next})
}

func (router *Router) search(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			router.writeError(w, r, fmt.Errorf("%w: limit must be a positive number", errors.ErrValidation))
			return
		}
		limit = n
	}
	hits, err := router.chat.SearchTranscript(r.Context(), domain.ConversationID(chi.URLParam(r, "id")), r.URL.Query().Get("q"), limit)
	if err != nil {
		router.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	router.writeJSON(w, http.StatusOK, hits)
}

func (router *Router) conversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := router.chat.ListConversations(r.Context(), domain.UserID(chi.URLParam(r, "id")))
	if err != nil {
		router.writeError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []domain.Conversation{}
	}
	router.writeJSON(w, http.StatusOK, conversations)
}

func (router *Router) health(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	report := map[string]string{"status": "ok"}
	for name, check := range router.checks {
		if err := check(); err != nil {
			status = http.StatusServiceUnavailable
			report["status"] = "degraded"
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	router.writeJSON(w, status, report)
}

func (router *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.Code(err)
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		router.log.Error("Request failed", "path", r.URL.Path, "request_id", chimiddleware.GetReqID(r.Context()), "error", err)
	}
	response := errorResponse{Code: code, Message: err.Error()}
	if id, ok := errors.ExistingConversation(err); ok {
		response.ExistingConversationID = id
	}
	router.writeJSON(w, status, response)
}

func (router *Router) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		router.log.Debug("Response not written", "error", err)
	}
}

func (router *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		router.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}

func statusOf(code string) int {
	switch code {
	case "validation_error", "invalid_transition":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "unauthorized":
		return http.StatusUnauthorized
	case "rate_limited":
		return http.StatusTooManyRequests
	case "persistence_error":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
