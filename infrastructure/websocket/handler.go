// Package websocket carries relay frames over gorilla/websocket connections.
package websocket

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// PongWait is how long a connection may stay silent before its read times out.
const PongWait = 60 * time.Second

const (
	writeWait      = 10 * time.Second
	pingPeriod     = (PongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type connections interface {
	Connect(sink contract.EventSink) domain.Handle
	Online(ctx context.Context, handle domain.Handle, user domain.UserID) error
	Disconnect(ctx context.Context, handle domain.Handle) bool
	Touch(handle domain.Handle)
}

type dispatcher interface {
	Dispatch(ctx context.Context, handle domain.Handle, cmd domain.Command, ref string) error
}

type TokenValidator interface {
	ValidateToken(token string) (domain.UserID, error)
}

type Config struct {
	SendBuffer     int
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// Handler upgrades HTTP requests and runs one read loop per connection.
// Frames of a connection are dispatched sequentially in arrival order.
type Handler struct {
	log         *slog.Logger
	connections connections
	dispatcher  dispatcher
	tokens      TokenValidator
	cfg         Config
	upgrader    websocket.Upgrader
}

// NewHandler builds the /ws handler. tokens may be nil, clients then
// identify themselves with an online event.
func NewHandler(log *slog.Logger, connections connections, dispatcher dispatcher, tokens TokenValidator, cfg Config) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	h := &Handler{log: log, connections: connections, dispatcher: dispatcher, tokens: tokens, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || lo.Contains(h.cfg.AllowedOrigins, origin)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var user domain.UserID
	if h.tokens != nil {
		var err error
		if user, err = h.tokens.ValidateToken(r.URL.Query().Get("token")); err != nil {
			h.log.Debug("Connection refused", "remote", r.RemoteAddr, "error", err)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{
		log:     h.log,
		conn:    conn,
		sink:    NewSink(h.cfg.SendBuffer),
		user:    user,
		limiter: h.limiter(),
	}
	s.handle = h.connections.Connect(s.sink)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()
	defer func() {
		h.connections.Disconnect(context.WithoutCancel(ctx), s.handle)
		s.sink.Close()
		<-writerDone
		_ = conn.Close()
	}()

	if user != "" {
		if err = h.connections.Online(ctx, s.handle, user); err != nil {
			s.replyError(ctx, domain.CommandOnline, "", err)
			return
		}
	}
	h.readPump(ctx, s)
}

func (h *Handler) limiter() *rate.Limiter {
	if h.cfg.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(h.cfg.RateLimit), max(h.cfg.RateBurst, 1))
}

func (h *Handler) readPump(ctx context.Context, s *session) {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(PongWait)); err != nil {
		h.log.Error("Failed to set read deadline", "error", err)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		h.connections.Touch(s.handle)
		return s.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Unexpected websocket close", "handle", s.handle, "error", err)
			}
			return
		}
		if err = s.conn.SetReadDeadline(time.Now().Add(PongWait)); err != nil {
			return
		}
		h.connections.Touch(s.handle)

		in, err := decodeFrame(raw)
		if !s.limiter.Allow() {
			s.replyError(ctx, in.event, in.ref, fmt.Errorf("%w: slow down", errors.ErrRateLimited))
			continue
		}
		if err != nil {
			s.replyError(ctx, in.event, in.ref, err)
			continue
		}
		if in.isPing() {
			_ = s.sink.Consume(ctx, event.Pong{})
			continue
		}
		if online, ok := in.command.(domain.OnlineCommand); ok && s.user != "" && online.UserID != s.user {
			s.replyError(ctx, in.event, in.ref,
				fmt.Errorf("%w: token was issued for another user", errors.ErrValidation))
			continue
		}
		// Failures were already answered to this connection
		_ = h.dispatcher.Dispatch(ctx, s.handle, in.command, in.ref)
	}
}

type session struct {
	log     *slog.Logger
	conn    *websocket.Conn
	sink    *Sink
	handle  domain.Handle
	user    domain.UserID
	limiter *rate.Limiter
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.sink.Frames():
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.log.Debug("Write failed", "handle", s.handle, "error", err)
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.sink.Done():
			_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = s.conn.Close()
			return
		}
	}
}

func (s *session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *session) replyError(ctx context.Context, eventName, ref string, err error) {
	if consumeErr := s.sink.Consume(ctx, event.ErrorRaised{
		Code:    errors.Code(err),
		Message: err.Error(),
		Event:   eventName,
		Ref:     ref,
	}); consumeErr != nil {
		s.log.Debug("Error reply dropped", "handle", s.handle, "error", consumeErr)
	}
}
