package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"chatrelay/internal/lifecycle"
	"chatrelay/pkg/types"
)

// HandlerConfig tunes the socket side of a connection.
type HandlerConfig struct {
	AllowedOrigins []string // "*" allows any origin; empty means same host only
	MaxMessageSize int64
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// DefaultHandlerConfig returns the heartbeat settings used in production.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 64 * 1024,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   DefaultWriteTimeout,
		RequestTimeout: 10 * time.Second,
	}
}

// Handler upgrades HTTP requests and pumps frames between the socket and the
// connection lifecycle.
type Handler struct {
	registry  *Registry
	lifecycle *lifecycle.Handler
	config    HandlerConfig
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, lc *lifecycle.Handler, config HandlerConfig, logger *slog.Logger) *Handler {
	defaults := DefaultHandlerConfig()
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaults.PongTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	h := &Handler{
		registry:  registry,
		lifecycle: lc,
		config:    config,
		logger:    logger.With("component", "ws_handler"),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(config.AllowedOrigins),
	}
	return h
}

// originChecker builds the upgrader's origin policy. A nil result keeps
// gorilla's same-host check.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return lo.ContainsBy(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimRight(a, "/"), u.Scheme+"://"+u.Host)
		})
	}
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConnection(ws, h.config.WriteTimeout)
	if err := h.registry.Register(conn); err != nil {
		h.logger.Error("failed to register connection", "connection_id", conn.ID(), "error", err)
		_ = conn.Close()
		return
	}

	h.logger.Info("connection accepted", "connection_id", conn.ID(), "remote_addr", r.RemoteAddr)

	h.wg.Add(1)
	go h.handleConnection(conn)
}

// Wait blocks until every connection goroutine has finished or ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConnection runs the heartbeat and the read loop. Disconnect cleanup
// runs before the connection leaves the registry so the departure notice
// still reaches the rest of the room.
func (h *Handler) handleConnection(conn *Connection) {
	defer h.wg.Done()

	lc := h.lifecycle.Open(conn.ID())
	defer func() {
		lc.Disconnect()
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.logger.Info("connection closed", "connection_id", conn.ID())
	}()

	ws := conn.conn
	ws.SetReadLimit(h.config.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.config.PongTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", "connection_id", conn.ID(), "error", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "connection_id", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.dispatch(conn, lc, data)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// dispatch handles one inbound frame and acknowledges it when the client
// asked for an ack.
func (h *Handler) dispatch(conn *Connection, lc *lifecycle.Conn, data []byte) {
	var frame types.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.logger.Debug("undecodable frame", "connection_id", conn.ID(), "error", err)
		return
	}

	err := h.handleFrame(conn, lc, frame)
	if err != nil {
		h.logger.Debug("request failed",
			"connection_id", conn.ID(),
			"event", frame.Event,
			"error", err)
	}

	if frame.Ack == nil {
		return
	}
	if werr := conn.WriteJSON(types.NewAckFrame(*frame.Ack, err)); werr != nil {
		h.logger.Debug("failed to send ack", "connection_id", conn.ID(), "error", werr)
	}
}

func (h *Handler) handleFrame(conn *Connection, lc *lifecycle.Conn, frame types.InboundFrame) error {
	switch frame.Event {
	case types.EventJoin:
		var req types.JoinRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(conn.Context(), h.config.RequestTimeout)
		defer cancel()
		_, err := lc.Join(ctx, req.Username, req.Room)
		return err

	case types.EventSendMessage:
		var text string
		if err := decodeData(frame.Data, &text); err != nil {
			return err
		}
		return lc.SendMessage(text)

	case types.EventSendLocation:
		var coords types.Coordinates
		if err := decodeData(frame.Data, &coords); err != nil {
			return err
		}
		return lc.SendLocation(coords.Latitude, coords.Longitude)

	default:
		return types.ErrBadRequest
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return types.ErrBadRequest
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return types.ErrBadRequest
	}
	return nil
}
