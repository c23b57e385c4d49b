package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"

	"chatrelay/internal/hub"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

const healthTimeout = 5 * time.Second

// RoomDirectory is the read side of the session registry.
type RoomDirectory interface {
	ListInRoom(room string) []types.Session
	Rooms() []types.RoomSummary
}

// ConnectionStats reports transport counters.
type ConnectionStats interface {
	GetStats() map[string]int
}

// PresenceStats reports the presence queue counters.
type PresenceStats interface {
	Stats() hub.Stats
}

// Dependencies are the components the HTTP surface reads from. WebSocket is
// mounted at /ws when set.
type Dependencies struct {
	Rooms       RoomDirectory
	Database    interfaces.DatabaseManager
	Connections ConnectionStats
	Presence    PresenceStats
	WebSocket   http.Handler
	Logger      *slog.Logger
}

// Server is the read-only HTTP API next to the socket endpoint. It holds no
// chat logic of its own.
type Server struct {
	rooms       RoomDirectory
	dbManager   interfaces.DatabaseManager
	connections ConnectionStats
	presence    PresenceStats
	logger      *slog.Logger
	startedAt   time.Time
	handler     http.Handler
}

// NewServer wires the routes.
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		rooms:       deps.Rooms,
		dbManager:   deps.Database,
		connections: deps.Connections,
		presence:    deps.Presence,
		logger:      logger.With("component", "api"),
		startedAt:   time.Now(),
	}
	s.handler = s.setupRoutes(deps.WebSocket)
	return s
}

func (s *Server) setupRoutes(ws http.Handler) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /health", s.healthCheck)
	api.HandleFunc("GET /api/rooms", s.listRooms)
	api.HandleFunc("GET /api/rooms/{room}", s.getRoom)
	api.HandleFunc("GET /api/rooms/{room}/presence", s.getRoomPresence)

	root := http.NewServeMux()
	if ws != nil {
		root.Handle("/ws", ws)
	}
	root.Handle("/", s.corsMiddleware(s.jsonMiddleware(api)))
	return root
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type RoomsResponse struct {
	Rooms []types.RoomSummary `json:"rooms"`
}

type RoomResponse struct {
	Room  string             `json:"room"`
	Users []types.RoomMember `json:"users"`
}

type PresenceResponse struct {
	Room   string                 `json:"room"`
	Events []*types.PresenceEvent `json:"events"`
}

type SystemInfo struct {
	Goroutines    int     `json:"goroutines"`
	RSSBytes      uint64  `json:"rss_bytes"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Presence    hub.Stats      `json:"presence"`
	System      SystemInfo     `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/rooms
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.Rooms()
	if rooms == nil {
		rooms = []types.RoomSummary{}
	}
	s.sendJSON(w, http.StatusOK, RoomsResponse{Rooms: rooms})
}

// GET /api/rooms/{room}
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	room := types.Normalize(r.PathValue("room"))
	if room == "" {
		s.sendError(w, "Room name is required", http.StatusBadRequest)
		return
	}

	members := s.rooms.ListInRoom(room)
	if len(members) == 0 {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}

	s.sendJSON(w, http.StatusOK, RoomResponse{
		Room: room,
		Users: lo.Map(members, func(m types.Session, _ int) types.RoomMember {
			return types.RoomMember{Username: m.Username}
		}),
	})
}

// GET /api/rooms/{room}/presence?limit=N
func (s *Server) getRoomPresence(w http.ResponseWriter, r *http.Request) {
	room := types.Normalize(r.PathValue("room"))
	if room == "" {
		s.sendError(w, "Room name is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.dbManager.GetRoomPresence(r.Context(), room, limit)
	if err != nil {
		s.logger.Error("failed to load presence", "room", room, "error", err)
		s.sendError(w, "Failed to load presence", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*types.PresenceEvent{}
	}

	s.sendJSON(w, http.StatusOK, PresenceResponse{Room: room, Events: events})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.dbManager.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.connections.GetStats(),
		System:      s.systemInfo(),
	}
	if s.presence != nil {
		response.Presence = s.presence.Stats()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func (s *Server) systemInfo() SystemInfo {
	info := SystemInfo{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.logger.Debug("failed to inspect process", "error", err)
		return info
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		s.logger.Debug("failed to read process memory", "error", err)
		return info
	}
	info.RSSBytes = mem.RSS
	return info
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
