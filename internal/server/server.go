package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dln/unorooms/internal/room"
)

// Server represents the WebSocket server
type Server struct {
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	logger      zerolog.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	service     *room.Service
	httpServer  *http.Server
}

// NewServer creates a new WebSocket server
func NewServer(logger zerolog.Logger, service *room.Service) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				// In production, implement proper origin checking
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.With().Str("component", "server").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		service:     service,
	}
}

// Start starts the WebSocket server. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	go s.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/rooms", s.handleRooms)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	s.logger.Info().Str("addr", addr).Msg("Starting WebSocket server")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server, closing every client connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info().Int("total", total).Msg("Client connected")

		case conn := <-s.unregister:
			s.mu.Lock()
			_, ok := s.connections[conn]
			if ok {
				delete(s.connections, conn)
			}
			total := len(s.connections)
			s.mu.Unlock()

			if ok {
				// A dropped connection leaves its rooms; mid-match this
				// converts the seat to a bot.
				userID := conn.UserID()
				for _, roomID := range conn.Rooms() {
					if userID == "" {
						break
					}
					if err := s.service.LeaveRoom(context.Background(), roomID, userID); err != nil {
						s.logger.Debug().Err(err).Str("room_id", roomID).Str("user", userID).Msg("Cleanup leave failed")
					}
				}
				_ = conn.Close()
			}
			s.logger.Info().Int("total", total).Msg("Client disconnected")

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := NewConnection(conn, s.logger, s.service)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// handleRooms serves the live room list as JSON.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.service.ListRooms()
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, info := range rooms {
		summaries = append(summaries, RoomSummary{
			ID:          info.ID,
			Status:      info.Status,
			Mode:        info.Mode,
			PlayerCount: len(info.Seats),
			MaxPlayers:  info.MaxPlayers,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(RoomListData{Rooms: summaries}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode room list")
	}
}

// ConnectionCount returns the number of connected clients.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
