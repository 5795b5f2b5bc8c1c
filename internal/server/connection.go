package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dln/unorooms/internal/room"
	"github.com/dln/unorooms/internal/uno"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	service   *room.Service
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once

	identity room.Identity
	// subs tracks active room subscriptions so they can be torn down when
	// the connection goes away.
	subs map[string]*room.Subscriber
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger zerolog.Logger, service *room.Service) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 256),
		service: service,
		logger:  logger.With().Str("component", "conn").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]*room.Subscriber),
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		for _, sub := range c.subs {
			sub.Close()
		}
		c.subs = make(map[string]*room.Subscriber)
		c.mu.Unlock()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, expected during shutdown
			c.logger.Debug().Interface("recovered", r).Msg("Attempted to send on closed connection")
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn().Msg("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// UserID returns the authenticated user id, or empty when the connection
// has not authenticated.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity.UserID
}

// Rooms returns the ids of rooms this connection is subscribed to.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	return ids
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket error")
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error().Err(err).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug().Str("type", msg.Type.String()).Str("user", c.UserID()).Msg("Received message")

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeCreateRoom:
		var data CreateRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse create room data")
			return
		}
		c.handleCreateRoom(data)

	case MessageTypeJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join room data")
			return
		}
		c.handleJoinRoom(data)

	case MessageTypeLeaveRoom:
		var data LeaveRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse leave room data")
			return
		}
		c.handleLeaveRoom(data)

	case MessageTypeToggleReady:
		var data ToggleReadyData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse toggle ready data")
			return
		}
		c.handleToggleReady(data)

	case MessageTypeStartMatch:
		var data StartMatchData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse start match data")
			return
		}
		c.handleStartMatch(data)

	case MessageTypeMakeMove:
		var data MakeMoveData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse make move data")
			return
		}
		c.handleMakeMove(data)

	case MessageTypeChallenge:
		var data ChallengeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse challenge data")
			return
		}
		c.handleChallenge(data)

	case MessageTypeGetState:
		var data GetStateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse get state data")
			return
		}
		c.handleGetState(data)

	case MessageTypeSubscribe:
		var data SubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse subscribe data")
			return
		}
		c.handleSubscribe(data)

	case MessageTypeListRooms:
		c.handleListRooms()

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to create error message")
		return
	}

	_ = c.SendMessage(errorMsg)
}

// sendServiceError maps orchestrator and rules errors to wire error codes.
func (c *Connection) sendServiceError(err error) {
	c.sendError(errorCode(err), err.Error())
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, room.ErrRoomFull):
		return "room_full"
	case errors.Is(err, room.ErrNotHost):
		return "not_host"
	case errors.Is(err, room.ErrNotMember):
		return "not_member"
	case errors.Is(err, room.ErrWrongStatus):
		return "wrong_status"
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, room.ErrNotReady):
		return "not_ready"
	case errors.Is(err, room.ErrConflict):
		return "conflict"
	case errors.Is(err, uno.ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, uno.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, uno.ErrIllegalCard):
		return "illegal_card"
	case errors.Is(err, uno.ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

// authed returns the caller identity, sending an error when the
// connection has not authenticated yet.
func (c *Connection) authed() (room.Identity, bool) {
	c.mu.RLock()
	id := c.identity
	c.mu.RUnlock()
	if id.UserID == "" {
		c.sendError("not_authenticated", "Must authenticate first")
		return room.Identity{}, false
	}
	return id, true
}

func (c *Connection) handleAuth(data AuthData) {
	if data.DisplayName == "" {
		c.sendError("invalid_auth", "Display name required")
		return
	}

	// Guest identities only; real session auth sits in front of this
	// server.
	userID := "guest-" + uuid.NewString()
	c.mu.Lock()
	c.identity = room.Identity{
		UserID:      userID,
		DisplayName: data.DisplayName,
		AvatarURL:   data.AvatarURL,
	}
	c.mu.Unlock()

	c.logger.Info().Str("user", userID).Str("display_name", data.DisplayName).Msg("Client authenticated")

	response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		Success: true,
		UserID:  userID,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleCreateRoom(data CreateRoomData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	snap, err := c.service.CreateRoom(c.ctx, id, room.CreateOptions{
		Mode:          data.Mode,
		MaxPlayers:    data.MaxPlayers,
		EnableBots:    data.EnableBots,
		BotCount:      data.BotCount,
		TurnTimeLimit: time.Duration(data.TurnTimeSeconds) * time.Second,
	})
	if err != nil {
		c.sendServiceError(err)
		return
	}

	c.subscribeTo(snap.Room.ID)
	response, _ := NewMessage(MessageTypeRoomState, RoomStateFromSnapshot(*snap))
	_ = c.SendMessage(response)
}

func (c *Connection) handleJoinRoom(data JoinRoomData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	snap, err := c.service.JoinRoom(c.ctx, data.RoomID, id)
	if err != nil {
		c.sendServiceError(err)
		return
	}

	c.subscribeTo(data.RoomID)
	response, _ := NewMessage(MessageTypeRoomState, RoomStateFromSnapshot(*snap))
	_ = c.SendMessage(response)
}

func (c *Connection) handleLeaveRoom(data LeaveRoomData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	if err := c.service.LeaveRoom(c.ctx, data.RoomID, id.UserID); err != nil {
		c.sendServiceError(err)
		return
	}

	c.unsubscribeFrom(data.RoomID)
	response, _ := NewMessage(MessageTypeRoomLeft, RoomLeftData{RoomID: data.RoomID})
	_ = c.SendMessage(response)
}

func (c *Connection) handleToggleReady(data ToggleReadyData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	if _, err := c.service.ToggleReady(c.ctx, data.RoomID, id.UserID); err != nil {
		c.sendServiceError(err)
	}
	// State reaches the client through its subscription.
}

func (c *Connection) handleStartMatch(data StartMatchData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	botCount := -1
	if data.BotCount != nil {
		botCount = *data.BotCount
	}
	if _, err := c.service.StartMatch(c.ctx, data.RoomID, id.UserID, botCount); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Connection) handleMakeMove(data MakeMoveData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	mv := room.Move{
		Action:      room.MoveAction(data.Action),
		CardIndex:   data.CardIndex,
		ChosenColor: data.ChosenColor,
	}
	if _, err := c.service.MakeMove(c.ctx, data.RoomID, id.UserID, mv); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Connection) handleChallenge(data ChallengeData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	if _, err := c.service.Challenge(c.ctx, data.RoomID, id.UserID, data.TargetSeat); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Connection) handleGetState(data GetStateData) {
	id, ok := c.authed()
	if !ok {
		return
	}

	snap, err := c.service.GetState(data.RoomID, id.UserID)
	if err != nil {
		c.sendServiceError(err)
		return
	}

	response, _ := NewMessage(MessageTypeRoomState, RoomStateFromSnapshot(*snap))
	_ = c.SendMessage(response)
}

func (c *Connection) handleSubscribe(data SubscribeData) {
	if _, ok := c.authed(); !ok {
		return
	}
	if err := c.subscribeTo(data.RoomID); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Connection) handleListRooms() {
	rooms := c.service.ListRooms()
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

	response, _ := NewMessage(MessageTypeRoomList, RoomListData{Rooms: summaries})
	_ = c.SendMessage(response)
}

// subscribeTo attaches this connection to a room's snapshot feed and
// forwards updates until the feed or the connection closes. Subscribing
// to the same room twice is a no-op.
func (c *Connection) subscribeTo(roomID string) error {
	c.mu.Lock()
	if _, exists := c.subs[roomID]; exists {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sub, err := c.service.Subscribe(roomID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[roomID] = sub
	c.mu.Unlock()

	go c.forward(roomID, sub)
	return nil
}

func (c *Connection) unsubscribeFrom(roomID string) {
	c.mu.Lock()
	sub, ok := c.subs[roomID]
	if ok {
		delete(c.subs, roomID)
	}
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// forward pushes room snapshots to the client. Game state is withheld
// from spectators who hold no seat in the room.
func (c *Connection) forward(roomID string, sub *room.Subscriber) {
	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				c.mu.Lock()
				delete(c.subs, roomID)
				c.mu.Unlock()
				return
			}
			userID := c.UserID()
			member := false
			for _, seat := range snap.Room.Seats {
				if seat.UserID == userID {
					member = true
					break
				}
			}
			if !member {
				snap.Game = nil
			}
			msg, err := NewMessage(MessageTypeRoomState, RoomStateFromSnapshot(snap))
			if err != nil {
				continue
			}
			if err := c.SendMessage(msg); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
