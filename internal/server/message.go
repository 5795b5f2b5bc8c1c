package server

import (
	"encoding/json"
	"time"

	"github.com/dln/unorooms/internal/room"
	"github.com/dln/unorooms/internal/uno"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type CreateRoomData struct {
	Mode            string `json:"mode,omitempty"`
	MaxPlayers      int    `json:"maxPlayers,omitempty"`
	EnableBots      bool   `json:"enableBots,omitempty"`
	BotCount        int    `json:"botCount,omitempty"`
	TurnTimeSeconds int    `json:"turnTimeSeconds,omitempty"`
}

type JoinRoomData struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomData struct {
	RoomID string `json:"roomId"`
}

type ToggleReadyData struct {
	RoomID string `json:"roomId"`
}

type StartMatchData struct {
	RoomID string `json:"roomId"`
	// BotCount overrides the room's configured bot fill when set.
	BotCount *int `json:"botCount,omitempty"`
}

type MakeMoveData struct {
	RoomID      string    `json:"roomId"`
	Action      string    `json:"action"`
	CardIndex   int       `json:"cardIndex,omitempty"`
	ChosenColor uno.Color `json:"chosenColor,omitempty"`
}

type ChallengeData struct {
	RoomID     string `json:"roomId"`
	TargetSeat string `json:"targetSeat"`
}

type GetStateData struct {
	RoomID string `json:"roomId"`
}

type SubscribeData struct {
	RoomID string `json:"roomId"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomStateData struct {
	Room room.Info      `json:"room"`
	Game *uno.GameState `json:"game,omitempty"`
}

type RoomLeftData struct {
	RoomID string `json:"roomId"`
}

type RoomSummary struct {
	ID          string      `json:"id"`
	Status      room.Status `json:"status"`
	Mode        string      `json:"mode,omitempty"`
	PlayerCount int         `json:"playerCount"`
	MaxPlayers  int         `json:"maxPlayers"`
}

type RoomListData struct {
	Rooms []RoomSummary `json:"rooms"`
}

// RoomStateFromSnapshot converts an orchestrator snapshot into the wire
// shape sent to clients.
func RoomStateFromSnapshot(snap room.Snapshot) RoomStateData {
	return RoomStateData{
		Room: snap.Room,
		Game: snap.Game,
	}
}
