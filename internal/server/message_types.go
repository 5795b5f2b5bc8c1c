package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
// These are used for client-server communication protocol
const (
	// Client to server messages
	MessageTypeAuth        MessageType = "auth"
	MessageTypeCreateRoom  MessageType = "create_room"
	MessageTypeJoinRoom    MessageType = "join_room"
	MessageTypeLeaveRoom   MessageType = "leave_room"
	MessageTypeToggleReady MessageType = "toggle_ready"
	MessageTypeStartMatch  MessageType = "start_match"
	MessageTypeMakeMove    MessageType = "make_move"
	MessageTypeChallenge   MessageType = "challenge"
	MessageTypeGetState    MessageType = "get_state"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeListRooms   MessageType = "list_rooms"

	// Server to client messages
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeRoomState    MessageType = "room_state"
	MessageTypeRoomLeft     MessageType = "room_left"
	MessageTypeRoomList     MessageType = "room_list"
	MessageTypeError        MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
