package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinRoom    = "joinRoom"
	InboundTypeChatMessage = "chatMessage"
	InboundTypeTyping      = "typing"
	InboundTypeLeaveRoom   = "leaveRoom"

	OutboundTypeChatHistory = "chatHistory"
	OutboundTypeOnlineUsers = "onlineUsers"
	OutboundTypeMessage     = "message"
	OutboundTypeUserTyping  = "userTyping"
	OutboundTypeUserJoined  = "userJoined"
	OutboundTypeUserLeft    = "userLeft"
	OutboundTypeError       = "error"
)

// JoinRoomData requests to join a room under a username.
type JoinRoomData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// ChatMessageData is a chat message from the client.
type ChatMessageData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// TypingData is a typing-state change from the client.
type TypingData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// LeaveRoomData requests to leave a room.
type LeaveRoomData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// HistoryMessage is one entry of a chatHistory payload, oldest first.
type HistoryMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// MessageData is a chat message relayed to a room.
type MessageData struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// UserTypingData relays a typing-state change to a room.
type UserTypingData struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}
