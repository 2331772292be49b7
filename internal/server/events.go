package server

import (
	"encoding/json"
	"time"

	"github.com/mcastellan/chatwire/internal/types"
)

// Client to server event names.
const (
	EventRoomJoin      = "room:join"
	EventRoomLeave     = "room:leave"
	EventMessageSend   = "message:send"
	EventMessageEdit   = "message:edit"
	EventMessageDelete = "message:delete"
	EventMessageRead   = "message:read"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
)

// Server to client event names.
const (
	EventMessageNew          = "message:new"
	EventMessageUpdated      = "message:updated"
	EventMessageDeleted      = "message:deleted"
	EventNotificationMessage = "notification:message"
	EventRoomNew             = "room:new"
	EventRoomUpdated         = "room:updated"
	EventRoomDeleted         = "room:deleted"
	EventUserOnline          = "user:online"
	EventUserOffline         = "user:offline"
	EventError               = "error"
)

// ClientEvent is the envelope for inbound websocket frames.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the envelope for outbound websocket frames.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type RoomPayload struct {
	RoomId string `json:"room_id"`
}

type SendMessagePayload struct {
	RoomId     string            `json:"room_id"`
	Content    string            `json:"content"`
	Type       string            `json:"type"`
	Attachment *types.Attachment `json:"attachment,omitempty"`
}

type EditMessagePayload struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageId string `json:"message_id"`
}

type ReadMessagePayload struct {
	MessageId string `json:"message_id"`
	RoomId    string `json:"room_id"`
}

type MessageDeletedPayload struct {
	MessageId string `json:"message_id"`
	RoomId    string `json:"room_id"`
}

type MessageReadPayload struct {
	MessageId string `json:"message_id"`
	UserId    int    `json:"user_id"`
}

type MessageNotificationPayload struct {
	RoomId  string         `json:"room_id"`
	Message *types.Message `json:"message"`
}

type TypingPayload struct {
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
	RoomId   string `json:"room_id"`
}

type PresencePayload struct {
	UserId   int        `json:"user_id"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type RoomDeletedPayload struct {
	RoomId string `json:"room_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessageEvent(msg *types.Message) *ServerEvent {
	return &ServerEvent{Event: EventMessageNew, Data: msg}
}

func messageUpdatedEvent(msg *types.Message) *ServerEvent {
	return &ServerEvent{Event: EventMessageUpdated, Data: msg}
}

func messageDeletedEvent(messageId, roomId string) *ServerEvent {
	return &ServerEvent{
		Event: EventMessageDeleted,
		Data:  MessageDeletedPayload{MessageId: messageId, RoomId: roomId},
	}
}

func messageReadEvent(messageId string, userId int) *ServerEvent {
	return &ServerEvent{
		Event: EventMessageRead,
		Data:  MessageReadPayload{MessageId: messageId, UserId: userId},
	}
}

func messageNotificationEvent(roomId string, msg *types.Message) *ServerEvent {
	return &ServerEvent{
		Event: EventNotificationMessage,
		Data:  MessageNotificationPayload{RoomId: roomId, Message: msg},
	}
}

func typingStartEvent(userId int, username, roomId string) *ServerEvent {
	return &ServerEvent{
		Event: EventTypingStart,
		Data:  TypingPayload{UserId: userId, Username: username, RoomId: roomId},
	}
}

func typingStopEvent(userId int, roomId string) *ServerEvent {
	return &ServerEvent{
		Event: EventTypingStop,
		Data:  TypingPayload{UserId: userId, RoomId: roomId},
	}
}

func userOnlineEvent(userId int) *ServerEvent {
	return &ServerEvent{Event: EventUserOnline, Data: PresencePayload{UserId: userId}}
}

func userOfflineEvent(userId int, lastSeen time.Time) *ServerEvent {
	return &ServerEvent{
		Event: EventUserOffline,
		Data:  PresencePayload{UserId: userId, LastSeen: &lastSeen},
	}
}

// RoomNewEvent notifies a user that they were added to a room. Routed via
// the user's private channel by the REST layer.
func RoomNewEvent(room *types.Room) *ServerEvent {
	return &ServerEvent{Event: EventRoomNew, Data: room}
}

func RoomUpdatedEvent(room *types.Room) *ServerEvent {
	return &ServerEvent{Event: EventRoomUpdated, Data: room}
}

func RoomDeletedEvent(roomId string) *ServerEvent {
	return &ServerEvent{Event: EventRoomDeleted, Data: RoomDeletedPayload{RoomId: roomId}}
}

func errorEvent(message string) *ServerEvent {
	return &ServerEvent{Event: EventError, Data: ErrorPayload{Message: message}}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
