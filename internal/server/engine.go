package server

import (
	"database/sql"
	"errors"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcastellan/chatwire/internal/stats"
	"github.com/mcastellan/chatwire/internal/store"
	"github.com/mcastellan/chatwire/internal/types"
)

const (
	maxContentLength = 5000

	// deletedMessageContent replaces a soft-deleted message's content.
	deletedMessageContent = "This message was deleted"
)

// messageState is the message lifecycle: created -> edited* -> deleted.
// Deleted is terminal.
type messageState int

const (
	stateCreated messageState = iota
	stateEdited
	stateDeleted
)

func lifecycleState(msg store.Message) messageState {
	switch {
	case msg.Deleted:
		return stateDeleted
	case msg.Edited:
		return stateEdited
	default:
		return stateCreated
	}
}

func (s messageState) mutable() bool {
	return s != stateDeleted
}

// Engine validates, persists, and fans out message lifecycle mutations.
// Persistence always completes before any broadcast, and persist+broadcast is
// serialized per room so every subscriber observes a room's events in commit
// order. Failures are reported only to the initiating connection.
type Engine struct {
	log    *zap.SugaredLogger
	db     store.ChatRepository
	router *Router
	stats  stats.StatsProvider

	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
}

func NewEngine(logger *zap.SugaredLogger, db store.ChatRepository, router *Router, st stats.StatsProvider) *Engine {
	return &Engine{
		log:       logger,
		db:        db,
		router:    router,
		stats:     st,
		roomLocks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) roomLock(roomId string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.roomLocks[roomId]
	if !ok {
		lock = &sync.Mutex{}
		e.roomLocks[roomId] = lock
	}

	return lock
}

// dropRoomLock discards an evicted room's lock so the registry does not
// accumulate an entry for every room ever written to.
func (e *Engine) dropRoomLock(roomId string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.roomLocks, roomId)
}

func (e *Engine) Send(senderId int, p SendMessagePayload) (*types.Message, error) {
	if p.Content == "" && p.Attachment == nil {
		return nil, NewValidationError("message content or attachment is required")
	}
	if utf8.RuneCountInString(p.Content) > maxContentLength {
		return nil, NewValidationError("message cannot exceed 5000 characters")
	}

	msgType := p.Type
	if msgType == "" {
		msgType = types.MessageTypeText
	}
	switch msgType {
	case types.MessageTypeText, types.MessageTypeImage, types.MessageTypeFile, types.MessageTypeSystem:
	default:
		return nil, NewValidationError("invalid message type")
	}

	room, err := e.db.GetRoomByExternalId(p.RoomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError("room not found")
		}
		return nil, NewStoreError(err)
	}

	if !slices.Contains(room.MemberIds, senderId) {
		return nil, NewAuthorizationError("not authorized to send messages in this room")
	}

	lock := e.roomLock(room.ExternalId)
	lock.Lock()
	defer lock.Unlock()

	msg, err := e.db.CreateMessage(store.CreateMessageParams{
		ExternalId: uuid.NewString(),
		RoomId:     room.Id,
		SenderId:   senderId,
		Content:    p.Content,
		Type:       msgType,
		Attachment: attachmentToStore(p.Attachment),
	})
	if err != nil {
		return nil, NewStoreError(err)
	}

	if err := e.db.UpdateRoomActivity(room.Id, msg.Id, msg.CreatedAt); err != nil {
		// the message is durable but the mutation failed; abort the
		// broadcast so the room never observes a half-applied send
		return nil, NewStoreError(err)
	}

	out := MessageToWire(msg)
	e.router.Broadcast(room.ExternalId, newMessageEvent(out), nil)
	e.stats.Incr("NumMessagesSent")

	// background notifications for members with no live subscription
	for _, memberId := range room.MemberIds {
		if memberId == senderId {
			continue
		}
		if e.router.IsSubscribed(room.ExternalId, memberId) {
			continue
		}
		e.router.NotifyUser(memberId, messageNotificationEvent(room.ExternalId, out))
	}

	return out, nil
}

func (e *Engine) Edit(senderId int, p EditMessagePayload) (*types.Message, error) {
	if p.Content == "" {
		return nil, NewValidationError("message content is required")
	}
	if utf8.RuneCountInString(p.Content) > maxContentLength {
		return nil, NewValidationError("message cannot exceed 5000 characters")
	}

	msg, err := e.db.GetMessageByExternalId(p.MessageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError("message not found")
		}
		return nil, NewStoreError(err)
	}

	if msg.SenderId != senderId {
		return nil, NewAuthorizationError("not authorized")
	}
	if !lifecycleState(msg).mutable() {
		return nil, NewAuthorizationError("message has been deleted")
	}

	lock := e.roomLock(msg.RoomExternalId)
	lock.Lock()
	defer lock.Unlock()

	updated, err := e.db.UpdateMessageContent(msg.Id, p.Content, Now())
	if err != nil {
		return nil, NewStoreError(err)
	}

	out := MessageToWire(updated)
	e.router.Broadcast(msg.RoomExternalId, messageUpdatedEvent(out), nil)

	return out, nil
}

func (e *Engine) Delete(senderId int, p DeleteMessagePayload) error {
	msg, err := e.db.GetMessageByExternalId(p.MessageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError("message not found")
		}
		return NewStoreError(err)
	}

	if msg.SenderId != senderId {
		return NewAuthorizationError("not authorized")
	}
	if lifecycleState(msg) == stateDeleted {
		// deleting twice is a no-op
		return nil
	}

	lock := e.roomLock(msg.RoomExternalId)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.db.MarkMessageDeleted(msg.Id, deletedMessageContent); err != nil {
		return NewStoreError(err)
	}

	// identifiers only, so the redacted content is not re-exposed
	e.router.Broadcast(msg.RoomExternalId, messageDeletedEvent(msg.ExternalId, msg.RoomExternalId), nil)

	return nil
}

// MarkRead adds the user to the message's read-by set and relays a read
// receipt to the room's other subscribers. Read receipts are best-effort: a
// missing message or store failure is logged and swallowed, and re-applying
// for the same user is a no-op. A nil origin broadcasts to every subscriber.
func (e *Engine) MarkRead(userId int, origin *Client, p ReadMessagePayload) {
	msg, err := e.db.GetMessageByExternalId(p.MessageId)
	if err != nil {
		e.log.Warnw("mark read: message lookup failed", "message_id", p.MessageId, "error", err)
		return
	}

	roomId := p.RoomId
	if roomId == "" {
		roomId = msg.RoomExternalId
	}

	lock := e.roomLock(roomId)
	lock.Lock()
	defer lock.Unlock()

	if err := e.db.AddMessageRead(msg.Id, userId, Now()); err != nil {
		e.log.Warnw("mark read: persist failed", "message_id", p.MessageId, "error", err)
		return
	}

	e.router.Broadcast(roomId, messageReadEvent(msg.ExternalId, userId), origin)
}

