package server

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mcastellan/chatwire/internal/stats"
	"github.com/mcastellan/chatwire/internal/store"
	"github.com/mcastellan/chatwire/internal/testutil"
	"github.com/mcastellan/chatwire/internal/types"
)

func newTestEngine(t *testing.T, db store.ChatRepository, st stats.StatsProvider) (*Engine, *Router) {
	t.Helper()
	logger := testutil.TestLogger(t)
	rt := NewRouter(logger, db, stats.NoopStats{})
	return NewEngine(logger, db, rt, st), rt
}

func assertChatErrorKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	chatErr := AsChatError(err)
	if assert.NotNil(t, chatErr, "expected a chat error, got %v", err) {
		assert.Equal(t, kind, chatErr.Kind)
	}
}

func TestEngine_Send(t *testing.T) {
	now := Now()

	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomByExternalId", "room1").Return(store.Room{
		Id:         10,
		ExternalId: "room1",
		Kind:       types.RoomKindGroup,
		MemberIds:  []int{1, 2, 3},
	}, nil).Once()
	db.On("CreateMessage", mock.MatchedBy(func(p store.CreateMessageParams) bool {
		return p.RoomId == 10 && p.SenderId == 1 &&
			p.Content == "hello" && p.Type == types.MessageTypeText &&
			p.ExternalId != ""
	})).Return(store.Message{
		Id:             100,
		ExternalId:     "msg-1",
		RoomId:         10,
		RoomExternalId: "room1",
		SenderId:       1,
		SenderName:     "alice",
		Content:        "hello",
		Type:           types.MessageTypeText,
		ReadBy:         []store.ReadReceipt{{AccountId: 1, ReadAt: now}},
		CreatedAt:      now,
	}, nil).Once()
	db.On("UpdateRoomActivity", 10, 100, now).Return(nil).Once()

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("Incr", "NumMessagesSent").Once()

	engine, rt := newTestEngine(t, db, su)

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	carol := newTestClient(t, 3, "carol")

	rt.Subscribe(alice, "room1")
	rt.Subscribe(bob, "room1")
	rt.Register(carol) // member with no live subscription

	msg, err := engine.Send(alice.user.Id, SendMessagePayload{RoomId: "room1", Content: "hello"})
	assert.NoError(t, err)
	assert.Equal(t, "msg-1", msg.Id)
	assert.Equal(t, "room1", msg.RoomId)
	assert.Len(t, msg.ReadBy, 1, "expected the sender's implicit read receipt")
	assert.Equal(t, 1, msg.ReadBy[0].UserId)

	// every subscriber receives the message, the sender included
	aliceEvents := drainEvents(alice)
	bobEvents := drainEvents(bob)
	assert.Len(t, aliceEvents, 1)
	assert.Len(t, bobEvents, 1)
	assert.Equal(t, EventMessageNew, bobEvents[0].Event)

	// the unsubscribed member gets a background notification instead
	carolEvents := drainEvents(carol)
	assert.Len(t, carolEvents, 1)
	assert.Equal(t, EventNotificationMessage, carolEvents[0].Event)
	payload, ok := carolEvents[0].Data.(MessageNotificationPayload)
	assert.True(t, ok)
	assert.Equal(t, "room1", payload.RoomId)
	assert.Equal(t, "msg-1", payload.Message.Id)
}

func TestEngine_SendValidation(t *testing.T) {
	tcases := []struct {
		name    string
		payload SendMessagePayload
	}{
		{
			name:    "empty content without attachment",
			payload: SendMessagePayload{RoomId: "room1"},
		},
		{
			name: "content too long",
			payload: SendMessagePayload{
				RoomId:  "room1",
				Content: strings.Repeat("a", maxContentLength+1),
			},
		},
		{
			name: "multibyte content too long",
			payload: SendMessagePayload{
				RoomId:  "room1",
				Content: strings.Repeat("é", maxContentLength+1),
			},
		},
		{
			name:    "invalid type",
			payload: SendMessagePayload{RoomId: "room1", Content: "hi", Type: "carrier-pigeon"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &store.MockChatRepository{}
			defer db.AssertExpectations(t)

			engine, _ := newTestEngine(t, db, stats.NoopStats{})
			alice := newTestClient(t, 1, "alice")

			_, err := engine.Send(alice.user.Id, tc.payload)
			assertChatErrorKind(t, err, KindValidation)
			db.AssertNotCalled(t, "CreateMessage", mock.Anything)
		})
	}
}

func TestEngine_ContentLimitCountsRunes(t *testing.T) {
	// 3000 characters, 6000 bytes: well under the limit
	content := strings.Repeat("é", 3000)
	now := Now()

	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomByExternalId", "room1").Return(store.Room{
		Id: 10, ExternalId: "room1", MemberIds: []int{1, 2},
	}, nil).Once()
	db.On("CreateMessage", mock.MatchedBy(func(p store.CreateMessageParams) bool {
		return p.Content == content
	})).Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: content, Type: types.MessageTypeText, CreatedAt: now,
	}, nil).Once()
	db.On("UpdateRoomActivity", 10, 100, now).Return(nil).Once()
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: content, Type: types.MessageTypeText, CreatedAt: now,
	}, nil).Once()
	db.On("UpdateMessageContent", 100, content, mock.Anything).Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: content, Type: types.MessageTypeText,
		Edited: true, EditedAt: &now, CreatedAt: now,
	}, nil).Once()

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("Incr", "NumMessagesSent").Once()

	engine, rt := newTestEngine(t, db, su)

	alice := newTestClient(t, 1, "alice")
	rt.Subscribe(alice, "room1")

	msg, err := engine.Send(alice.user.Id, SendMessagePayload{RoomId: "room1", Content: content})
	assert.NoError(t, err)
	assert.Equal(t, content, msg.Content)

	_, err = engine.Edit(alice.user.Id, EditMessagePayload{MessageId: "msg-1", Content: content})
	assert.NoError(t, err)
}

func TestEngine_SendRoomNotFound(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomByExternalId", "nope").Return(store.Room{}, sql.ErrNoRows).Once()

	engine, _ := newTestEngine(t, db, stats.NoopStats{})
	alice := newTestClient(t, 1, "alice")

	_, err := engine.Send(alice.user.Id, SendMessagePayload{RoomId: "nope", Content: "hi"})
	assertChatErrorKind(t, err, KindNotFound)
}

func TestEngine_SendNonMember(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomByExternalId", "room1").Return(store.Room{
		Id:         10,
		ExternalId: "room1",
		MemberIds:  []int{2, 3},
	}, nil).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	mallory := newTestClient(t, 1, "mallory")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(bob, "room1")

	_, err := engine.Send(mallory.user.Id, SendMessagePayload{RoomId: "room1", Content: "hi"})
	assertChatErrorKind(t, err, KindAuthorization)

	// nothing persisted, nothing delivered to the room
	db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	assert.Empty(t, drainEvents(bob))
}

func TestEngine_SendAbortsBroadcastOnActivityFailure(t *testing.T) {
	now := Now()

	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomByExternalId", "room1").Return(store.Room{
		Id: 10, ExternalId: "room1", MemberIds: []int{1, 2},
	}, nil).Once()
	db.On("CreateMessage", mock.Anything).Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: "hi", Type: types.MessageTypeText, CreatedAt: now,
	}, nil).Once()
	db.On("UpdateRoomActivity", 10, 100, now).Return(errors.New("db down")).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(alice, "room1")
	rt.Subscribe(bob, "room1")

	_, err := engine.Send(alice.user.Id, SendMessagePayload{RoomId: "room1", Content: "hi"})
	assertChatErrorKind(t, err, KindStore)
	assert.Empty(t, drainEvents(bob), "expected no broadcast after a failed persist")
}

func TestEngine_Edit(t *testing.T) {
	now := Now()

	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: "hello", Type: types.MessageTypeText, CreatedAt: now,
	}, nil).Once()
	db.On("UpdateMessageContent", 100, "hello world", mock.Anything).Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: "hello world", Type: types.MessageTypeText,
		Edited: true, EditedAt: &now, CreatedAt: now,
	}, nil).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(alice, "room1")
	rt.Subscribe(bob, "room1")

	msg, err := engine.Edit(alice.user.Id, EditMessagePayload{MessageId: "msg-1", Content: "hello world"})
	assert.NoError(t, err)
	assert.True(t, msg.Edited)
	assert.Equal(t, "hello world", msg.Content)

	bobEvents := drainEvents(bob)
	assert.Len(t, bobEvents, 1)
	assert.Equal(t, EventMessageUpdated, bobEvents[0].Event)
}

func TestEngine_EditOnlySender(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomExternalId: "room1", SenderId: 1,
	}, nil).Once()

	engine, _ := newTestEngine(t, db, stats.NoopStats{})

	// admins included, nobody but the sender may edit
	bob := newTestClient(t, 2, "bob")
	_, err := engine.Edit(bob.user.Id, EditMessagePayload{MessageId: "msg-1", Content: "hijack"})
	assertChatErrorKind(t, err, KindAuthorization)
	db.AssertNotCalled(t, "UpdateMessageContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_EditDeletedMessage(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomExternalId: "room1", SenderId: 1,
		Deleted: true, Content: deletedMessageContent,
	}, nil).Once()

	engine, _ := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	_, err := engine.Edit(alice.user.Id, EditMessagePayload{MessageId: "msg-1", Content: "resurrect"})
	assertChatErrorKind(t, err, KindAuthorization)
}

func TestEngine_EditNotFound(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "nope").Return(store.Message{}, sql.ErrNoRows).Once()

	engine, _ := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	_, err := engine.Edit(alice.user.Id, EditMessagePayload{MessageId: "nope", Content: "hi"})
	assertChatErrorKind(t, err, KindNotFound)
}

func TestEngine_Delete(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: "hello",
	}, nil).Once()
	db.On("MarkMessageDeleted", 100, deletedMessageContent).Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: deletedMessageContent, Deleted: true,
	}, nil).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(alice, "room1")
	rt.Subscribe(bob, "room1")

	err := engine.Delete(alice.user.Id, DeleteMessagePayload{MessageId: "msg-1"})
	assert.NoError(t, err)

	bobEvents := drainEvents(bob)
	assert.Len(t, bobEvents, 1)
	assert.Equal(t, EventMessageDeleted, bobEvents[0].Event)
	assert.Equal(t, MessageDeletedPayload{MessageId: "msg-1", RoomId: "room1"}, bobEvents[0].Data)
}

func TestEngine_DeleteOnlySender(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomExternalId: "room1", SenderId: 1,
	}, nil).Once()

	engine, _ := newTestEngine(t, db, stats.NoopStats{})

	bob := newTestClient(t, 2, "bob")
	err := engine.Delete(bob.user.Id, DeleteMessagePayload{MessageId: "msg-1"})
	assertChatErrorKind(t, err, KindAuthorization)
	db.AssertNotCalled(t, "MarkMessageDeleted", mock.Anything, mock.Anything)
}

func TestEngine_DeleteTwiceIsNoop(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomExternalId: "room1", SenderId: 1,
		Deleted: true, Content: deletedMessageContent,
	}, nil).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(bob, "room1")

	err := engine.Delete(alice.user.Id, DeleteMessagePayload{MessageId: "msg-1"})
	assert.NoError(t, err, "expected deleting twice to be a no-op")
	db.AssertNotCalled(t, "MarkMessageDeleted", mock.Anything, mock.Anything)
	assert.Empty(t, drainEvents(bob), "expected no event for a repeated delete")
}

func TestEngine_MarkRead(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1", SenderId: 1,
	}, nil).Once()
	db.On("AddMessageRead", 100, 2, mock.Anything).Return(nil).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(alice, "room1")
	rt.Subscribe(bob, "room1")

	engine.MarkRead(bob.user.Id, bob, ReadMessagePayload{MessageId: "msg-1", RoomId: "room1"})

	// the reader does not hear their own receipt
	assert.Empty(t, drainEvents(bob))

	aliceEvents := drainEvents(alice)
	assert.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMessageRead, aliceEvents[0].Event)
	assert.Equal(t, MessageReadPayload{MessageId: "msg-1", UserId: 2}, aliceEvents[0].Data)
}

func TestEngine_MarkReadHoldsRoomLock(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1", SenderId: 1,
	}, nil).Once()
	db.On("AddMessageRead", 100, 2, mock.Anything).Return(nil).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(alice, "room1")
	rt.Subscribe(bob, "room1")

	lock := engine.roomLock("room1")
	lock.Lock()

	done := make(chan struct{})
	go func() {
		engine.MarkRead(bob.user.Id, bob, ReadMessagePayload{MessageId: "msg-1", RoomId: "room1"})
		close(done)
	}()

	// no receipt may commit or fan out while the room's writer holds the lock
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, drainEvents(alice), "expected no receipt while the room is locked")

	lock.Unlock()
	<-done

	aliceEvents := drainEvents(alice)
	assert.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMessageRead, aliceEvents[0].Event)
}

func TestEngine_MarkReadSwallowsFailures(t *testing.T) {
	tcases := []struct {
		name  string
		setup func(db *store.MockChatRepository)
	}{
		{
			name: "message lookup fails",
			setup: func(db *store.MockChatRepository) {
				db.On("GetMessageByExternalId", "msg-1").
					Return(store.Message{}, sql.ErrNoRows).Once()
			},
		},
		{
			name: "persist fails",
			setup: func(db *store.MockChatRepository) {
				db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
					Id: 100, ExternalId: "msg-1", RoomExternalId: "room1",
				}, nil).Once()
				db.On("AddMessageRead", 100, 2, mock.Anything).
					Return(errors.New("db down")).Once()
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &store.MockChatRepository{}
			defer db.AssertExpectations(t)
			tc.setup(db)

			engine, rt := newTestEngine(t, db, stats.NoopStats{})

			alice := newTestClient(t, 1, "alice")
			bob := newTestClient(t, 2, "bob")
			rt.Subscribe(alice, "room1")

			engine.MarkRead(bob.user.Id, bob, ReadMessagePayload{MessageId: "msg-1", RoomId: "room1"})

			assert.Empty(t, drainEvents(alice), "expected no receipt after a failure")
			assert.Empty(t, drainEvents(bob), "expected no error surfaced to the reader")
		})
	}
}

func TestEngine_MarkReadFallsBackToMessageRoom(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageByExternalId", "msg-1").Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomExternalId: "room1",
	}, nil).Once()
	db.On("AddMessageRead", 100, 2, mock.Anything).Return(nil).Once()

	engine, rt := newTestEngine(t, db, stats.NoopStats{})

	alice := newTestClient(t, 1, "alice")
	bob := newTestClient(t, 2, "bob")
	rt.Subscribe(alice, "room1")

	engine.MarkRead(bob.user.Id, bob, ReadMessagePayload{MessageId: "msg-1"})

	assert.Len(t, drainEvents(alice), 1, "expected the receipt routed via the message's room")
}

func TestLifecycleState(t *testing.T) {
	assert.Equal(t, stateCreated, lifecycleState(store.Message{}))
	assert.Equal(t, stateEdited, lifecycleState(store.Message{Edited: true}))
	assert.Equal(t, stateDeleted, lifecycleState(store.Message{Edited: true, Deleted: true}))

	assert.True(t, stateCreated.mutable())
	assert.True(t, stateEdited.mutable())
	assert.False(t, stateDeleted.mutable(), "expected deleted to be terminal")
}
