package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mcastellan/chatwire/internal/store"
	"github.com/mcastellan/chatwire/internal/testutil"
	"github.com/mcastellan/chatwire/internal/types"
)

func clientEvent(t *testing.T, event string, payload any) *ClientEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	return &ClientEvent{Event: event, Data: data}
}

func TestClient_DispatchRoomJoinAndLeave(t *testing.T) {
	cs := newTestChatServer(t, &store.MockChatRepository{})
	alice := newServerClient(t, cs, 1, "alice")

	alice.dispatch(clientEvent(t, EventRoomJoin, RoomPayload{RoomId: "room1"}))
	assert.True(t, cs.router.IsSubscribed("room1", 1))

	alice.dispatch(clientEvent(t, EventRoomLeave, RoomPayload{RoomId: "room1"}))
	assert.False(t, cs.router.IsSubscribed("room1", 1))
}

func TestClient_DispatchMessageSend(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomByExternalId", "room1").Return(store.Room{
		Id: 10, ExternalId: "room1", MemberIds: []int{1},
	}, nil).Once()
	db.On("CreateMessage", mock.Anything).Return(store.Message{
		Id: 100, ExternalId: "msg-1", RoomId: 10, RoomExternalId: "room1",
		SenderId: 1, Content: "hi", Type: types.MessageTypeText, CreatedAt: Now(),
	}, nil).Once()
	db.On("UpdateRoomActivity", 10, 100, mock.Anything).Return(nil).Once()

	cs := newTestChatServer(t, db)
	alice := newServerClient(t, cs, 1, "alice")
	cs.router.Subscribe(alice, "room1")

	alice.dispatch(clientEvent(t, EventMessageSend, SendMessagePayload{
		RoomId:  "room1",
		Content: "hi",
	}))

	events := drainEvents(alice)
	assert.Len(t, events, 1)
	assert.Equal(t, EventMessageNew, events[0].Event)
}

func TestClient_DispatchReportsOperationErrors(t *testing.T) {
	db := &store.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomByExternalId", "room1").Return(store.Room{
		Id: 10, ExternalId: "room1", MemberIds: []int{2},
	}, nil).Once()

	cs := newTestChatServer(t, db)
	alice := newServerClient(t, cs, 1, "alice")

	alice.dispatch(clientEvent(t, EventMessageSend, SendMessagePayload{
		RoomId:  "room1",
		Content: "hi",
	}))

	events := drainEvents(alice)
	assert.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Event)
}

func TestClient_DispatchUnknownEvent(t *testing.T) {
	cs := newTestChatServer(t, &store.MockChatRepository{})
	alice := newServerClient(t, cs, 1, "alice")

	alice.dispatch(&ClientEvent{Event: "bogus:event"})

	events := drainEvents(alice)
	assert.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Event)
}

func TestClient_DispatchMalformedPayload(t *testing.T) {
	cs := newTestChatServer(t, &store.MockChatRepository{})
	alice := newServerClient(t, cs, 1, "alice")

	alice.dispatch(&ClientEvent{Event: EventRoomJoin, Data: json.RawMessage(`"not an object"`)})

	events := drainEvents(alice)
	assert.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Event)
	assert.False(t, cs.router.IsSubscribed("", 1))
}

func TestClient_ReportError(t *testing.T) {
	alice := newTestClient(t, 1, "alice")

	alice.reportError(NewValidationError("bad payload"))

	events := drainEvents(alice)
	assert.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Event)
	assert.Equal(t, ErrorPayload{Message: "bad payload"}, events[0].Data)

	select {
	case <-alice.stop:
		t.Error("expected a validation error to keep the connection open")
	default:
	}
}

func TestClient_ReportAuthErrorClosesConnection(t *testing.T) {
	alice := newTestClient(t, 1, "alice")

	alice.reportError(NewAuthError("session expired"))

	events := drainEvents(alice)
	assert.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Event)

	select {
	case <-alice.stop:
	default:
		t.Error("expected an auth error to close the connection")
	}
}

func TestClient_QueueEventDropsWhenFull(t *testing.T) {
	alice := NewClient(types.User{Id: 1, Username: "alice"}, nil, nil, testutil.TestLogger(t))

	for i := 0; i < cap(alice.send); i++ {
		assert.True(t, alice.queueEvent(errorEvent("fill")))
	}

	assert.False(t, alice.queueEvent(errorEvent("overflow")),
		"expected a full queue to drop rather than block")
}

func TestClient_QueueEventAfterClose(t *testing.T) {
	alice := newTestClient(t, 1, "alice")
	alice.close()

	assert.False(t, alice.queueEvent(errorEvent("late")))
}
