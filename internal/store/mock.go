package store

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockChatRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockChatRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockChatRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockChatRepository) SearchAccounts(query string, excludeId, limit int) ([]Account, error) {
	args := m.Called(query, excludeId, limit)
	return args.Get(0).([]Account), args.Error(1)
}

func (m *MockChatRepository) UpdateAccountPresence(accountId int, online bool, lastSeen time.Time) error {
	args := m.Called(accountId, online, lastSeen)
	return args.Error(0)
}

func (m *MockChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockChatRepository) GetPrivateRoom(accountA, accountB int) (Room, error) {
	args := m.Called(accountA, accountB)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Room), args.Error(1)
}

func (m *MockChatRepository) UpdateRoom(params UpdateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockChatRepository) UpdateRoomActivity(roomId, lastMessageId int, lastActivity time.Time) error {
	args := m.Called(roomId, lastMessageId, lastActivity)
	return args.Error(0)
}

func (m *MockChatRepository) AddRoomMembers(roomId int, accountIds []int) error {
	args := m.Called(roomId, accountIds)
	return args.Error(0)
}

func (m *MockChatRepository) RemoveRoomMember(roomId, accountId int) error {
	args := m.Called(roomId, accountId)
	return args.Error(0)
}

func (m *MockChatRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}

func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockChatRepository) GetMessageByExternalId(externalId string) (Message, error) {
	args := m.Called(externalId)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockChatRepository) UpdateMessageContent(messageId int, content string, editedAt time.Time) (Message, error) {
	args := m.Called(messageId, content, editedAt)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockChatRepository) MarkMessageDeleted(messageId int, redaction string) (Message, error) {
	args := m.Called(messageId, redaction)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockChatRepository) AddMessageRead(messageId, accountId int, readAt time.Time) error {
	args := m.Called(messageId, accountId, readAt)
	return args.Error(0)
}

func (m *MockChatRepository) ListMessages(roomId, page, limit int) ([]Message, int, error) {
	args := m.Called(roomId, page, limit)
	return args.Get(0).([]Message), args.Int(1), args.Error(2)
}
