package store

import "time"

// ChatRepository is the contract the live core and the REST layer depend on.
// Implementations must provide atomic single-row update semantics; callers
// never retry internally and surface failures to the initiating request.
type ChatRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (Account, error)
	UpdateAccount(params UpdateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	SearchAccounts(query string, excludeId, limit int) ([]Account, error)
	UpdateAccountPresence(accountId int, online bool, lastSeen time.Time) error

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetPrivateRoom(accountA, accountB int) (Room, error)
	ListRoomsForAccount(accountId int) ([]Room, error)
	UpdateRoom(params UpdateRoomParams) (Room, error)
	UpdateRoomActivity(roomId, lastMessageId int, lastActivity time.Time) error
	AddRoomMembers(roomId int, accountIds []int) error
	RemoveRoomMember(roomId, accountId int) error
	DeleteRoom(roomId int) error

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageByExternalId(externalId string) (Message, error)
	UpdateMessageContent(messageId int, content string, editedAt time.Time) (Message, error)
	MarkMessageDeleted(messageId int, redaction string) (Message, error)
	AddMessageRead(messageId, accountId int, readAt time.Time) error
	ListMessages(roomId, page, limit int) ([]Message, int, error)
}
