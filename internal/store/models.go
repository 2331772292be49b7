package store

import "time"

type Account struct {
	Id           int
	Username     string
	Email        string
	PasswordHash string
	Bio          string
	Online       bool
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id            int
	ExternalId    string
	Kind          string
	Name          string
	Description   string
	CreatorId     int
	LastMessageId *int
	LastActivity  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	MemberIds     []int
	AdminIds      []int
	Members       []Account
	LastMessage   *Message
}

type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name,omitempty"`
	Mimetype     string `json:"mimetype,omitempty"`
	Size         int64  `json:"size,omitempty"`
	URL          string `json:"url"`
}

type ReadReceipt struct {
	AccountId int
	ReadAt    time.Time
}

type Message struct {
	Id             int
	ExternalId     string
	RoomId         int
	RoomExternalId string
	SenderId       int
	SenderName     string
	Content        string
	Type           string
	Attachment     *Attachment
	ReadBy         []ReadReceipt
	Edited         bool
	EditedAt       *time.Time
	Deleted        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CreateAccountParams struct {
	Username     string
	Email        string
	PasswordHash string
}

type UpdateAccountParams struct {
	AccountId    int
	Username     string
	Bio          string
	PasswordHash string
}

type CreateRoomParams struct {
	ExternalId  string
	Kind        string
	Name        string
	Description string
	CreatorId   int
	MemberIds   []int
}

type UpdateRoomParams struct {
	RoomId      int
	Name        string
	Description string
}

type CreateMessageParams struct {
	ExternalId string
	RoomId     int
	SenderId   int
	Content    string
	Type       string
	Attachment *Attachment
}
