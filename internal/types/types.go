package types

import (
	"time"
)

// Room kinds.
const (
	RoomKindPrivate = "private"
	RoomKindGroup   = "group"
)

// Message types.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

type User struct {
	Id        int        `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

type Room struct {
	Id           string    `json:"id"`
	Kind         string    `json:"kind"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Members      []User    `json:"members"`
	AdminIds     []int     `json:"admin_ids,omitempty"`
	CreatorId    int       `json:"creator_id"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name,omitempty"`
	Mimetype     string `json:"mimetype,omitempty"`
	Size         int64  `json:"size,omitempty"`
	URL          string `json:"url"`
}

type ReadReceipt struct {
	UserId int       `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	Id         string        `json:"id"`
	RoomId     string        `json:"room_id"`
	Sender     User          `json:"sender"`
	Content    string        `json:"content"`
	Type       string        `json:"type"`
	Attachment *Attachment   `json:"attachment,omitempty"`
	ReadBy     []ReadReceipt `json:"read_by"`
	Edited     bool          `json:"edited"`
	EditedAt   *time.Time    `json:"edited_at,omitempty"`
	Deleted    bool          `json:"deleted"`
	Timestamp  time.Time     `json:"timestamp"`
}
