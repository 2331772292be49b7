package server

import (
	"github.com/mcastellan/chatwire/internal/store"
	"github.com/mcastellan/chatwire/internal/types"
)

// Conversions between store models and the wire shapes carried by events and
// REST responses. The wire only ever sees external identifiers.

func AccountToUser(a store.Account) types.User {
	return types.User{
		Id:        a.Id,
		Username:  a.Username,
		Email:     a.Email,
		Bio:       a.Bio,
		Online:    a.Online,
		LastSeen:  a.LastSeen,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func RoomToWire(room store.Room) *types.Room {
	members := make([]types.User, len(room.Members))
	for i, m := range room.Members {
		u := AccountToUser(m)
		// member listings carry presence, not contact details
		u.Email = ""
		members[i] = u
	}

	out := &types.Room{
		Id:           room.ExternalId,
		Kind:         room.Kind,
		Name:         room.Name,
		Description:  room.Description,
		Members:      members,
		AdminIds:     room.AdminIds,
		CreatorId:    room.CreatorId,
		LastActivity: room.LastActivity,
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
	if room.LastMessage != nil {
		out.LastMessage = MessageToWire(*room.LastMessage)
	}

	return out
}

func MessageToWire(msg store.Message) *types.Message {
	readBy := make([]types.ReadReceipt, len(msg.ReadBy))
	for i, r := range msg.ReadBy {
		readBy[i] = types.ReadReceipt{UserId: r.AccountId, ReadAt: r.ReadAt}
	}

	return &types.Message{
		Id:     msg.ExternalId,
		RoomId: msg.RoomExternalId,
		Sender: types.User{
			Id:       msg.SenderId,
			Username: msg.SenderName,
		},
		Content:    msg.Content,
		Type:       msg.Type,
		Attachment: attachmentFromStore(msg.Attachment),
		ReadBy:     readBy,
		Edited:     msg.Edited,
		EditedAt:   msg.EditedAt,
		Deleted:    msg.Deleted,
		Timestamp:  msg.CreatedAt,
	}
}

func attachmentToStore(att *types.Attachment) *store.Attachment {
	if att == nil {
		return nil
	}

	return &store.Attachment{
		Filename:     att.Filename,
		OriginalName: att.OriginalName,
		Mimetype:     att.Mimetype,
		Size:         att.Size,
		URL:          att.URL,
	}
}

func attachmentFromStore(att *store.Attachment) *types.Attachment {
	if att == nil {
		return nil
	}

	return &types.Attachment{
		Filename:     att.Filename,
		OriginalName: att.OriginalName,
		Mimetype:     att.Mimetype,
		Size:         att.Size,
		URL:          att.URL,
	}
}
