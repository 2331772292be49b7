package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	accountColumns = "id, username, email, password_hash, bio, online, last_seen, created_at, updated_at"
	roomColumns    = "id, external_id, kind, name, description, creator_id, last_message_id, last_activity, created_at, updated_at"
)

const messageSelect = "SELECT m.id, m.external_id, m.room_id, r.external_id, m.sender_id, a.username, " +
	"m.content, m.type, m.attachment, m.edited, m.edited_at, m.deleted, m.created_at, m.updated_at " +
	"FROM messages m " +
	"JOIN rooms r ON r.id = m.room_id " +
	"JOIN accounts a ON a.id = m.sender_id "

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	var lastSeen sql.NullTime
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Bio,
		&a.Online,
		&lastSeen,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if lastSeen.Valid {
		a.LastSeen = &lastSeen.Time
	}

	return a, err
}

func scanRoom(row rowScanner) (Room, error) {
	var r Room
	var lastMessageId sql.NullInt64
	err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Kind,
		&r.Name,
		&r.Description,
		&r.CreatorId,
		&lastMessageId,
		&r.LastActivity,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if lastMessageId.Valid {
		id := int(lastMessageId.Int64)
		r.LastMessageId = &id
	}

	return r, err
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var attachment []byte
	var editedAt sql.NullTime
	err := row.Scan(
		&m.Id,
		&m.ExternalId,
		&m.RoomId,
		&m.RoomExternalId,
		&m.SenderId,
		&m.SenderName,
		&m.Content,
		&m.Type,
		&attachment,
		&m.Edited,
		&editedAt,
		&m.Deleted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if editedAt.Valid {
		m.EditedAt = &editedAt.Time
	}
	if len(attachment) > 0 {
		var att Attachment
		if err := json.Unmarshal(attachment, &att); err != nil {
			return Message{}, fmt.Errorf("decode attachment: %w", err)
		}
		m.Attachment = &att
	}

	return m, nil
}

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING "+accountColumns,
		params.Username,
		params.Email,
		params.PasswordHash,
		now,
	)

	return scanAccount(row)
}

func (db *PgChatRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, bio = $3, "+
			"password_hash = COALESCE(NULLIF($4, ''), password_hash), updated_at = $5 "+
			"WHERE id = $1 RETURNING "+accountColumns,
		params.AccountId,
		params.Username,
		params.Bio,
		params.PasswordHash,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgChatRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	return scanAccount(row)
}

func (db *PgChatRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanAccount(row)
}

func (db *PgChatRepository) SearchAccounts(query string, excludeId, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT "+accountColumns+" FROM accounts "+
			"WHERE id <> $1 AND (username ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%') "+
			"ORDER BY username LIMIT $3",
		excludeId,
		query,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]Account, 0, limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

func (db *PgChatRepository) UpdateAccountPresence(accountId int, online bool, lastSeen time.Time) error {
	// last_seen only moves on an offline transition
	_, err := db.conn.Exec(
		"UPDATE accounts SET online = $2, last_seen = CASE WHEN $2 THEN last_seen ELSE $3 END "+
			"WHERE id = $1",
		accountId,
		online,
		lastSeen,
	)

	return err
}

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO rooms (external_id, kind, name, description, creator_id, last_activity, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6, $6) RETURNING "+roomColumns,
		params.ExternalId,
		params.Kind,
		params.Name,
		params.Description,
		params.CreatorId,
		now,
	)

	room, err := scanRoom(row)
	if err != nil {
		return Room{}, err
	}

	for _, memberId := range params.MemberIds {
		_, err = tx.Exec(
			"INSERT INTO room_members (room_id, account_id, admin, created_at) "+
				"VALUES ($1, $2, $3, $4) ON CONFLICT (room_id, account_id) DO NOTHING",
			room.Id,
			memberId,
			memberId == params.CreatorId && params.Kind == "group",
			now,
		)
		if err != nil {
			return Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	if err = db.loadRoomMembers(&room); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) loadRoomMembers(room *Room) error {
	rows, err := db.conn.Query(
		"SELECT a.id, a.username, a.email, a.password_hash, a.bio, a.online, a.last_seen, "+
			"a.created_at, a.updated_at, m.admin "+
			"FROM room_members m JOIN accounts a ON a.id = m.account_id "+
			"WHERE m.room_id = $1 ORDER BY a.id",
		room.Id,
	)
	if err != nil {
		return fmt.Errorf("load room members: %w", err)
	}
	defer rows.Close()

	room.MemberIds = room.MemberIds[:0]
	room.AdminIds = room.AdminIds[:0]
	room.Members = room.Members[:0]
	for rows.Next() {
		var a Account
		var lastSeen sql.NullTime
		var admin bool
		err := rows.Scan(
			&a.Id,
			&a.Username,
			&a.Email,
			&a.PasswordHash,
			&a.Bio,
			&a.Online,
			&lastSeen,
			&a.CreatedAt,
			&a.UpdatedAt,
			&admin,
		)
		if err != nil {
			return fmt.Errorf("scan room member: %w", err)
		}
		if lastSeen.Valid {
			a.LastSeen = &lastSeen.Time
		}

		room.MemberIds = append(room.MemberIds, a.Id)
		if admin {
			room.AdminIds = append(room.AdminIds, a.Id)
		}
		room.Members = append(room.Members, a)
	}

	return rows.Err()
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT "+roomColumns+" FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	room, err := scanRoom(row)
	if err != nil {
		return Room{}, err
	}

	if err := db.loadRoomMembers(&room); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) GetPrivateRoom(accountA, accountB int) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT r.id, r.external_id, r.kind, r.name, r.description, r.creator_id, "+
			"r.last_message_id, r.last_activity, r.created_at, r.updated_at FROM rooms r "+
			"JOIN room_members m1 ON m1.room_id = r.id AND m1.account_id = $1 "+
			"JOIN room_members m2 ON m2.room_id = r.id AND m2.account_id = $2 "+
			"WHERE r.kind = 'private' LIMIT 1",
		accountA,
		accountB,
	)

	room, err := scanRoom(row)
	if err != nil {
		return Room{}, err
	}

	if err := db.loadRoomMembers(&room); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, r.kind, r.name, r.description, r.creator_id, "+
			"r.last_message_id, r.last_activity, r.created_at, r.updated_at "+
			"FROM rooms r JOIN room_members m ON m.room_id = r.id "+
			"WHERE m.account_id = $1 ORDER BY r.last_activity DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range rooms {
		if err := db.loadRoomMembers(&rooms[i]); err != nil {
			return nil, err
		}

		if rooms[i].LastMessageId != nil {
			msg, err := db.getMessageById(*rooms[i].LastMessageId)
			if err != nil && err != sql.ErrNoRows {
				return nil, err
			}
			if err == nil {
				rooms[i].LastMessage = &msg
			}
		}
	}

	return rooms, nil
}

func (db *PgChatRepository) UpdateRoom(params UpdateRoomParams) (Room, error) {
	row := db.conn.QueryRow(
		"UPDATE rooms SET name = $2, description = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+roomColumns,
		params.RoomId,
		params.Name,
		params.Description,
		time.Now().UTC(),
	)

	room, err := scanRoom(row)
	if err != nil {
		return Room{}, err
	}

	if err := db.loadRoomMembers(&room); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) UpdateRoomActivity(roomId, lastMessageId int, lastActivity time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET last_message_id = $2, last_activity = $3, updated_at = $3 WHERE id = $1",
		roomId,
		lastMessageId,
		lastActivity,
	)

	return err
}

func (db *PgChatRepository) AddRoomMembers(roomId int, accountIds []int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, accountId := range accountIds {
		_, err = tx.Exec(
			"INSERT INTO room_members (room_id, account_id, admin, created_at) "+
				"VALUES ($1, $2, FALSE, $3) ON CONFLICT (room_id, account_id) DO NOTHING",
			roomId,
			accountId,
			now,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *PgChatRepository) RemoveRoomMember(roomId, accountId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM room_members WHERE room_id = $1 AND account_id = $2",
		roomId,
		accountId,
	)

	return err
}

func (db *PgChatRepository) DeleteRoom(roomId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"DELETE FROM message_reads WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)",
		roomId,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM messages WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM room_members WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	var attachment []byte
	if params.Attachment != nil {
		var err error
		attachment, err = json.Marshal(params.Attachment)
		if err != nil {
			return Message{}, fmt.Errorf("encode attachment: %w", err)
		}
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO messages (external_id, room_id, sender_id, content, type, attachment, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id",
		params.ExternalId,
		params.RoomId,
		params.SenderId,
		params.Content,
		params.Type,
		attachment,
		now,
	)

	var messageId int
	if err = row.Scan(&messageId); err != nil {
		return Message{}, err
	}

	// the sender has read their own message
	_, err = tx.Exec(
		"INSERT INTO message_reads (message_id, account_id, read_at) VALUES ($1, $2, $3)",
		messageId,
		params.SenderId,
		now,
	)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return db.getMessageById(messageId)
}

func (db *PgChatRepository) getMessageById(messageId int) (Message, error) {
	row := db.conn.QueryRow(messageSelect+"WHERE m.id = $1 LIMIT 1", messageId)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	if err := db.loadMessageReads(&msg); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) GetMessageByExternalId(externalId string) (Message, error) {
	row := db.conn.QueryRow(messageSelect+"WHERE m.external_id = $1 LIMIT 1", externalId)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	if err := db.loadMessageReads(&msg); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) loadMessageReads(msg *Message) error {
	rows, err := db.conn.Query(
		"SELECT account_id, read_at FROM message_reads WHERE message_id = $1 ORDER BY read_at",
		msg.Id,
	)
	if err != nil {
		return fmt.Errorf("load message reads: %w", err)
	}
	defer rows.Close()

	msg.ReadBy = msg.ReadBy[:0]
	for rows.Next() {
		var r ReadReceipt
		if err := rows.Scan(&r.AccountId, &r.ReadAt); err != nil {
			return fmt.Errorf("scan message read: %w", err)
		}
		msg.ReadBy = append(msg.ReadBy, r)
	}

	return rows.Err()
}

func (db *PgChatRepository) UpdateMessageContent(messageId int, content string, editedAt time.Time) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET content = $2, edited = TRUE, edited_at = $3, updated_at = $3 "+
			"WHERE id = $1 RETURNING id",
		messageId,
		content,
		editedAt,
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return Message{}, err
	}

	return db.getMessageById(id)
}

func (db *PgChatRepository) MarkMessageDeleted(messageId int, redaction string) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET deleted = TRUE, content = $2, updated_at = $3 "+
			"WHERE id = $1 RETURNING id",
		messageId,
		redaction,
		time.Now().UTC(),
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return Message{}, err
	}

	return db.getMessageById(id)
}

func (db *PgChatRepository) AddMessageRead(messageId, accountId int, readAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO message_reads (message_id, account_id, read_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (message_id, account_id) DO NOTHING",
		messageId,
		accountId,
		readAt,
	)

	return err
}

func (db *PgChatRepository) ListMessages(roomId, page, limit int) ([]Message, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		messageSelect+"WHERE m.room_id = $1 AND m.deleted = FALSE "+
			"ORDER BY m.created_at DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	var ids []int64
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, msg)
		ids = append(ids, int64(msg.Id))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(ids) > 0 {
		readRows, err := db.conn.Query(
			"SELECT message_id, account_id, read_at FROM message_reads "+
				"WHERE message_id = ANY($1) ORDER BY read_at",
			pq.Array(ids),
		)
		if err != nil {
			return nil, 0, err
		}
		defer readRows.Close()

		readsById := make(map[int][]ReadReceipt)
		for readRows.Next() {
			var messageId int
			var r ReadReceipt
			if err := readRows.Scan(&messageId, &r.AccountId, &r.ReadAt); err != nil {
				return nil, 0, err
			}
			readsById[messageId] = append(readsById[messageId], r)
		}
		if err := readRows.Err(); err != nil {
			return nil, 0, err
		}

		for i := range messages {
			messages[i].ReadBy = readsById[messages[i].Id]
		}
	}

	var total int
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE room_id = $1 AND deleted = FALSE",
		roomId,
	)
	if err := row.Scan(&total); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}
