package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcastellan/chatwire/internal/server"
	"github.com/mcastellan/chatwire/internal/store"
	"github.com/mcastellan/chatwire/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateAccountRequest struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
	Password string `json:"password"`
}

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberIds   []int  `json:"member_ids"`
}

type CreatePrivateRoomRequest struct {
	UserId int `json:"user_id"`
}

type UpdateRoomRequest struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AddMembersRequest struct {
	RoomId  string `json:"room_id"`
	UserIds []int  `json:"user_ids"`
}

type RemoveMemberRequest struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
}

type MessagePage struct {
	Messages []types.Message `json:"messages"`
	Page     int             `json:"page"`
	Pages    int             `json:"pages"`
	Total    int             `json:"total"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("json encode", "error", err)
	}
}

func (s *App) storeError(w http.ResponseWriter, err error) {
	var errResp *ApiError
	if errors.Is(err, sql.ErrNoRows) {
		errResp = NewNotFoundError()
	} else {
		errResp = NewInternalServerError(err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// chatError maps a live-core failure onto the REST error vocabulary.
func (s *App) chatError(w http.ResponseWriter, err error) {
	var errResp *ApiError

	chatErr := server.AsChatError(err)
	if chatErr == nil {
		errResp = NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	switch chatErr.Kind {
	case server.KindValidation:
		errResp = NewBadRequestError()
	case server.KindAuthorization:
		errResp = NewForbiddenError()
	case server.KindNotFound:
		errResp = NewNotFoundError()
	case server.KindAuth:
		errResp = NewUnauthorizedError()
	default:
		errResp = NewInternalServerError(chatErr)
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *App) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Errorw("health check", "error", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *App) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := store.CreateAccountParams{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwdHash,
	}

	newAccount, err := s.db.CreateAccount(params)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, server.AccountToUser(newAccount))
}

func (s *App) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := server.AccountToUser(account)

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *App) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil {
		s.storeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, server.AccountToUser(account))
}

func (s *App) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *App) account(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	switch r.Method {
	case http.MethodGet:
		account, err := s.db.GetAccountById(userId)
		if err != nil {
			s.storeError(w, err)
			return
		}

		s.writeJson(w, http.StatusOK, server.AccountToUser(account))
	case http.MethodPut:
		curAccount, err := s.db.GetAccountById(userId)
		if err != nil {
			s.storeError(w, err)
			return
		}

		var req UpdateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if req.Username == "" {
			req.Username = curAccount.Username
		}

		params := store.UpdateAccountParams{
			AccountId: curAccount.Id,
			Username:  req.Username,
			Bio:       req.Bio,
		}

		if req.Password != "" {
			pwdHash, err := hashPassword(req.Password)
			if err != nil {
				errResp := NewInternalServerError(err)
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
			params.PasswordHash = pwdHash
		}

		account, err := s.db.UpdateAccount(params)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, server.AccountToUser(account))
	default:
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (s *App) getUsers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if idStr := r.URL.Query().Get("id"); idStr != "" {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		account, err := s.db.GetAccountById(id)
		if err != nil {
			s.storeError(w, err)
			return
		}

		u := server.AccountToUser(account)
		u.Email = ""
		s.writeJson(w, http.StatusOK, u)
		return
	}

	query := r.URL.Query().Get("search")

	accounts, err := s.db.SearchAccounts(query, userId, 20)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(accounts))
	for _, a := range accounts {
		u := server.AccountToUser(a)
		u.Email = ""
		users = append(users, u)
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *App) getRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if externalId := r.URL.Query().Get("id"); externalId != "" {
		room, err := s.db.GetRoomByExternalId(externalId)
		if err != nil {
			s.storeError(w, err)
			return
		}

		if !slices.Contains(room.MemberIds, userId) {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, server.RoomToWire(room))
		return
	}

	dbRooms, err := s.db.ListRoomsForAccount(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms := make([]*types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, server.RoomToWire(room))
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *App) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	memberIds := []int{userId}
	for _, id := range req.MemberIds {
		if id != userId && !slices.Contains(memberIds, id) {
			memberIds = append(memberIds, id)
		}
	}

	params := store.CreateRoomParams{
		ExternalId:  sid,
		Kind:        types.RoomKindGroup,
		Name:        req.Name,
		Description: req.Description,
		CreatorId:   userId,
		MemberIds:   memberIds,
	}

	newRoom, err := s.db.CreateRoom(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room := server.RoomToWire(newRoom)

	// let the other founding members know the room exists
	for _, memberId := range newRoom.MemberIds {
		if memberId != userId {
			s.cs.NotifyUser(memberId, server.RoomNewEvent(room))
		}
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *App) createPrivateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePrivateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.UserId == 0 || req.UserId == userId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetAccountById(req.UserId); err != nil {
		s.storeError(w, err)
		return
	}

	// a private room between two users is a singleton
	existing, err := s.db.GetPrivateRoom(userId, req.UserId)
	if err == nil {
		s.writeJson(w, http.StatusOK, server.RoomToWire(existing))
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := store.CreateRoomParams{
		ExternalId: sid,
		Kind:       types.RoomKindPrivate,
		CreatorId:  userId,
		MemberIds:  []int{userId, req.UserId},
	}

	newRoom, err := s.db.CreateRoom(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room := server.RoomToWire(newRoom)
	s.cs.NotifyUser(req.UserId, server.RoomNewEvent(room))

	s.writeJson(w, http.StatusCreated, room)
}

func (s *App) updateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Id == "" || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(req.Id)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if room.Kind != types.RoomKindGroup || !slices.Contains(room.AdminIds, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.UpdateRoom(store.UpdateRoomParams{
		RoomId:      room.Id,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	wireRoom := server.RoomToWire(updated)
	s.cs.BroadcastRoom(wireRoom.Id, server.RoomUpdatedEvent(wireRoom))

	s.writeJson(w, http.StatusOK, wireRoom)
}

func (s *App) addRoomMembers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" || len(req.UserIds) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(req.RoomId)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if room.Kind != types.RoomKindGroup || !slices.Contains(room.AdminIds, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var newMemberIds []int
	for _, id := range req.UserIds {
		if !slices.Contains(room.MemberIds, id) && !slices.Contains(newMemberIds, id) {
			newMemberIds = append(newMemberIds, id)
		}
	}

	if len(newMemberIds) > 0 {
		if err := s.db.AddRoomMembers(room.Id, newMemberIds); err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	updated, err := s.db.GetRoomByExternalId(req.RoomId)
	if err != nil {
		s.storeError(w, err)
		return
	}

	wireRoom := server.RoomToWire(updated)
	s.cs.BroadcastRoom(wireRoom.Id, server.RoomUpdatedEvent(wireRoom))
	for _, memberId := range newMemberIds {
		s.cs.NotifyUser(memberId, server.RoomNewEvent(wireRoom))
	}

	s.writeJson(w, http.StatusOK, wireRoom)
}

func (s *App) removeRoomMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req RemoveMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" || req.UserId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(req.RoomId)
	if err != nil {
		s.storeError(w, err)
		return
	}

	// a member may leave on their own, anyone else needs admin
	if req.UserId != userId && !slices.Contains(room.AdminIds, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.Kind != types.RoomKindGroup || !slices.Contains(room.MemberIds, req.UserId) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemoveRoomMember(room.Id, req.UserId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.GetRoomByExternalId(req.RoomId)
	if err != nil {
		s.storeError(w, err)
		return
	}

	wireRoom := server.RoomToWire(updated)
	s.cs.BroadcastRoom(wireRoom.Id, server.RoomUpdatedEvent(wireRoom))
	s.cs.NotifyUser(req.UserId, server.RoomDeletedEvent(wireRoom.Id))

	s.writeJson(w, http.StatusOK, wireRoom)
}

func (s *App) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		s.storeError(w, err)
		return
	}

	// group rooms belong to their creator, private rooms to both parties
	switch room.Kind {
	case types.RoomKindGroup:
		if room.CreatorId != userId {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	default:
		if !slices.Contains(room.MemberIds, userId) {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if err := s.db.DeleteRoom(room.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	for _, memberId := range room.MemberIds {
		s.cs.NotifyUser(memberId, server.RoomDeletedEvent(room.ExternalId))
	}
	s.cs.EvictRoom(room.ExternalId)

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("room_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if !slices.Contains(room.MemberIds, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, limit := 1, 50
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, total, err := s.db.ListMessages(room.Id, page, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the store returns newest first, clients render oldest first
	messages := make([]types.Message, 0, len(dbMessages))
	for i := len(dbMessages) - 1; i >= 0; i-- {
		messages = append(messages, *server.MessageToWire(dbMessages[i]))
	}

	s.writeJson(w, http.StatusOK, MessagePage{
		Messages: messages,
		Page:     page,
		Pages:    (total + limit - 1) / limit,
		Total:    total,
	})
}

func (s *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var p server.SendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.SendMessage(userId, p)
	if err != nil {
		s.chatError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *App) editMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var p server.EditMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.EditMessage(userId, p)
	if err != nil {
		s.chatError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *App) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId := r.URL.Query().Get("id")
	if messageId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.DeleteMessage(userId, server.DeleteMessagePayload{MessageId: messageId}); err != nil {
		s.chatError(w, err)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) markMessageRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var p server.ReadMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.MessageId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// receipts are best-effort end to end, so there is no failure to report
	s.cs.MarkMessageRead(userId, p)

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	account, err := s.authenticateConnection(r)
	if err != nil {
		s.log.Debugw("rejecting websocket handshake", "error", err)
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorw("error upgrading connection", "error", err)
		return
	}

	client := server.NewClient(server.AccountToUser(account), conn, s.cs, s.log)
	if err := s.cs.Register(client); err != nil {
		s.log.Errorw("error registering client", "user_id", account.Id, "error", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
