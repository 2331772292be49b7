package server

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mcastellan/chatwire/internal/stats"
	"github.com/mcastellan/chatwire/internal/store"
)

// Router is the live subscription index: which connections currently receive
// a room's events, and each user's private notification channel. It never
// touches durable membership; that belongs to the store and the REST layer.
type Router struct {
	log   *zap.SugaredLogger
	db    store.ChatRepository
	stats stats.StatsProvider

	mu sync.RWMutex
	// rooms maps a room id to its live subscriber set.
	rooms map[string]map[*Client]struct{}
	// users maps a user id to that user's connections (the private channel).
	users map[int]map[*Client]struct{}
	// conns is the reverse index used to unwind a connection on disconnect.
	conns map[*Client]map[string]struct{}
}

func NewRouter(logger *zap.SugaredLogger, db store.ChatRepository, st stats.StatsProvider) *Router {
	return &Router{
		log:   logger,
		db:    db,
		stats: st,
		rooms: make(map[string]map[*Client]struct{}),
		users: make(map[int]map[*Client]struct{}),
		conns: make(map[*Client]map[string]struct{}),
	}
}

// Register joins the connection to its user's private notification channel.
func (rt *Router) Register(c *Client) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.users[c.user.Id] == nil {
		rt.users[c.user.Id] = make(map[*Client]struct{})
	}
	rt.users[c.user.Id][c] = struct{}{}

	if rt.conns[c] == nil {
		rt.conns[c] = make(map[string]struct{})
	}
}

// SubscribeAll subscribes the connection to every room its user durably
// belongs to. This is how a reconnecting client resumes without any
// client-side subscription state.
func (rt *Router) SubscribeAll(c *Client) error {
	rooms, err := rt.db.ListRoomsForAccount(c.user.Id)
	if err != nil {
		return fmt.Errorf("list rooms for user %d: %w", c.user.Id, err)
	}

	for _, room := range rooms {
		rt.Subscribe(c, room.ExternalId)
	}

	return nil
}

func (rt *Router) Subscribe(c *Client, roomId string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.rooms[roomId] == nil {
		rt.rooms[roomId] = make(map[*Client]struct{})
	}
	if _, ok := rt.rooms[roomId][c]; ok {
		return
	}
	rt.rooms[roomId][c] = struct{}{}

	if rt.conns[c] == nil {
		rt.conns[c] = make(map[string]struct{})
	}
	rt.conns[c][roomId] = struct{}{}

	rt.stats.Incr("NumRoomSubscriptions")
	rt.log.Debugw("subscribed connection", "user", c.user.Username, "room_id", roomId)
}

func (rt *Router) Unsubscribe(c *Client, roomId string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.unsubscribeLocked(c, roomId)
}

func (rt *Router) unsubscribeLocked(c *Client, roomId string) {
	subs, ok := rt.rooms[roomId]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}

	delete(subs, c)
	if len(subs) == 0 {
		delete(rt.rooms, roomId)
	}
	if roomSet, ok := rt.conns[c]; ok {
		delete(roomSet, roomId)
	}

	rt.stats.Decr("NumRoomSubscriptions")
}

// DropConnection unwinds every subscription the connection holds, including
// the private channel. Called once on disconnect.
func (rt *Router) DropConnection(c *Client) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for roomId := range rt.conns[c] {
		rt.unsubscribeLocked(c, roomId)
	}
	delete(rt.conns, c)

	if userConns, ok := rt.users[c.user.Id]; ok {
		delete(userConns, c)
		if len(userConns) == 0 {
			delete(rt.users, c.user.Id)
		}
	}
}

// DropRoom removes a deleted room from the live index.
func (rt *Router) DropRoom(roomId string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for c := range rt.rooms[roomId] {
		rt.unsubscribeLocked(c, roomId)
	}
}

// SubscribersOf returns the room's current live subscriber set, which may be
// empty even when the durable member set is not.
func (rt *Router) SubscribersOf(roomId string) []*Client {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	subs := make([]*Client, 0, len(rt.rooms[roomId]))
	for c := range rt.rooms[roomId] {
		subs = append(subs, c)
	}

	return subs
}

// IsSubscribed reports whether any of the user's connections is currently
// subscribed to the room.
func (rt *Router) IsSubscribed(roomId string, userId int) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	for c := range rt.rooms[roomId] {
		if c.user.Id == userId {
			return true
		}
	}

	return false
}

// Broadcast fans an event out to the room's current subscribers. Delivery is
// per connection: a user subscribed on one device and not another receives
// the event only on the subscribed device.
func (rt *Router) Broadcast(roomId string, ev *ServerEvent, skip *Client) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	for c := range rt.rooms[roomId] {
		if c == skip {
			continue
		}
		c.queueEvent(ev)
	}
}

// NotifyUser delivers an event to every connection of a single user.
func (rt *Router) NotifyUser(userId int, ev *ServerEvent) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	for c := range rt.users[userId] {
		c.queueEvent(ev)
	}
}
