package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mcastellan/chatwire/internal/stats"
	"github.com/mcastellan/chatwire/internal/store"
	"github.com/mcastellan/chatwire/internal/types"
)

// ChatServer owns the live-session core: the set of connections, the
// presence registry, the subscription router, the fan-out engine, and the
// typing relay. Components receive each other at construction; nothing is
// fetched from globals or request context.
type ChatServer struct {
	log      *zap.SugaredLogger
	db       store.ChatRepository
	stats    stats.StatsProvider
	presence *PresenceRegistry
	router   *Router
	engine   *Engine
	relay    *TypingRelay

	clientsLock sync.Mutex
	clients     map[*Client]struct{}
}

func NewChatServer(logger *zap.SugaredLogger, db store.ChatRepository, st stats.StatsProvider) *ChatServer {
	cs := &ChatServer{
		log:     logger,
		db:      db,
		stats:   st,
		clients: make(map[*Client]struct{}),
	}

	cs.router = NewRouter(logger, db, st)
	cs.presence = NewPresenceRegistry(logger, db, cs, st)
	cs.engine = NewEngine(logger, db, cs.router, st)
	cs.relay = NewTypingRelay(logger, cs.router)

	st.RegisterMetric("NumActiveConnections")
	st.RegisterMetric("NumOnlineUsers")
	st.RegisterMetric("NumRoomSubscriptions")
	st.RegisterMetric("NumMessagesSent")

	return cs
}

func (cs *ChatServer) Presence() *PresenceRegistry {
	return cs.presence
}

// Register wires an authenticated connection into the core: presence first,
// then the subscription router with the user's durable rooms and private
// channel. A failed room fetch unwinds everything and reports the error so
// the caller can refuse the connection.
func (cs *ChatServer) Register(c *Client) error {
	cs.addClient(c)
	cs.router.Register(c)
	cs.presence.RegisterConnection(c.user.Id)

	if err := cs.router.SubscribeAll(c); err != nil {
		cs.presence.UnregisterConnection(c.user.Id)
		cs.router.DropConnection(c)
		cs.removeClient(c)
		return err
	}

	cs.log.Infow("connection registered", "user", c.user.Username)
	return nil
}

// Deregister unwinds a connection atomically: every room subscription, the
// private channel, and the presence count. Safe to call more than once.
func (cs *ChatServer) Deregister(c *Client) {
	cs.clientsLock.Lock()
	if _, ok := cs.clients[c]; !ok {
		cs.clientsLock.Unlock()
		return
	}
	delete(cs.clients, c)
	cs.clientsLock.Unlock()
	cs.stats.Decr("NumActiveConnections")

	cs.router.DropConnection(c)
	cs.presence.UnregisterConnection(c.user.Id)

	cs.log.Infow("connection deregistered", "user", c.user.Username)
}

// BroadcastAll delivers an event to every live connection, regardless of
// room. Used for presence transitions.
func (cs *ChatServer) BroadcastAll(ev *ServerEvent) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.clients {
		c.queueEvent(ev)
	}
}

// NotifyUser routes an event to a user's private channel. Used by the REST
// layer for out-of-room notifications (invitations, removals).
func (cs *ChatServer) NotifyUser(userId int, ev *ServerEvent) {
	cs.router.NotifyUser(userId, ev)
}

// BroadcastRoom routes an event to a room's live subscribers. Used by the
// REST layer for room:updated notifications.
func (cs *ChatServer) BroadcastRoom(roomId string, ev *ServerEvent) {
	cs.router.Broadcast(roomId, ev, nil)
}

// EvictRoom drops a deleted room from the live subscription index and
// releases the engine's lock entry for it.
func (cs *ChatServer) EvictRoom(roomId string) {
	cs.router.DropRoom(roomId)
	cs.engine.dropRoomLock(roomId)
}

// SendMessage persists and fans out a message on behalf of the REST layer.
func (cs *ChatServer) SendMessage(userId int, p SendMessagePayload) (*types.Message, error) {
	return cs.engine.Send(userId, p)
}

// EditMessage applies a sender-only content edit on behalf of the REST layer.
func (cs *ChatServer) EditMessage(userId int, p EditMessagePayload) (*types.Message, error) {
	return cs.engine.Edit(userId, p)
}

// DeleteMessage soft-deletes a message on behalf of the REST layer.
func (cs *ChatServer) DeleteMessage(userId int, p DeleteMessagePayload) error {
	return cs.engine.Delete(userId, p)
}

// MarkMessageRead records a read receipt on behalf of the REST layer. With
// no originating connection the receipt reaches every subscriber, the
// reader's own connections included.
func (cs *ChatServer) MarkMessageRead(userId int, p ReadMessagePayload) {
	cs.engine.MarkRead(userId, nil, p)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.stats.Incr("NumActiveConnections")
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr("NumActiveConnections")
	}
}

// Shutdown stops every live connection. Each connection's read pump runs its
// own cleanup, so presence and subscriptions unwind through the normal path.
func (cs *ChatServer) Shutdown() {
	cs.clientsLock.Lock()
	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}
	cs.clientsLock.Unlock()

	cs.log.Infow("shutting down chat server", "connections", len(clients))
	for _, c := range clients {
		c.close()
	}
}
