package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellan/chatwire/internal/stats"
	"github.com/mcastellan/chatwire/internal/store"
)

// broadcaster delivers an event to every live connection on the server.
type broadcaster interface {
	BroadcastAll(ev *ServerEvent)
}

type presenceEntry struct {
	connections int
}

// PresenceRegistry tracks the number of live connections per user. A user is
// online while the count is positive; the 0->1 and 1->0 transitions are
// mirrored into the account store and announced to all connections. A user
// may hold several connections at once (multi-device), so presence is a
// count, never a per-connection flag.
type PresenceRegistry struct {
	log   *zap.SugaredLogger
	db    store.ChatRepository
	b     broadcaster
	stats stats.StatsProvider

	mu      sync.Mutex
	entries map[int]*presenceEntry
}

func NewPresenceRegistry(logger *zap.SugaredLogger, db store.ChatRepository, b broadcaster, st stats.StatsProvider) *PresenceRegistry {
	return &PresenceRegistry{
		log:     logger,
		db:      db,
		b:       b,
		stats:   st,
		entries: make(map[int]*presenceEntry),
	}
}

// RegisterConnection increments the user's connection count. The first
// connection transitions the user online and emits user:online exactly once.
// The lock is held across the transition side effects so that concurrent
// register/unregister calls for the same user cannot reorder a zero-crossing.
func (p *PresenceRegistry) RegisterConnection(userId int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userId]
	if !ok {
		entry = &presenceEntry{}
		p.entries[userId] = entry
	}

	entry.connections++
	if entry.connections > 1 {
		return
	}

	if err := p.db.UpdateAccountPresence(userId, true, time.Time{}); err != nil {
		p.log.Errorw("update account presence", "user_id", userId, "error", err)
	}
	p.stats.Incr("NumOnlineUsers")
	p.b.BroadcastAll(userOnlineEvent(userId))
}

// UnregisterConnection decrements the count. The last connection transitions
// the user offline, stamps last-seen, and emits user:offline exactly once.
func (p *PresenceRegistry) UnregisterConnection(userId int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userId]
	if !ok {
		p.log.Warnw("unregister connection for untracked user", "user_id", userId)
		return
	}

	entry.connections--
	if entry.connections > 0 {
		return
	}

	delete(p.entries, userId)

	lastSeen := Now()
	if err := p.db.UpdateAccountPresence(userId, false, lastSeen); err != nil {
		p.log.Errorw("update account presence", "user_id", userId, "error", err)
	}
	p.stats.Decr("NumOnlineUsers")
	p.b.BroadcastAll(userOfflineEvent(userId, lastSeen))
}

func (p *PresenceRegistry) IsOnline(userId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userId]
	return ok && entry.connections > 0
}
