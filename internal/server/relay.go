package server

import (
	"go.uber.org/zap"
)

// TypingRelay forwards typing signals to a room's other subscribers. Nothing
// is persisted and no stop signal is synthesized on disconnect; a peer's
// indicator clears only when the client sends typing:stop or its own UI
// timeout fires.
type TypingRelay struct {
	log    *zap.SugaredLogger
	router *Router
}

func NewTypingRelay(logger *zap.SugaredLogger, router *Router) *TypingRelay {
	return &TypingRelay{log: logger, router: router}
}

func (tr *TypingRelay) StartTyping(c *Client, roomId string) {
	tr.router.Broadcast(roomId, typingStartEvent(c.user.Id, c.user.Username, roomId), c)
}

func (tr *TypingRelay) StopTyping(c *Client, roomId string) {
	tr.router.Broadcast(roomId, typingStopEvent(c.user.Id, roomId), c)
}
