package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mcastellan/chatwire/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxFrameSize = 16384
)

// Client is one authenticated live connection. The bound identity never
// changes for the connection's lifetime.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *zap.SugaredLogger
	user       types.User
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, logger *zap.SugaredLogger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        logger,
		user:       user,
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Errorw("serialize event", "event", ev.Event, "error", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warnw("websocket read", "user", c.user.Username, "error", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.queueEvent(errorEvent("invalid message format"))
			continue
		}

		c.dispatch(&ev)
	}
}

func (c *Client) dispatch(ev *ClientEvent) {
	switch ev.Event {
	case EventRoomJoin:
		var p RoomPayload
		if !c.decode(ev.Data, &p) {
			return
		}
		c.chatServer.router.Subscribe(c, p.RoomId)
	case EventRoomLeave:
		var p RoomPayload
		if !c.decode(ev.Data, &p) {
			return
		}
		c.chatServer.router.Unsubscribe(c, p.RoomId)
	case EventMessageSend:
		var p SendMessagePayload
		if !c.decode(ev.Data, &p) {
			return
		}
		if _, err := c.chatServer.engine.Send(c.user.Id, p); err != nil {
			c.reportError(err)
		}
	case EventMessageEdit:
		var p EditMessagePayload
		if !c.decode(ev.Data, &p) {
			return
		}
		if _, err := c.chatServer.engine.Edit(c.user.Id, p); err != nil {
			c.reportError(err)
		}
	case EventMessageDelete:
		var p DeleteMessagePayload
		if !c.decode(ev.Data, &p) {
			return
		}
		if err := c.chatServer.engine.Delete(c.user.Id, p); err != nil {
			c.reportError(err)
		}
	case EventMessageRead:
		var p ReadMessagePayload
		if !c.decode(ev.Data, &p) {
			return
		}
		c.chatServer.engine.MarkRead(c.user.Id, c, p)
	case EventTypingStart:
		var p RoomPayload
		if !c.decode(ev.Data, &p) {
			return
		}
		c.chatServer.relay.StartTyping(c, p.RoomId)
	case EventTypingStop:
		var p RoomPayload
		if !c.decode(ev.Data, &p) {
			return
		}
		c.chatServer.relay.StopTyping(c, p.RoomId)
	default:
		c.queueEvent(errorEvent("unknown event: " + ev.Event))
	}
}

func (c *Client) decode(raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		c.queueEvent(errorEvent("invalid message format"))
		return false
	}

	return true
}

// reportError surfaces a failed operation to this connection only; the
// room's other members observe nothing.
func (c *Client) reportError(err error) {
	chatErr := AsChatError(err)
	if chatErr == nil {
		c.log.Errorw("operation failed", "user", c.user.Username, "error", err)
		c.queueEvent(errorEvent("internal server error"))
		return
	}

	if chatErr.Kind == KindStore {
		c.log.Errorw("store operation failed", "user", c.user.Username, "error", chatErr.Err)
	}

	c.queueEvent(errorEvent(chatErr.Message))

	if chatErr.Kind == KindAuth {
		c.close()
	}
}

func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	case <-c.stop:
		return false
	default:
		c.log.Warnw("send queue full, dropping event", "user", c.user.Username, "event", ev.Event)
		return false
	}

	return true
}

func (c *Client) writeFrame(frameType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(frameType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
			websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
			c.log.Warnw("websocket write", "user", c.user.Username, "error", err)
		}
		return false
	}

	return true
}

func (c *Client) close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup is the single disconnect path: the router and presence registry
// are unwound together, then the write pump is stopped.
func (c *Client) cleanup() {
	c.chatServer.Deregister(c)
	c.close()
}
