package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-alumnichat/internal/messaging"
	"github.com/npezzotti/go-alumnichat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	requestTimeout = 10 * time.Second
)

// Appender persists a message published over the websocket. It is
// satisfied by messaging.Service.
type Appender interface {
	AppendToConversation(ctx context.Context, actor messaging.Actor, conversationId, content string) (types.Message, error)
}

// JoinAuthorizer vets room joins. A nil authorizer lets any authenticated
// connection join any room.
type JoinAuthorizer interface {
	AuthorizeRoomJoin(ctx context.Context, actor messaging.Actor, conversationId string) error
}

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	actor      messaging.Actor
	appender   Appender
	joinAuth   JoinAuthorizer
	send       chan *ServerMessage
	rooms      map[string]struct{}
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(actor messaging.Actor, conn *websocket.Conn, cs *ChatServer, appender Appender, joinAuth JoinAuthorizer, l *log.Logger) *Client {
	return &Client{
		id:         shortid.MustGenerate(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		actor:      actor,
		appender:   appender,
		joinAuth:   joinAuth,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) SubscriberId() string {
	return c.id
}

// Deliver queues a fan-out event for the write pump without blocking.
func (c *Client) Deliver(ev messaging.Event) bool {
	msg := EventMessage(ev)
	if msg == nil {
		return true
	}

	if ev.Kind == messaging.EventConversationDeleted {
		c.delRoom(ev.ConversationId)
	}

	return c.queueMessage(msg)
}

// Start registers the client with the hub and runs both pumps.
func (c *Client) Start() {
	c.chatServer.register(c)
	go c.Write()
	go c.Read()
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := c.serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
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

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}
		msg.Timestamp = Now()

		switch {
		case msg.Join != nil && msg.Join.ConversationId != "":
			c.joinRoom(&msg)
		case msg.Leave != nil && msg.Leave.ConversationId != "":
			c.leaveRoom(&msg)
		case msg.Publish != nil && msg.Publish.ConversationId != "":
			c.publish(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) joinRoom(msg *ClientMessage) {
	roomId := msg.Join.ConversationId
	if !c.chatServer.running() {
		c.queueMessage(ErrServiceUnavailable(msg.Id))
		return
	}
	if c.joinAuth != nil {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err := c.joinAuth.AuthorizeRoomJoin(ctx, c.actor, roomId)
		cancel()
		if err != nil {
			c.queueMessage(ErrResponse(msg.Id, err))
			return
		}
	}

	c.chatServer.Join(roomId, c)
	c.addRoom(roomId)
	c.queueMessage(NoErrOK(msg.Id, map[string]any{"conversation_id": roomId}))
}

func (c *Client) leaveRoom(msg *ClientMessage) {
	roomId := msg.Leave.ConversationId
	c.chatServer.Leave(roomId, c)
	c.delRoom(roomId)
	c.queueMessage(NoErrOK(msg.Id, map[string]any{"conversation_id": roomId}))
}

func (c *Client) publish(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	m, err := c.appender.AppendToConversation(ctx, c.actor, msg.Publish.ConversationId, msg.Publish.Content)
	if err != nil {
		c.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id, map[string]any{"message": m}))
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("client %s: send queue full, dropping message", c.id)
		return false
	}

	return true
}

func (c *Client) serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.deregister(c)
	c.stopClient()
}

func (c *Client) addRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()
	c.rooms[id] = struct{}{}
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()
	delete(c.rooms, id)
}

// Rooms returns the ids of the rooms the client joined.
func (c *Client) Rooms() []string {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}
