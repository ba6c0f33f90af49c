package server

import (
	"context"
	"fmt"
	"log"

	"github.com/npezzotti/go-alumnichat/internal/messaging"
	"github.com/npezzotti/go-alumnichat/internal/stats"
)

const publishQueueSize = 256

type hubOp int

const (
	opRegister hubOp = iota
	opDeregister
	opJoin
	opLeave
)

type hubReq struct {
	op     hubOp
	room   string
	sub    messaging.Subscriber
	client *Client
}

type publishReq struct {
	room  string
	event messaging.Event
}

// ChatServer is the real-time fan-out hub. A single goroutine started by Run
// owns every room and membership; other goroutines talk to it over channels.
type ChatServer struct {
	log         *log.Logger
	stats       stats.StatsProvider
	reqChan     chan hubReq
	publishChan chan publishReq
	rooms       map[string]*Room
	// subRooms indexes the rooms each subscriber is in, by subscriber id
	subRooms map[string]map[string]struct{}
	clients  map[*Client]struct{}
	stop     chan struct{}
	done     chan struct{}
}

func NewChatServer(logger *log.Logger, su stats.StatsProvider) *ChatServer {
	if su == nil {
		su = stats.Nop{}
	}

	return &ChatServer{
		log:         logger,
		stats:       su,
		reqChan:     make(chan hubReq),
		publishChan: make(chan publishReq, publishQueueSize),
		rooms:       make(map[string]*Room),
		subRooms:    make(map[string]map[string]struct{}),
		clients:     make(map[*Client]struct{}),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case req := <-cs.reqChan:
			cs.handleRequest(req)
		case p := <-cs.publishChan:
			cs.handlePublish(p)
		case <-cs.stop:
			cs.log.Println("shutting down chat server")
			for c := range cs.clients {
				c.stopClient()
				cs.removeClient(c)
			}
			for id := range cs.rooms {
				cs.removeRoom(id)
			}
			return
		}
	}
}

func (cs *ChatServer) handleRequest(req hubReq) {
	switch req.op {
	case opRegister:
		cs.addClient(req.client)
	case opDeregister:
		cs.leaveAll(req.sub)
		if req.client != nil {
			cs.removeClient(req.client)
		}
	case opJoin:
		cs.join(req.room, req.sub)
	case opLeave:
		cs.leave(req.room, req.sub)
	}
}

func (cs *ChatServer) handlePublish(p publishReq) {
	r, ok := cs.rooms[p.room]
	if !ok {
		return
	}

	delivered, dropped := r.broadcast(p.event)
	cs.stats.Incr(stats.FanOutPublished)
	for i := 0; i < dropped; i++ {
		cs.stats.Incr(stats.FanOutDropped)
	}
	if dropped > 0 {
		cs.log.Printf("room %q: delivered %s to %d subscribers, dropped %d", p.room, p.event.Kind, delivered, dropped)
	}

	if p.event.Kind == messaging.EventConversationDeleted {
		cs.removeRoom(p.room)
	}
}

func (cs *ChatServer) join(roomId string, sub messaging.Subscriber) {
	r, ok := cs.rooms[roomId]
	if !ok {
		r = newRoom(roomId)
		cs.rooms[roomId] = r
		cs.stats.Incr(stats.ActiveRooms)
	}
	r.add(sub)

	subId := sub.SubscriberId()
	if cs.subRooms[subId] == nil {
		cs.subRooms[subId] = make(map[string]struct{})
	}
	cs.subRooms[subId][roomId] = struct{}{}
}

func (cs *ChatServer) leave(roomId string, sub messaging.Subscriber) {
	subId := sub.SubscriberId()
	if rooms, ok := cs.subRooms[subId]; ok {
		delete(rooms, roomId)
		if len(rooms) == 0 {
			delete(cs.subRooms, subId)
		}
	}

	r, ok := cs.rooms[roomId]
	if !ok {
		return
	}

	r.remove(subId)
	if r.empty() {
		cs.removeRoom(roomId)
	}
}

func (cs *ChatServer) leaveAll(sub messaging.Subscriber) {
	for roomId := range cs.subRooms[sub.SubscriberId()] {
		cs.leave(roomId, sub)
	}
}

func (cs *ChatServer) removeRoom(roomId string) {
	r, ok := cs.rooms[roomId]
	if !ok {
		return
	}

	for subId := range r.subscribers {
		if rooms, ok := cs.subRooms[subId]; ok {
			delete(rooms, roomId)
			if len(rooms) == 0 {
				delete(cs.subRooms, subId)
			}
		}
	}

	delete(cs.rooms, roomId)
	cs.stats.Decr(stats.ActiveRooms)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.stats.Decr(stats.ActiveClients)
}

func (cs *ChatServer) send(req hubReq) {
	select {
	case cs.reqChan <- req:
	case <-cs.done:
	}
}

func (cs *ChatServer) running() bool {
	select {
	case <-cs.done:
		return false
	default:
		return true
	}
}

// Join subscribes sub to room, creating the room on first use.
func (cs *ChatServer) Join(room string, sub messaging.Subscriber) {
	cs.send(hubReq{op: opJoin, room: room, sub: sub})
}

// Leave unsubscribes sub from room. Leaving a room the subscriber is not in
// is a no-op.
func (cs *ChatServer) Leave(room string, sub messaging.Subscriber) {
	cs.send(hubReq{op: opLeave, room: room, sub: sub})
}

// Disconnect removes sub from every room it joined.
func (cs *ChatServer) Disconnect(sub messaging.Subscriber) {
	cs.send(hubReq{op: opDeregister, sub: sub})
}

func (cs *ChatServer) register(c *Client) {
	cs.send(hubReq{op: opRegister, client: c})
}

func (cs *ChatServer) deregister(c *Client) {
	cs.send(hubReq{op: opDeregister, sub: c, client: c})
}

// Publish queues ev for delivery to the subscribers of room. It never
// blocks: a full queue or a stopped hub is reported as an error.
func (cs *ChatServer) Publish(room string, ev messaging.Event) error {
	select {
	case <-cs.done:
		return messaging.ErrFanOutUnavailable
	default:
	}

	select {
	case cs.publishChan <- publishReq{room: room, event: ev}:
		return nil
	default:
		return fmt.Errorf("publish queue full: %w", messaging.ErrFanOutUnavailable)
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	select {
	case <-cs.stop:
	default:
		close(cs.stop)
	}

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
