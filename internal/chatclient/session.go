package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-alumnichat/internal/server"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

const (
	writeWait       = 10 * time.Second
	eventBufferSize = 256
)

var ErrSessionClosed = errors.New("session closed")

// Session is a live websocket connection to the chat server. Requests are
// correlated with their responses by envelope id; everything else arrives
// on Events.
type Session struct {
	conn    *websocket.Conn
	client  *Client
	events  chan server.ServerMessage
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex

	mu      sync.Mutex
	nextId  int
	pending map[int]chan *server.Response
	err     error
}

// Dial opens a websocket session authenticated with the client's token.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w", u.Redacted(), &APIError{
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
			})
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	s := &Session{
		conn:    conn,
		client:  c,
		events:  make(chan server.ServerMessage, eventBufferSize),
		done:    make(chan struct{}),
		pending: make(map[int]chan *server.Response),
	}
	go s.readLoop()

	return s, nil
}

// Events delivers room events and notifications. It is closed when the
// session ends.
func (s *Session) Events() <-chan server.ServerMessage {
	return s.events
}

// Done is closed when the connection is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Close() error {
	s.shutdown(ErrSessionClosed)

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *Session) Join(ctx context.Context, conversationId string) error {
	_, err := s.request(ctx, server.ClientMessage{Join: &server.Join{ConversationId: conversationId}})
	return err
}

func (s *Session) Leave(ctx context.Context, conversationId string) error {
	_, err := s.request(ctx, server.ClientMessage{Leave: &server.Leave{ConversationId: conversationId}})
	return err
}

// Publish sends content over the socket. The server persists it exactly as
// a REST append and returns the stored message.
func (s *Session) Publish(ctx context.Context, conversationId, content string) (types.Message, error) {
	resp, err := s.request(ctx, server.ClientMessage{
		Publish: &server.Publish{ConversationId: conversationId, Content: content},
	})
	if err != nil {
		return types.Message{}, err
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return types.Message{}, fmt.Errorf("encode response data: %w", err)
	}

	var data struct {
		Message types.Message `json:"message"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return types.Message{}, fmt.Errorf("decode response data: %w", err)
	}

	return data.Message, nil
}

func (s *Session) request(ctx context.Context, msg server.ClientMessage) (*server.Response, error) {
	ch := make(chan *server.Response, 1)

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	s.nextId++
	id := s.nextId
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	msg.Id = id
	msg.Timestamp = server.Now()

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := s.conn.WriteJSON(msg)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.ResponseCode >= http.StatusBadRequest {
			return nil, &APIError{StatusCode: resp.ResponseCode, Message: resp.Error}
		}
		return resp, nil
	case <-s.done:
		return nil, s.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) readLoop() {
	defer close(s.events)

	for {
		var msg server.ServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.shutdown(err)
			return
		}

		if msg.Response != nil {
			s.mu.Lock()
			ch, ok := s.pending[msg.Id]
			s.mu.Unlock()
			if ok {
				select {
				case ch <- msg.Response:
				default:
				}
			} else {
				s.client.log.Printf("unmatched response %d: %d %s", msg.Id, msg.Response.ResponseCode, msg.Response.Error)
			}
			continue
		}

		select {
		case s.events <- msg:
		default:
			s.client.log.Println("event buffer full, dropping event")
		}
	}
}

func (s *Session) shutdown(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}
