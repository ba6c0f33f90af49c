package chatclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-alumnichat/internal/server"
	"github.com/npezzotti/go-alumnichat/internal/timeline"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

const (
	minReconnectDelay = 250 * time.Millisecond
	maxReconnectDelay = 10 * time.Second
)

// ErrConversationDeleted is returned by Run when a moderator removed the
// conversation being watched.
var ErrConversationDeleted = errors.New("conversation deleted")

// View keeps one conversation up to date from both delivery paths. Live
// events and append responses feed the same timeline, and every
// (re)connect re-fetches history, so messages missed while offline are
// recovered from the store.
type View struct {
	client   *Client
	timeline *timeline.Timeline
	onChange func([]types.Message)
}

func (c *Client) NewView(conversationId string, onChange func([]types.Message)) *View {
	if onChange == nil {
		onChange = func([]types.Message) {}
	}

	return &View{
		client:   c,
		timeline: timeline.New(conversationId),
		onChange: onChange,
	}
}

func (v *View) ConversationId() string {
	return v.timeline.ConversationId()
}

func (v *View) Messages() []types.Message {
	return v.timeline.Messages()
}

// Sync replaces the timeline with the stored history. A message sent while
// the history request is in flight is kept.
func (v *View) Sync(ctx context.Context) error {
	err := v.timeline.Sync(func() ([]types.Message, error) {
		return v.client.History(ctx, v.ConversationId())
	})
	if err != nil {
		return err
	}

	v.changed()
	return nil
}

// Send appends content over REST and applies the stored message right
// away. The room echo of the same message is ignored by id.
func (v *View) Send(ctx context.Context, content string) (types.Message, error) {
	m, err := v.client.Send(ctx, v.ConversationId(), content)
	if err != nil {
		return types.Message{}, err
	}

	if v.timeline.Apply(m) {
		v.changed()
	}
	return m, nil
}

// Handle applies a server event. It reports whether the conversation was
// deleted.
func (v *View) Handle(msg server.ServerMessage) (deleted bool) {
	switch {
	case msg.Message != nil:
		if v.timeline.Apply(*msg.Message) {
			v.changed()
		}
	case msg.Notification != nil && msg.Notification.MessageDeleted != nil:
		n := msg.Notification.MessageDeleted
		if n.ConversationId == v.ConversationId() && v.timeline.Remove(n.MessageId) {
			v.changed()
		}
	case msg.Notification != nil && msg.Notification.ConversationDeleted != nil:
		if msg.Notification.ConversationDeleted.ConversationId == v.ConversationId() {
			v.timeline.Clear()
			v.changed()
			return true
		}
	}

	return false
}

// Run keeps the view live until ctx is done or the conversation is deleted.
// Each connection joins the room before fetching history, so nothing
// published in between is lost.
func (v *View) Run(ctx context.Context) error {
	delay := minReconnectDelay

	for {
		err := v.runSession(ctx)
		if errors.Is(err, ErrConversationDeleted) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && isTerminal(apiErr.StatusCode) {
			return err
		}

		v.client.log.Printf("conversation %s: session ended: %v, reconnecting in %s", v.ConversationId(), err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (v *View) runSession(ctx context.Context) error {
	sess, err := v.client.Dial(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Join(ctx, v.ConversationId()); err != nil {
		return err
	}
	if err := v.Sync(ctx); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return ErrConversationDeleted
		}
		return err
	}

	for {
		select {
		case msg, ok := <-sess.Events():
			if !ok {
				return sess.Err()
			}
			if v.Handle(msg) {
				return ErrConversationDeleted
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (v *View) changed() {
	v.onChange(v.timeline.Messages())
}

func isTerminal(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
