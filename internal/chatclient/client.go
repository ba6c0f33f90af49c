// Package chatclient talks to the chat server over its REST API and
// websocket channel.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-alumnichat/internal/types"
)

const defaultTimeout = 15 * time.Second

// APIError is the error envelope returned by the server.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	log        *log.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New returns a client for the server at baseURL authenticating with the
// given bearer token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.ToLower(http.StatusText(resp.StatusCode))
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) ListConversations(ctx context.Context) ([]types.ConversationSummary, error) {
	var resp struct {
		Conversations []types.ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats/conversations", nil, &resp); err != nil {
		return nil, err
	}

	return resp.Conversations, nil
}

func (c *Client) StartConversation(ctx context.Context, target string) (types.Conversation, error) {
	var conv types.Conversation
	err := c.do(ctx, http.MethodPost, "/api/chats/conversations/start", map[string]string{"target_user_id": target}, &conv)
	return conv, err
}

// SendToUser posts content to the conversation with the given user,
// creating the conversation on first use.
func (c *Client) SendToUser(ctx context.Context, to, content string) (types.Message, error) {
	var m types.Message
	err := c.do(ctx, http.MethodPost, "/api/chats", map[string]string{"to": to, "content": content}, &m)
	return m, err
}

func (c *Client) Send(ctx context.Context, conversationId, content string) (types.Message, error) {
	var m types.Message
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(conversationId)+"/messages", map[string]string{"content": content}, &m)
	return m, err
}

func (c *Client) History(ctx context.Context, conversationId string) ([]types.Message, error) {
	var msgs []types.Message
	err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(conversationId)+"/messages", nil, &msgs)
	return msgs, err
}

func (c *Client) MarkRead(ctx context.Context, conversationId string) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(conversationId)+"/read", nil, &resp)
	return resp.Updated, err
}

// ListAllConversations lists every conversation. It requires an admin
// token.
func (c *Client) ListAllConversations(ctx context.Context, search string) ([]types.ConversationSummary, error) {
	path := "/api/admin/conversations"
	if search != "" {
		path += "?" + url.Values{"search": {search}}.Encode()
	}

	var resp struct {
		Conversations []types.ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	return resp.Conversations, nil
}

func (c *Client) AdminHistory(ctx context.Context, conversationId string) ([]types.Message, error) {
	var msgs []types.Message
	err := c.do(ctx, http.MethodGet, "/api/admin/conversations/"+url.PathEscape(conversationId)+"/messages", nil, &msgs)
	return msgs, err
}

func (c *Client) DeleteConversation(ctx context.Context, conversationId string) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/conversations/"+url.PathEscape(conversationId), nil, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, messageId int64) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/messages/"+strconv.FormatInt(messageId, 10), nil, nil)
}

func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := c.do(ctx, http.MethodGet, "/api/admin/stats", nil, &st)
	return st, err
}
