// Package client is the Go consumer of the relay: a websocket client
// with presence, chat and notification callbacks, plus a Dispatcher for
// services producing notifications over the signed REST endpoint.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultTypingTimeout clears a peer's typing indicator when no
	// fresh typing frame arrived, guarding against lost stop-signals.
	DefaultTypingTimeout = 4 * time.Second

	// seenLimit bounds the dedup set of delivered message ids.
	seenLimit = 1024
)

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  string    `json:"category"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type frame struct {
	Type         string        `json:"type"`
	TempID       string        `json:"tempId,omitempty"`
	ReceiverID   string        `json:"receiverId,omitempty"`
	Content      string        `json:"content,omitempty"`
	UserID       string        `json:"userId,omitempty"`
	Users        []string      `json:"users,omitempty"`
	Message      *Message      `json:"message,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Handlers are the application callbacks. All of them are optional and
// are invoked from the read loop, one at a time.
type Handlers struct {
	OnMessage      func(Message)
	OnNotification func(Notification)
	OnPresence     func(users []string)
	OnTyping       func(userID string, active bool)
}

type sendResult struct {
	msg *Message
	err error
}

// Client is one live session against a relay node.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers

	typingTimeout time.Duration

	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
	typing    map[string]*time.Timer
	online    []string
	pending   map[string]chan sendResult
	closed    bool

	done chan struct{}
}

// Dial connects and authenticates with a session token. The server
// rejects a bad token with 401 before the upgrade completes.
func Dial(ctx context.Context, wsURL, token string, h Handlers) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("handshake rejected: %w", err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	c := newClient(h)
	c.conn = conn
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func newClient(h Handlers) *Client {
	return &Client{
		handlers:      h,
		typingTimeout: DefaultTypingTimeout,
		seen:          map[string]struct{}{},
		typing:        map[string]*time.Timer{},
		pending:       map[string]chan sendResult{},
		done:          make(chan struct{}),
	}
}

// Send relays a chat message and waits for the server's ack. The
// returned message carries the server-assigned id and timestamp.
func (c *Client) Send(ctx context.Context, receiverID, content string) (*Message, error) {
	tempID := uuid.NewString()
	ch := make(chan sendResult, 1)
	c.mu.Lock()
	c.pending[tempID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, tempID)
		c.mu.Unlock()
	}()

	if err := c.write(&frame{Type: "send_message", TempID: tempID, ReceiverID: receiverID, Content: content}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	}
}

// Typing signals are best effort; errors only mean the connection died.
func (c *Client) Typing(receiverID string) error {
	return c.write(&frame{Type: "typing", ReceiverID: receiverID})
}

func (c *Client) StopTyping(receiverID string) error {
	return c.write(&frame{Type: "stop_typing", ReceiverID: receiverID})
}

// Online returns the last presence snapshot received.
func (c *Client) Online() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.online))
	copy(out, c.online)
	return out
}

// TypingPeers returns the peers currently showing a typing indicator.
func (c *Client) TypingPeers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.typing))
	for u := range c.typing {
		out = append(out, u)
	}
	return out
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		return c.conn.Close()
	}
	return nil
}

func (c *Client) write(f *frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer c.Close()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		f := frame{}
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.handleFrame(&f)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		case <-c.done:
			return
		}
	}
}

func (c *Client) handleFrame(f *frame) {
	switch f.Type {
	case "online_users":
		c.mu.Lock()
		c.online = f.Users
		c.mu.Unlock()
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(f.Users)
		}
	case "new_message":
		if f.Message == nil || !c.markSeen(f.Message.ID) {
			return
		}
		// a message from a peer supersedes their typing indicator
		c.clearTyping(f.Message.SenderID, true)
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(*f.Message)
		}
	case "user_typing":
		c.setTyping(f.UserID)
		if c.handlers.OnTyping != nil {
			c.handlers.OnTyping(f.UserID, true)
		}
	case "user_stop_typing":
		c.clearTyping(f.UserID, true)
	case "notification_received":
		if f.Notification == nil {
			return
		}
		if c.handlers.OnNotification != nil {
			c.handlers.OnNotification(*f.Notification)
		}
	case "ack", "error":
		c.mu.Lock()
		ch := c.pending[f.TempID]
		c.mu.Unlock()
		if ch == nil {
			return
		}
		if f.Type == "ack" {
			ch <- sendResult{msg: f.Message}
		} else {
			ch <- sendResult{err: fmt.Errorf("send failed: %s", f.Error)}
		}
	}
}

// markSeen records a delivered message id, reporting whether it is new.
// The relay never resends, so a duplicate means a replayed frame and is
// dropped here.
func (c *Client) markSeen(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > seenLimit {
		delete(c.seen, c.seenOrder[0])
		c.seenOrder = c.seenOrder[1:]
	}
	return true
}

func (c *Client) setTyping(userID string) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.typing[userID]; ok {
		t.Stop()
	}
	c.typing[userID] = time.AfterFunc(c.typingTimeout, func() {
		c.clearTyping(userID, true)
	})
}

func (c *Client) clearTyping(userID string, notify bool) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	t, ok := c.typing[userID]
	if ok {
		t.Stop()
		delete(c.typing, userID)
	}
	c.mu.Unlock()
	if ok && notify && c.handlers.OnTyping != nil {
		c.handlers.OnTyping(userID, false)
	}
}
