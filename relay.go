package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendMessage validates, durably persists, then relays a chat message.
// Sender identity comes from the connection, never from the frame, and
// nothing is relayed unless the store accepted the message first.
func (n *Node) SendMessage(c *Client, f *Frame) {
	content := strings.TrimSpace(f.Content)
	switch {
	case f.ReceiverID == "":
		c.push(errorFrame(f.TempID, "missing receiver"))
		return
	case f.ReceiverID == c.user:
		c.push(errorFrame(f.TempID, "cannot send to self"))
		return
	case content == "":
		c.push(errorFrame(f.TempID, "empty content"))
		return
	}

	m := &Message{
		ID:         uuid.NewString(),
		SenderID:   c.user,
		ReceiverID: f.ReceiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	if err := n.messages.Append(context.Background(), m); err != nil {
		c.log.Error("persist message:", err)
		c.push(errorFrame(f.TempID, "store failed"))
		return
	}

	ack := Frame{Type: FrameAck, TempID: f.TempID, Message: m}
	c.push(ack.encode())

	push := Frame{Type: FrameNewMessage, Message: m}
	n.pushToUser(m.ReceiverID, push.encode())
	metricMessagesRelayed.Inc()
}

// RelayTyping forwards an ephemeral typing signal. Best effort: nothing
// is stored and an offline receiver just drops it.
func (n *Node) RelayTyping(fromID, toID string, active bool) {
	if toID == "" || toID == fromID {
		return
	}
	t := FrameUserStopTyping
	if active {
		t = FrameUserTyping
	}
	f := Frame{Type: t, UserID: fromID}
	n.pushToUser(toID, f.encode())
	metricTypingSignals.Inc()
}

// Dispatch persists a notification, then pushes it live to the target's
// connections if any. A disconnected target picks it up via the
// unread-count poll and notification fetch.
func (n *Node) Dispatch(ctx context.Context, target, title, body, category string) (*Notification, error) {
	if target == "" {
		return nil, fmt.Errorf("missing target user")
	}
	if !validCategory(category) {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	nf := &Notification{
		ID:        uuid.NewString(),
		UserID:    target,
		Title:     title,
		Body:      body,
		Category:  category,
		CreatedAt: time.Now(),
	}
	if err := n.notifications.Append(ctx, nf); err != nil {
		return nil, err
	}

	f := Frame{Type: FrameNotification, Notification: nf}
	n.pushToUser(target, f.encode())
	metricNotificationsDispatched.Inc()
	zap.S().Info("dispatched:", nf.ID, " ", category, " -> ", target)
	return nf, nil
}

// pushToUser fans a frame out to the user's local connections and, in
// cluster mode, to peer nodes carrying other connections of the user.
func (n *Node) pushToUser(userID string, data []byte) {
	n.deliverLocal(userID, data)
	n.clusterPublish(userID, data)
}

// deliverLocal pushes to each of the user's connections independently;
// one full or closed buffer never affects the others.
func (n *Node) deliverLocal(userID string, data []byte) int {
	sent := 0
	for _, c := range n.ConnectionsFor(userID) {
		if c.push(data) {
			sent++
		} else {
			c.log.Warn("push dropped")
			metricDroppedPushes.Inc()
		}
	}
	return sent
}
