package main

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Node owns the connection registry and everything hanging off it:
// presence, the relays and the notification dispatcher. The user ->
// connections map is the only shared mutable state in the process and
// all mutation goes through Register/Deregister.
type Node struct {
	mu    sync.RWMutex
	users map[string]map[string]*Client

	messages      MessageStore
	notifications NotificationStore

	rdb     *redis.Client
	rpub    *redis.PubSub
	stopped atomic.Bool

	upgrader websocket.Upgrader
}

func newNode(messages MessageStore, notifications NotificationStore) *Node {
	log := zap.S()

	n := &Node{
		users:         map[string]map[string]*Client{},
		messages:      messages,
		notifications: notifications,
	}

	n.upgrader = websocket.Upgrader{
		ReadBufferSize:  DefConfig.Client.ReadBufferSize,
		WriteBufferSize: DefConfig.Client.WriteBufferSize,
	}
	n.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
	if DefConfig.Redis.Enable {
		n.rdb = redis.NewClient(&redis.Options{
			Addr:         DefConfig.Redis.Host,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			PoolSize:     10,
			PoolTimeout:  30 * time.Second,
		})
		if DefConfig.Redis.Name == "" {
			DefConfig.Redis.Name = time.Now().Format("Node-20060102150405")
		}
		if DefConfig.Redis.Channel == "" {
			DefConfig.Redis.Channel = "relay"
		}

		if err := n.rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal("redis err:", err.Error())
		}

		go n.clusterRev()

		log.Info("Node Enable Redis Cluster:", DefConfig.Redis.Name, DefConfig.Redis.Channel)
	}

	return n
}

func (n *Node) Close() {
	n.stopped.Store(true)
	if n.rpub != nil {
		n.rpub.Close()
	}
	if n.rdb != nil {
		n.rdb.Close()
	}
}

// Register adds an authenticated connection to the registry. The user's
// first connection flips them online and rebroadcasts presence.
func (n *Node) Register(c *Client) {
	n.mu.Lock()
	conns := n.users[c.user]
	if conns == nil {
		conns = map[string]*Client{}
		n.users[c.user] = conns
	}
	first := len(conns) == 0
	conns[c.id] = c
	n.mu.Unlock()

	c.log.Info("register")
	metricConnections.Inc()
	if first {
		metricOnlineUsers.Inc()
		n.broadcastPresence()
	} else {
		// set unchanged; seed just this connection with the snapshot
		f := Frame{Type: FrameOnlineUsers, Users: n.OnlineUsers()}
		c.push(f.encode())
	}
}

// Deregister is idempotent; the read pump calls it on every exit path
// (close, error, timed-out pong). The user's last connection flips them
// offline and rebroadcasts presence.
func (n *Node) Deregister(c *Client) {
	n.mu.Lock()
	conns, ok := n.users[c.user]
	removed := false
	if ok {
		if _, exists := conns[c.id]; exists {
			delete(conns, c.id)
			removed = true
		}
		if len(conns) == 0 {
			delete(n.users, c.user)
		}
	}
	last := removed && len(conns) == 0
	n.mu.Unlock()

	if !removed {
		return
	}
	c.log.Info("deregister")
	c.close()
	metricConnections.Dec()
	if last {
		metricOnlineUsers.Dec()
		n.broadcastPresence()
	}
}

// ConnectionsFor snapshots a user's live connections for fan-out.
func (n *Node) ConnectionsFor(userID string) []*Client {
	n.mu.RLock()
	defer n.mu.RUnlock()
	conns := n.users[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// OnlineUsers returns the sorted set of users with at least one live
// connection on this node.
func (n *Node) OnlineUsers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.users))
	for u := range n.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (n *Node) allClients() []*Client {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := []*Client{}
	for _, conns := range n.users {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

// broadcastPresence pushes the full online set to every live
// connection. Snapshots, not diffs, so a late joiner needs no backfill.
func (n *Node) broadcastPresence() {
	f := Frame{
		Type:  FrameOnlineUsers,
		Users: n.OnlineUsers(),
	}
	data := f.encode()
	for _, c := range n.allClients() {
		if !c.push(data) {
			c.log.Warn("presence push dropped")
			metricDroppedPushes.Inc()
		}
	}
}

// serveWs authenticates and upgrades an incoming connection. A bad
// token is rejected here and never enters the registry.
func (n *Node) serveWs(w http.ResponseWriter, r *http.Request) {
	log := zap.S().With("method", "serveWs")
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}
	user, err := VerifyToken(DefConfig.JWTSecret, token)
	if err != nil {
		log.Info("handshake rejected:", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade:", err)
		return
	}
	client := &Client{
		node:      n,
		id:        uuid.NewString(),
		user:      user,
		conn:      conn,
		send:      make(chan []byte, DefConfig.Client.sendBuffer()),
		createdAt: time.Now(),
	}
	client.log = zap.S().With("conn", client.id, "user", client.user)
	if DefConfig.Client.Compression {
		client.conn.EnableWriteCompression(true)
		client.conn.SetCompressionLevel(DefConfig.Client.CompressionLevel)
	}
	client.conn.SetCloseHandler(func(code int, text string) error {
		client.log.Info("CloseHandler:", code, text)
		message := websocket.FormatCloseMessage(code, "")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		return nil
	})

	n.Register(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
