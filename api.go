package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userKey = "relay.user"

// authRequired resolves the bearer token to a user id, same check as
// the websocket handshake.
func authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		user, err := VerifyToken(DefConfig.JWTSecret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}

func newRouter(n *Node) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", func(c *gin.Context) {
		n.serveWs(c.Writer, c.Request)
	})
	r.POST("/internal/dispatch", n.dispatchHandler)

	api := r.Group("/api", authRequired())
	api.GET("/presence", n.presenceHandler)
	api.GET("/conversations", n.conversationsHandler)
	api.GET("/messages/:userID", n.messagesHandler)
	api.POST("/messages/read", n.markMessagesReadHandler)
	api.GET("/notifications", n.notificationsHandler)
	api.GET("/notifications/unread-count", n.unreadCountHandler)
	api.POST("/notifications/read", n.markNotificationsReadHandler)
	api.DELETE("/notifications/:id", n.deleteNotificationHandler)
	api.DELETE("/notifications", n.clearNotificationsHandler)
	return r
}

// presenceHandler is the polling fallback for clients without a live
// connection. The set is node-local in cluster mode.
func (n *Node) presenceHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": n.OnlineUsers()})
}

func (n *Node) conversationsHandler(c *gin.Context) {
	out, err := n.messages.Summaries(c.Request.Context(), currentUser(c))
	if err != nil {
		zap.S().Error("conversations:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

func (n *Node) messagesHandler(c *gin.Context) {
	var q struct {
		Limit  int    `form:"limit"`
		Before string `form:"before"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad query"})
		return
	}
	msgs, err := n.messages.Conversation(c.Request.Context(), currentUser(c), c.Param("userID"), q.Limit, q.Before)
	if err != nil {
		zap.S().Error("conversation:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (n *Node) markMessagesReadHandler(c *gin.Context) {
	var req struct {
		SenderID string   `json:"senderId" binding:"required"`
		IDs      []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	count, err := n.messages.MarkRead(c.Request.Context(), currentUser(c), req.SenderID, req.IDs)
	if err != nil {
		zap.S().Error("mark read:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

func (n *Node) notificationsHandler(c *gin.Context) {
	var q struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad query"})
		return
	}
	ns, err := n.notifications.ByUser(c.Request.Context(), currentUser(c), q.Limit)
	if err != nil {
		zap.S().Error("notifications:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": ns})
}

func (n *Node) unreadCountHandler(c *gin.Context) {
	count, err := n.notifications.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		zap.S().Error("unread count:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (n *Node) markNotificationsReadHandler(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	count, err := n.notifications.MarkRead(c.Request.Context(), currentUser(c), req.IDs)
	if err != nil {
		zap.S().Error("mark notifications read:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

func (n *Node) deleteNotificationHandler(c *gin.Context) {
	if err := n.notifications.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (n *Node) clearNotificationsHandler(c *gin.Context) {
	if err := n.notifications.Clear(c.Request.Context(), currentUser(c)); err != nil {
		zap.S().Error("clear notifications:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// dispatchHandler is the entry point for business-logic services
// (appointments, prescriptions) producing notifications. It is
// authenticated by request signing over a shared secret, not by a user
// token: md5(secret + body + ts) must match the sign query parameter.
func (n *Node) dispatchHandler(c *gin.Context) {
	log := zap.S().With("method", "dispatch")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}

	sign := c.Query("sign")
	ts := c.Query("ts")
	if sign == "" || ts == "" || !CheckSignMD5(DefConfig.DispatchSecret, string(body), ts, sign) {
		log.Info("dispatch rejected: bad sign")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign"})
		return
	}

	var req struct {
		UserID   string `json:"userId"`
		Title    string `json:"title"`
		Body     string `json:"body"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}

	nf, err := n.Dispatch(c.Request.Context(), req.UserID, req.Title, req.Body, req.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": nf.ID})
}
