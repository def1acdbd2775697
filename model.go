package main

import (
	"encoding/json"
	"time"
)

// Message is one chat communication between two users. Content is
// immutable once stored; only the read flag transitions false->true.
type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	SenderID   string    `json:"senderId" gorm:"column:sender_id;index;size:64"`
	ReceiverID string    `json:"receiverId" gorm:"column:receiver_id;index;size:64"`
	Content    string    `json:"content" gorm:"type:text"`
	Read       bool      `json:"read" gorm:"index"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Notification is a system-generated event directed at one user.
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"userId" gorm:"column:user_id;index;size:64"`
	Title     string    `json:"title"`
	Body      string    `json:"body" gorm:"type:text"`
	Category  string    `json:"category" gorm:"size:16"`
	Read      bool      `json:"read" gorm:"index"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	CategoryAppointment  = "appointment"
	CategoryPrescription = "prescription"
	CategoryReminder     = "reminder"
	CategoryAlert        = "alert"
)

func validCategory(c string) bool {
	switch c {
	case CategoryAppointment, CategoryPrescription, CategoryReminder, CategoryAlert:
		return true
	}
	return false
}

// ConversationSummary is the per-counterpart view of a user's inbox.
type ConversationSummary struct {
	UserID      string   `json:"userId"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	Unread      int64    `json:"unread"`
}

const (
	// client -> server
	FrameSendMessage = "send_message"
	FrameTyping      = "typing"
	FrameStopTyping  = "stop_typing"

	// server -> client
	FrameOnlineUsers    = "online_users"
	FrameNewMessage     = "new_message"
	FrameUserTyping     = "user_typing"
	FrameUserStopTyping = "user_stop_typing"
	FrameNotification   = "notification_received"
	FrameAck            = "ack"
	FrameError          = "error"
)

// Frame is the JSON envelope for everything crossing the websocket.
// Which fields are set depends on Type.
type Frame struct {
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

func (f *Frame) encode() []byte {
	data, _ := json.Marshal(f)
	return data
}

// ClusterFrame wraps a directed push published between nodes.
type ClusterFrame struct {
	NodeName     string          `json:"node"`
	TargetUserID string          `json:"target"`
	Payload      json.RawMessage `json:"payload"`
}
