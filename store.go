package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// MessageStore is the durable side of the message relay. The relay never
// declares a send successful before Append has returned nil.
type MessageStore interface {
	Append(ctx context.Context, m *Message) error
	Conversation(ctx context.Context, userID, otherID string, limit int, beforeID string) ([]Message, error)
	MarkRead(ctx context.Context, readerID, senderID string, ids []string) (int64, error)
	Summaries(ctx context.Context, userID string) ([]ConversationSummary, error)
}

// NotificationStore backs the dispatcher and the polling fallback.
type NotificationStore interface {
	Append(ctx context.Context, n *Notification) error
	ByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	Clear(ctx context.Context, userID string) error
}

type DBMessageStore struct {
	db *gorm.DB
}

func NewDBMessageStore(db *gorm.DB) *DBMessageStore {
	return &DBMessageStore{db: db}
}

func (s *DBMessageStore) Append(ctx context.Context, m *Message) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Conversation returns messages between two users in creation order.
// If beforeID is set, only messages created before that message are
// returned, which gives backwards pagination from any point.
func (s *DBMessageStore) Conversation(ctx context.Context, userID, otherID string, limit int, beforeID string) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, otherID, otherID, userID)
	if beforeID != "" {
		var pivot Message
		if err := s.db.WithContext(ctx).Select("created_at").First(&pivot, "id = ?", beforeID).Error; err != nil {
			return nil, fmt.Errorf("pagination pivot: %w", err)
		}
		q = q.Where("created_at < ?", pivot.CreatedAt)
	}
	var msgs []Message
	if err := q.Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	// newest-first window, flipped to creation order for the caller
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead flips the read flag on messages sent by senderID to readerID.
// With no ids the whole conversation side is marked.
func (s *DBMessageStore) MarkRead(ctx context.Context, readerID, senderID string, ids []string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Message{}).
		Where("receiver_id = ? AND sender_id = ? AND read = ?", readerID, senderID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Summaries builds the caller's conversation list: one entry per
// counterpart with the latest message and the unread count. One query
// per counterpart; conversation lists in this domain are small.
func (s *DBMessageStore) Summaries(ctx context.Context, userID string) ([]ConversationSummary, error) {
	var peers []string
	err := s.db.WithContext(ctx).Model(&Message{}).
		Select("DISTINCT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS peer", userID).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Scan(&peers).Error
	if err != nil {
		return nil, fmt.Errorf("list counterparts: %w", err)
	}
	out := make([]ConversationSummary, 0, len(peers))
	for _, peer := range peers {
		var last Message
		err := s.db.WithContext(ctx).
			Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
				userID, peer, peer, userID).
			Order("created_at DESC").First(&last).Error
		if err != nil {
			return nil, fmt.Errorf("last message for %s: %w", peer, err)
		}
		var unread int64
		err = s.db.WithContext(ctx).Model(&Message{}).
			Where("receiver_id = ? AND sender_id = ? AND read = ?", userID, peer, false).
			Count(&unread).Error
		if err != nil {
			return nil, fmt.Errorf("unread count for %s: %w", peer, err)
		}
		m := last
		out = append(out, ConversationSummary{UserID: peer, LastMessage: &m, Unread: unread})
	}
	return out, nil
}

type DBNotificationStore struct {
	db *gorm.DB
}

func NewDBNotificationStore(db *gorm.DB) *DBNotificationStore {
	return &DBNotificationStore{db: db}
}

func (s *DBNotificationStore) Append(ctx context.Context, n *Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func (s *DBNotificationStore) ByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var ns []Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&ns).Error
	if err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	return ns, nil
}

func (s *DBNotificationStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

// MarkRead with no ids marks everything the user has.
func (s *DBNotificationStore) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *DBNotificationStore) Delete(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *DBNotificationStore) Clear(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Notification{}).Error; err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}
