package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// sortableTime is fixed-width so that byte order equals time order.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func timeKey(conversationID string, ts time.Time, id string) []byte {
	return []byte(conversationID + "\x00" + ts.UTC().Format(sortableTime) + "\x00" + id)
}

// InsertMessage inserts m; an existing message_id is *domain.ErrDuplicate.
func (s *Store) InsertMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	stored := *m
	err := s.db.Update(func(tx *bolt.Tx) error {
		byProvider := tx.Bucket(messagesByProviderID)
		if m.MessageID != "" && byProvider.Get([]byte(m.MessageID)) != nil {
			return &domain.ErrDuplicate{Key: m.MessageID}
		}
		if tx.Bucket(conversationsBucket).Get([]byte(m.ConversationID)) == nil {
			return fmt.Errorf("bolt: conversation %s does not exist", m.ConversationID)
		}

		stored.ID = uuid.NewString()
		stored.CreatedAt = s.now()
		if stored.Timestamp.IsZero() {
			stored.Timestamp = stored.CreatedAt
		}

		if m.MessageID != "" {
			if err := byProvider.Put([]byte(m.MessageID), []byte(stored.ID)); err != nil {
				return err
			}
		}
		if err := tx.Bucket(messagesByTimeIndex).Put(timeKey(stored.ConversationID, stored.Timestamp, stored.ID), []byte(stored.ID)); err != nil {
			return err
		}
		return putJSON(tx.Bucket(messagesBucket), stored.ID, &stored)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetMessageByProviderID returns the message with the provider id, or nil.
func (s *Store) GetMessageByProviderID(_ context.Context, providerID string) (*domain.Message, error) {
	var (
		m     domain.Message
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(messagesByProviderID).Get([]byte(providerID))
		if id == nil {
			return nil
		}
		var err error
		found, err = getJSON(tx.Bucket(messagesBucket), string(id), &m)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageStatus sets the status and reports whether a message matched.
func (s *Store) UpdateMessageStatus(_ context.Context, providerID, status string) (bool, error) {
	var matched bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(messagesByProviderID).Get([]byte(providerID))
		if id == nil {
			return nil
		}
		b := tx.Bucket(messagesBucket)
		var m domain.Message
		found, err := getJSON(b, string(id), &m)
		if err != nil || !found {
			return err
		}
		m.Status = status
		matched = true
		return putJSON(b, m.ID, &m)
	})
	return matched, err
}

// ListMessages returns the newest limit messages of a conversation, oldest
// first. A non-positive limit returns every message.
func (s *Store) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	messages := []domain.Message{}
	prefix := []byte(conversationID + "\x00")
	err := s.db.View(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(messagesBucket)
		c := tx.Bucket(messagesByTimeIndex).Cursor()
		for k, id := seekLast(c, prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Prev() {
			if limit > 0 && len(messages) >= limit {
				break
			}
			var m domain.Message
			found, err := getJSON(msgs, string(id), &m)
			if err != nil {
				return err
			}
			if found {
				messages = append(messages, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// seekLast positions c on the last key under prefix.
func seekLast(c *bolt.Cursor, prefix []byte) ([]byte, []byte) {
	k, _ := c.Seek(append(append([]byte{}, prefix...), 0xff))
	if k == nil {
		return c.Last()
	}
	return c.Prev()
}

// LatestInboundMessage returns the newest inbound message, or nil.
func (s *Store) LatestInboundMessage(_ context.Context, conversationID string) (*domain.Message, error) {
	var latest *domain.Message
	prefix := []byte(conversationID + "\x00")
	err := s.db.View(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(messagesBucket)
		c := tx.Bucket(messagesByTimeIndex).Cursor()

		for k, id := seekLast(c, prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Prev() {
			var m domain.Message
			found, err := getJSON(msgs, string(id), &m)
			if err != nil {
				return err
			}
			if found && m.Direction == domain.Inbound {
				latest = &m
				return nil
			}
		}
		return nil
	})
	return latest, err
}
