package boltstore

import (
	"context"
	"sort"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// ListQuickReplies returns the company's replies ordered by shortcut.
func (s *Store) ListQuickReplies(_ context.Context, companyID string) ([]domain.QuickReply, error) {
	replies, err := list(s, quickRepliesBucket, func(q *domain.QuickReply) bool {
		return q.CompanyID == companyID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(replies, func(i, j int) bool { return replies[i].Shortcut < replies[j].Shortcut })
	return replies, nil
}

// GetQuickReply fetches a reply by id.
func (s *Store) GetQuickReply(_ context.Context, id string) (*domain.QuickReply, error) {
	return get[domain.QuickReply](s, quickRepliesBucket, id)
}

// CreateQuickReply inserts a reply with a generated id.
func (s *Store) CreateQuickReply(_ context.Context, q *domain.QuickReply) (*domain.QuickReply, error) {
	row := *q
	row.ID = uuid.NewString()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(quickRepliesBucket), row.ID, &row)
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateQuickReply rewrites message and caption.
func (s *Store) UpdateQuickReply(_ context.Context, q *domain.QuickReply) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(quickRepliesBucket)
		var row domain.QuickReply
		found, err := getJSON(b, q.ID, &row)
		if err != nil || !found {
			return err
		}
		row.Message = q.Message
		row.Caption = q.Caption
		return putJSON(b, row.ID, &row)
	})
}

// DeleteQuickReply removes a reply.
func (s *Store) DeleteQuickReply(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(quickRepliesBucket).Delete([]byte(id))
	})
}
