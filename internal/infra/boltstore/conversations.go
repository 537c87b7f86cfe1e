package boltstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

func pairKey(customerNumber, businessNumber string) []byte {
	return []byte(customerNumber + "|" + businessNumber)
}

// UpsertConversation finds or creates the conversation of a pair and bumps it,
// inside one write transaction.
func (s *Store) UpsertConversation(_ context.Context, in domain.ConversationUpsert) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.Update(func(tx *bolt.Tx) error {
		convs := tx.Bucket(conversationsBucket)
		idx := tx.Bucket(conversationPairIndex)
		key := pairKey(in.CustomerNumber, in.BusinessNumber)
		now := s.now()

		if id := idx.Get(key); id != nil {
			if _, err := getJSON(convs, string(id), &conv); err != nil {
				return err
			}
			conv.LastMessage = in.LastMessage
			conv.LastMessageTime = in.LastMessageTime
			if conv.CompanyID == "" {
				conv.CompanyID = in.CompanyID
			}
			if conv.ContactName == conv.PhoneNumber && in.ContactName != "" && in.ContactName != conv.PhoneNumber {
				conv.ContactName = in.ContactName
			}
			conv.UpdatedAt = now
			return putJSON(convs, conv.ID, &conv)
		}

		contact := in.ContactName
		if contact == "" {
			contact = in.CustomerNumber
		}
		conv = domain.Conversation{
			ID:              uuid.NewString(),
			PhoneNumber:     in.CustomerNumber,
			FromNumber:      in.BusinessNumber,
			CompanyID:       in.CompanyID,
			ContactName:     contact,
			LastMessage:     in.LastMessage,
			LastMessageTime: in.LastMessageTime,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := idx.Put(key, []byte(conv.ID)); err != nil {
			return err
		}
		return putJSON(convs, conv.ID, &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// IncrementUnread adds one to unread_count inside a write transaction.
func (s *Store) IncrementUnread(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		var c domain.Conversation
		found, err := getJSON(b, id, &c)
		if err != nil || !found {
			return err
		}
		c.UnreadCount++
		c.UpdatedAt = s.now()
		return putJSON(b, id, &c)
	})
}

// FindConversation returns the conversation of a pair, or nil.
func (s *Store) FindConversation(_ context.Context, customerNumber, businessNumber string) (*domain.Conversation, error) {
	var (
		conv  domain.Conversation
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(conversationPairIndex).Get(pairKey(customerNumber, businessNumber))
		if id == nil {
			return nil
		}
		var err error
		found, err = getJSON(tx.Bucket(conversationsBucket), string(id), &conv)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &conv, nil
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	return get[domain.Conversation](s, conversationsBucket, id)
}

// ListConversations returns conversations, latest activity first.
func (s *Store) ListConversations(_ context.Context, f domain.ConversationFilter) ([]domain.Conversation, error) {
	convs := []domain.Conversation{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(_, v []byte) error {
			var c domain.Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if f.CompanyID != "" && c.CompanyID != f.CompanyID {
				return nil
			}
			if f.BusinessNumber != "" && c.FromNumber != f.BusinessNumber {
				return nil
			}
			convs = append(convs, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessageTime.After(convs[j].LastMessageTime)
	})
	if f.Limit > 0 && len(convs) > f.Limit {
		convs = convs[:f.Limit]
	}
	return convs, nil
}

// MarkConversationRead resets unread_count to zero.
func (s *Store) MarkConversationRead(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		var c domain.Conversation
		found, err := getJSON(b, id, &c)
		if err != nil || !found {
			return err
		}
		c.UnreadCount = 0
		c.UpdatedAt = s.now()
		return putJSON(b, id, &c)
	})
}
