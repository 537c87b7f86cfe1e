// Package boltstore is a single-file implementation of the console store on
// bbolt, used for local development and tests. Every write runs in one bbolt
// transaction, so the conversation upsert is atomic like its SQL counterpart.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	companiesBucket       = []byte("companies")
	usersBucket           = []byte("user_profiles")
	numbersBucket         = []byte("business_numbers")
	numbersByPhoneBucket  = []byte("business_numbers_by_phone")
	apiSettingsBucket     = []byte("api_settings")
	conversationsBucket   = []byte("conversations")
	conversationPairIndex = []byte("conversations_by_pair")
	messagesBucket        = []byte("messages")
	messagesByProviderID  = []byte("messages_by_provider_id")
	messagesByTimeIndex   = []byte("messages_by_conversation_time")
	quickRepliesBucket    = []byte("quick_replies")

	allBuckets = [][]byte{
		companiesBucket, usersBucket, numbersBucket, numbersByPhoneBucket, apiSettingsBucket,
		conversationsBucket, conversationPairIndex, messagesBucket, messagesByProviderID, messagesByTimeIndex,
		quickRepliesBucket,
	}
)

// Store implements port.Store on a bbolt file.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(conversationsBucket) == nil {
			return fmt.Errorf("bolt: missing buckets")
		}
		return nil
	})
}

func getJSON(b *bolt.Bucket, key string, v any) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// get loads key of bucket into a new T, or returns nil.
func get[T any](s *Store, bucket []byte, key string) (*T, error) {
	var (
		v     T
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx.Bucket(bucket), key, &v)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// list decodes every value of bucket that keep accepts.
func list[T any](s *Store, bucket []byte, keep func(*T) bool) ([]T, error) {
	out := []T{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return err
			}
			if keep == nil || keep(&v) {
				out = append(out, v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
