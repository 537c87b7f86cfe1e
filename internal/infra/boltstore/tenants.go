package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// PutCompany creates or replaces a company. An empty id is generated.
func (s *Store) PutCompany(c *domain.Company) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SubscriptionStatus == "" {
		c.SubscriptionStatus = domain.SubscriptionActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(companiesBucket), c.ID, c)
	})
}

// PutUserProfile creates or replaces a user profile.
func (s *Store) PutUserProfile(u *domain.UserProfile) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = domain.UserActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(usersBucket), u.ID, u)
	})
}

// PutBusinessNumber creates or replaces a business number. Phone numbers are unique.
func (s *Store) PutBusinessNumber(b *domain.BusinessNumber) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.NumberPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(numbersByPhoneBucket)
		if owner := idx.Get([]byte(b.PhoneNumber)); owner != nil && string(owner) != b.ID {
			return fmt.Errorf("bolt: phone number %s already registered", b.PhoneNumber)
		}
		if err := idx.Put([]byte(b.PhoneNumber), []byte(b.ID)); err != nil {
			return err
		}
		return putJSON(tx.Bucket(numbersBucket), b.ID, b)
	})
}

// GetCompany fetches a company by id.
func (s *Store) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	return get[domain.Company](s, companiesBucket, id)
}

// SetCompanyStatus changes the subscription status of a company.
func (s *Store) SetCompanyStatus(_ context.Context, id, status string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(companiesBucket)
		var c domain.Company
		found, err := getJSON(b, id, &c)
		if err != nil || !found {
			return err
		}
		c.SubscriptionStatus = status
		return putJSON(b, id, &c)
	})
}

// GetUserProfile fetches a user profile by id.
func (s *Store) GetUserProfile(_ context.Context, id string) (*domain.UserProfile, error) {
	return get[domain.UserProfile](s, usersBucket, id)
}

// ListUserProfiles returns users newest first, optionally of one company.
func (s *Store) ListUserProfiles(_ context.Context, companyID string) ([]domain.UserProfile, error) {
	users, err := list(s, usersBucket, func(u *domain.UserProfile) bool {
		return companyID == "" || u.CompanyID == companyID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

// SetUserStatus activates or deactivates a user.
func (s *Store) SetUserStatus(_ context.Context, id, status string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		var u domain.UserProfile
		found, err := getJSON(b, id, &u)
		if err != nil || !found {
			return err
		}
		u.Status = status
		return putJSON(b, id, &u)
	})
}

// CreateBusinessNumber inserts a number; a taken phone is *domain.ErrDuplicate.
func (s *Store) CreateBusinessNumber(_ context.Context, b *domain.BusinessNumber) (*domain.BusinessNumber, error) {
	row := *b
	row.ID = uuid.NewString()
	if row.Status == "" {
		row.Status = domain.NumberPending
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(numbersByPhoneBucket)
		if idx.Get([]byte(row.PhoneNumber)) != nil {
			return &domain.ErrDuplicate{Key: row.PhoneNumber}
		}
		if err := idx.Put([]byte(row.PhoneNumber), []byte(row.ID)); err != nil {
			return err
		}
		return putJSON(tx.Bucket(numbersBucket), row.ID, &row)
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListBusinessNumbers returns numbers newest first.
func (s *Store) ListBusinessNumbers(_ context.Context, f domain.BusinessNumberFilter) ([]domain.BusinessNumber, error) {
	numbers, err := list(s, numbersBucket, func(b *domain.BusinessNumber) bool {
		return (f.CompanyID == "" || b.CompanyID == f.CompanyID) && (f.Status == "" || b.Status == f.Status)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(numbers, func(i, j int) bool { return numbers[i].CreatedAt.After(numbers[j].CreatedAt) })
	return numbers, nil
}

// DeleteBusinessNumber removes a number and its phone index entry.
func (s *Store) DeleteBusinessNumber(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(numbersBucket)
		var b domain.BusinessNumber
		found, err := getJSON(bucket, id, &b)
		if err != nil || !found {
			return err
		}
		if err := tx.Bucket(numbersByPhoneBucket).Delete([]byte(b.PhoneNumber)); err != nil {
			return err
		}
		return bucket.Delete([]byte(id))
	})
}

// GetBusinessNumber fetches a business number by id.
func (s *Store) GetBusinessNumber(_ context.Context, id string) (*domain.BusinessNumber, error) {
	return get[domain.BusinessNumber](s, numbersBucket, id)
}

// GetBusinessNumberByPhone fetches a business number by phone.
func (s *Store) GetBusinessNumberByPhone(_ context.Context, phone string) (*domain.BusinessNumber, error) {
	var (
		b     domain.BusinessNumber
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(numbersByPhoneBucket).Get([]byte(phone))
		if id == nil {
			return nil
		}
		var err error
		found, err = getJSON(tx.Bucket(numbersBucket), string(id), &b)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

// SetBusinessNumberStatus changes the approval status of a number.
func (s *Store) SetBusinessNumberStatus(_ context.Context, id, status string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(numbersBucket)
		var b domain.BusinessNumber
		found, err := getJSON(bucket, id, &b)
		if err != nil || !found {
			return err
		}
		b.Status = status
		return putJSON(bucket, id, &b)
	})
}

// SetDefaultBusinessNumber clears the company's defaults and marks id.
func (s *Store) SetDefaultBusinessNumber(_ context.Context, companyID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(numbersBucket)
		if companyID != "" {
			// bbolt forbids writes inside ForEach: collect first.
			var cleared []domain.BusinessNumber
			err := bucket.ForEach(func(_, v []byte) error {
				var b domain.BusinessNumber
				if err := json.Unmarshal(v, &b); err != nil {
					return err
				}
				if b.CompanyID == companyID && b.IsDefault {
					b.IsDefault = false
					cleared = append(cleared, b)
				}
				return nil
			})
			if err != nil {
				return err
			}
			for i := range cleared {
				if err := putJSON(bucket, cleared[i].ID, &cleared[i]); err != nil {
					return err
				}
			}
		}
		var b domain.BusinessNumber
		found, err := getJSON(bucket, id, &b)
		if err != nil || !found {
			return err
		}
		b.IsDefault = true
		return putJSON(bucket, id, &b)
	})
}

func apiSettingsKey(companyID, userID string) string {
	if companyID != "" {
		return "company:" + companyID
	}
	return "user:" + userID
}

// GetAPISettings looks up by company first, then by legacy user.
func (s *Store) GetAPISettings(_ context.Context, companyID, userID string) (*domain.APISettings, error) {
	if companyID != "" {
		a, err := get[domain.APISettings](s, apiSettingsBucket, apiSettingsKey(companyID, ""))
		if err != nil || a != nil {
			return a, err
		}
	}
	if userID != "" {
		return get[domain.APISettings](s, apiSettingsBucket, apiSettingsKey("", userID))
	}
	return nil, nil
}

// UpsertAPISettings inserts or replaces the credential row.
func (s *Store) UpsertAPISettings(_ context.Context, a *domain.APISettings) error {
	key := apiSettingsKey(a.CompanyID, a.UserID)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(apiSettingsBucket)
		var existing domain.APISettings
		found, err := getJSON(b, key, &existing)
		if err != nil {
			return err
		}
		row := *a
		if found {
			row.ID = existing.ID
		}
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = s.now()
		}
		return putJSON(b, key, &row)
	})
}
