package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Tenancy: companies, user_profiles, business_numbers, api_settings
// ============================================================

// getOne reads the first row of table matching filter into a new T.
// It returns nil when nothing matched.
func getOne[T any](ctx context.Context, c *Client, table, filter string) (*T, error) {
	var (
		row   T
		found bool
	)
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, table+"?"+filter+"&limit=1")
		if err != nil {
			return err
		}
		found, err = decodeFirst(body, &row)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &row, nil
}

// listRows reads every row of path into a slice of T.
func listRows[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	rows := []T{}
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil || len(body) == 0 {
			return err
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// insertRow posts row to table and decodes the stored representation. A
// unique violation is reported as *domain.ErrDuplicate on key.
func insertRow[T any](ctx context.Context, c *Client, table string, row map[string]any, key string) (*T, error) {
	var stored T
	err := c.write(func() error {
		body, err := c.doPost(ctx, table, row, "return=representation")
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code == uniqueViolation {
				return &domain.ErrDuplicate{Key: key}
			}
			return err
		}
		found, err := decodeFirst(body, &stored)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("insert returned no row")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetCompany fetches a company by id.
func (c *Client) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCompany")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", id))

	return getOne[domain.Company](ctx, c, "companies", eq("id", id))
}

// SetCompanyStatus changes the subscription status of a company.
func (c *Client) SetCompanyStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetCompanyStatus")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", id), attribute.String("company.status", status))

	return c.write(func() error {
		_, err := c.doPatch(ctx, "companies?"+eq("id", id), map[string]any{
			"subscription_status": status,
		}, false)
		return err
	})
}

// GetUserProfile fetches a user profile by auth identity id.
func (c *Client) GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	return getOne[domain.UserProfile](ctx, c, "user_profiles", eq("id", id))
}

// ListUserProfiles returns users newest first; an empty companyID lists all.
func (c *Client) ListUserProfiles(ctx context.Context, companyID string) ([]domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListUserProfiles")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID))

	path := "user_profiles?order=created_at.desc"
	if companyID != "" {
		path += "&" + eq("company_id", companyID)
	}
	return listRows[domain.UserProfile](ctx, c, path)
}

// SetUserStatus activates or deactivates a user.
func (c *Client) SetUserStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetUserStatus")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id), attribute.String("user.status", status))

	return c.write(func() error {
		_, err := c.doPatch(ctx, "user_profiles?"+eq("id", id), map[string]any{
			"status": status,
		}, false)
		return err
	})
}

// CreateBusinessNumber inserts a number; a taken phone is *domain.ErrDuplicate.
func (c *Client) CreateBusinessNumber(ctx context.Context, b *domain.BusinessNumber) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateBusinessNumber")
	defer span.End()
	span.SetAttributes(attribute.String("business_number.phone", b.PhoneNumber))

	status := b.Status
	if status == "" {
		status = domain.NumberPending
	}
	return insertRow[domain.BusinessNumber](ctx, c, "business_numbers", map[string]any{
		"phone_number": b.PhoneNumber,
		"display_name": b.DisplayName,
		"is_default":   b.IsDefault,
		"company_id":   nullable(b.CompanyID),
		"user_id":      nullable(b.UserID),
		"status":       status,
	}, b.PhoneNumber)
}

// ListBusinessNumbers returns numbers newest first.
func (c *Client) ListBusinessNumbers(ctx context.Context, f domain.BusinessNumberFilter) ([]domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListBusinessNumbers")
	defer span.End()

	path := "business_numbers?order=created_at.desc"
	if f.CompanyID != "" {
		path += "&" + eq("company_id", f.CompanyID)
	}
	if f.Status != "" {
		path += "&" + eq("status", f.Status)
	}
	return listRows[domain.BusinessNumber](ctx, c, path)
}

// DeleteBusinessNumber removes a number.
func (c *Client) DeleteBusinessNumber(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteBusinessNumber")
	defer span.End()
	span.SetAttributes(attribute.String("business_number.id", id))

	return c.write(func() error {
		return c.doDelete(ctx, "business_numbers?"+eq("id", id))
	})
}

// GetBusinessNumber fetches a business number by id.
func (c *Client) GetBusinessNumber(ctx context.Context, id string) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBusinessNumber")
	defer span.End()
	span.SetAttributes(attribute.String("business_number.id", id))

	return getOne[domain.BusinessNumber](ctx, c, "business_numbers", eq("id", id))
}

// GetBusinessNumberByPhone fetches a business number by its E.164 phone number.
func (c *Client) GetBusinessNumberByPhone(ctx context.Context, phone string) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBusinessNumberByPhone")
	defer span.End()
	span.SetAttributes(attribute.String("business_number.phone", phone))

	return getOne[domain.BusinessNumber](ctx, c, "business_numbers", eq("phone_number", phone))
}

// SetBusinessNumberStatus changes the approval status of a number.
func (c *Client) SetBusinessNumberStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetBusinessNumberStatus")
	defer span.End()

	return c.write(func() error {
		_, err := c.doPatch(ctx, "business_numbers?"+eq("id", id), map[string]any{
			"status": status,
		}, false)
		return err
	})
}

// SetDefaultBusinessNumber clears every default of the company, then marks id.
func (c *Client) SetDefaultBusinessNumber(ctx context.Context, companyID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetDefaultBusinessNumber")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID), attribute.String("business_number.id", id))

	return c.write(func() error {
		if companyID != "" {
			if _, err := c.doPatch(ctx, "business_numbers?"+eq("company_id", companyID)+"&is_default=is.true", map[string]any{
				"is_default": false,
			}, false); err != nil {
				return err
			}
		}
		_, err := c.doPatch(ctx, "business_numbers?"+eq("id", id), map[string]any{
			"is_default": true,
		}, false)
		return err
	})
}

// GetAPISettings looks up the provider credential by company, then by legacy user.
func (c *Client) GetAPISettings(ctx context.Context, companyID, userID string) (*domain.APISettings, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAPISettings")
	defer span.End()

	if companyID != "" {
		s, err := getOne[domain.APISettings](ctx, c, "api_settings", eq("company_id", companyID))
		if err != nil || s != nil {
			return s, err
		}
	}
	if userID != "" {
		return getOne[domain.APISettings](ctx, c, "api_settings", eq("user_id", userID))
	}
	return nil, nil
}

// UpsertAPISettings inserts or replaces the credential row (conflict on company_id).
func (c *Client) UpsertAPISettings(ctx context.Context, s *domain.APISettings) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertAPISettings")
	defer span.End()

	row := map[string]any{
		"ycloud_api_key": s.YCloudAPIKey,
		"webhook_secret": s.WebhookSecret,
		"updated_at":     s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	conflict := "company_id"
	if s.CompanyID != "" {
		row["company_id"] = s.CompanyID
	} else {
		row["user_id"] = s.UserID
		conflict = "user_id"
	}

	return c.write(func() error {
		_, err := c.doPost(ctx, "api_settings?on_conflict="+conflict, row, "resolution=merge-duplicates,return=minimal")
		return err
	})
}
