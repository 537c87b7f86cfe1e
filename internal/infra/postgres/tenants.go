package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/jackc/pgx/v5"
)

const (
	companyColumns        = `id::text, name, subscription_status, created_at`
	userProfileColumns    = `id::text, email, display_name, role, status, COALESCE(company_id::text, ''), created_at`
	businessNumberColumns = `id::text, phone_number, display_name, is_default, COALESCE(company_id::text, ''), COALESCE(user_id::text, ''), status, created_at`
	apiSettingsColumns    = `id::text, COALESCE(company_id::text, ''), COALESCE(user_id::text, ''), ycloud_api_key, webhook_secret, updated_at`
)

// GetCompany fetches a company by id.
func (s *Store) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetCompany")
	defer span.End()

	var c domain.Company
	err := s.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id::text = $1`, id).
		Scan(&c.ID, &c.Name, &c.SubscriptionStatus, &c.CreatedAt)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get company: %w", err)
	}
	return &c, nil
}

// SetCompanyStatus changes the subscription status of a company.
func (s *Store) SetCompanyStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "Postgres.SetCompanyStatus")
	defer span.End()

	if _, err := s.db.Exec(ctx, `UPDATE companies SET subscription_status = $2 WHERE id::text = $1`, id, status); err != nil {
		return fmt.Errorf("postgres: set company status: %w", err)
	}
	return nil
}

// GetUserProfile fetches a user profile by auth identity id.
func (s *Store) GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetUserProfile")
	defer span.End()

	var u domain.UserProfile
	err := s.db.QueryRow(ctx, `SELECT `+userProfileColumns+` FROM user_profiles WHERE id::text = $1`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Status, &u.CompanyID, &u.CreatedAt)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get user profile: %w", err)
	}
	return &u, nil
}

// ListUserProfiles returns users newest first; an empty companyID lists all.
func (s *Store) ListUserProfiles(ctx context.Context, companyID string) ([]domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListUserProfiles")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT `+userProfileColumns+`
		FROM user_profiles
		WHERE $1 = '' OR company_id::text = $1
		ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user profiles: %w", err)
	}
	defer rows.Close()

	users := []domain.UserProfile{}
	for rows.Next() {
		var u domain.UserProfile
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Status, &u.CompanyID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan user profile: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list user profiles: %w", err)
	}
	return users, nil
}

// SetUserStatus activates or deactivates a user.
func (s *Store) SetUserStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "Postgres.SetUserStatus")
	defer span.End()

	if _, err := s.db.Exec(ctx, `UPDATE user_profiles SET status = $2 WHERE id::text = $1`, id, status); err != nil {
		return fmt.Errorf("postgres: set user status: %w", err)
	}
	return nil
}

func scanBusinessNumber(row pgx.Row) (*domain.BusinessNumber, error) {
	var b domain.BusinessNumber
	err := row.Scan(&b.ID, &b.PhoneNumber, &b.DisplayName, &b.IsDefault, &b.CompanyID, &b.UserID, &b.Status, &b.CreatedAt)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: scan business number: %w", err)
	}
	return &b, nil
}

// GetBusinessNumber fetches a business number by id.
func (s *Store) GetBusinessNumber(ctx context.Context, id string) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetBusinessNumber")
	defer span.End()

	return scanBusinessNumber(s.db.QueryRow(ctx,
		`SELECT `+businessNumberColumns+` FROM business_numbers WHERE id::text = $1`, id))
}

// GetBusinessNumberByPhone fetches a business number by phone.
func (s *Store) GetBusinessNumberByPhone(ctx context.Context, phone string) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetBusinessNumberByPhone")
	defer span.End()

	return scanBusinessNumber(s.db.QueryRow(ctx,
		`SELECT `+businessNumberColumns+` FROM business_numbers WHERE phone_number = $1`, phone))
}

// CreateBusinessNumber inserts a number; a taken phone is *domain.ErrDuplicate.
func (s *Store) CreateBusinessNumber(ctx context.Context, b *domain.BusinessNumber) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateBusinessNumber")
	defer span.End()

	status := b.Status
	if status == "" {
		status = domain.NumberPending
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO business_numbers (phone_number, display_name, is_default, company_id, user_id, status)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, NULLIF($5, '')::uuid, $6)
		RETURNING `+businessNumberColumns,
		b.PhoneNumber, b.DisplayName, b.IsDefault, b.CompanyID, b.UserID, status)

	created, err := scanBusinessNumber(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrDuplicate{Key: b.PhoneNumber}
		}
		return nil, fmt.Errorf("postgres: insert business number: %w", err)
	}
	return created, nil
}

// ListBusinessNumbers returns numbers newest first.
func (s *Store) ListBusinessNumbers(ctx context.Context, f domain.BusinessNumberFilter) ([]domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListBusinessNumbers")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT `+businessNumberColumns+`
		FROM business_numbers
		WHERE ($1 = '' OR company_id::text = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, f.CompanyID, f.Status)
	if err != nil {
		return nil, fmt.Errorf("postgres: list business numbers: %w", err)
	}
	defer rows.Close()

	numbers := []domain.BusinessNumber{}
	for rows.Next() {
		b, err := scanBusinessNumber(rows)
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list business numbers: %w", err)
	}
	return numbers, nil
}

// DeleteBusinessNumber removes a number.
func (s *Store) DeleteBusinessNumber(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteBusinessNumber")
	defer span.End()

	if _, err := s.db.Exec(ctx, `DELETE FROM business_numbers WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete business number: %w", err)
	}
	return nil
}

// SetBusinessNumberStatus changes the approval status of a number.
func (s *Store) SetBusinessNumberStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "Postgres.SetBusinessNumberStatus")
	defer span.End()

	if _, err := s.db.Exec(ctx, `UPDATE business_numbers SET status = $2 WHERE id::text = $1`, id, status); err != nil {
		return fmt.Errorf("postgres: set business number status: %w", err)
	}
	return nil
}

// SetDefaultBusinessNumber clears the company's defaults and marks id, in one transaction.
func (s *Store) SetDefaultBusinessNumber(ctx context.Context, companyID, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.SetDefaultBusinessNumber")
	defer span.End()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if companyID != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE business_numbers SET is_default = false WHERE company_id::text = $1 AND is_default`, companyID); err != nil {
			return fmt.Errorf("postgres: clear default: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE business_numbers SET is_default = true WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("postgres: set default: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// GetAPISettings looks up by company first, then by legacy user.
func (s *Store) GetAPISettings(ctx context.Context, companyID, userID string) (*domain.APISettings, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetAPISettings")
	defer span.End()

	var a domain.APISettings
	err := s.db.QueryRow(ctx, `
		SELECT `+apiSettingsColumns+`
		FROM api_settings
		WHERE ($1 <> '' AND company_id::text = $1) OR ($2 <> '' AND user_id::text = $2)
		ORDER BY (company_id::text = $1) DESC NULLS LAST
		LIMIT 1`, companyID, userID).
		Scan(&a.ID, &a.CompanyID, &a.UserID, &a.YCloudAPIKey, &a.WebhookSecret, &a.UpdatedAt)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get api settings: %w", err)
	}
	return &a, nil
}

// UpsertAPISettings inserts or replaces the credential row.
func (s *Store) UpsertAPISettings(ctx context.Context, a *domain.APISettings) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertAPISettings")
	defer span.End()

	conflict := "company_id"
	if a.CompanyID == "" {
		conflict = "user_id"
	}
	query := `
		INSERT INTO api_settings (company_id, user_id, ycloud_api_key, webhook_secret, updated_at)
		VALUES (NULLIF($1, '')::uuid, NULLIF($2, '')::uuid, $3, $4, $5)
		ON CONFLICT (` + conflict + `)
		DO UPDATE SET ycloud_api_key = EXCLUDED.ycloud_api_key,
			webhook_secret = EXCLUDED.webhook_secret,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(ctx, query, a.CompanyID, a.UserID, a.YCloudAPIKey, a.WebhookSecret, a.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: upsert api settings: %w", err)
	}
	return nil
}
