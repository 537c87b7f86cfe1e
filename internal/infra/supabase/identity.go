package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.uber.org/zap"
)

// ResolveIdentity asks Supabase Auth who owns an access token.
func (c *Client) ResolveIdentity(ctx context.Context, token string) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ResolveIdentity")
	defer span.End()

	var userID string
	err := c.read(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
		if err != nil {
			return err
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := readBody(resp)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &domain.ErrUnauthorized{Message: "invalid or expired token"}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newAPIError(resp.StatusCode, body)
		}

		var user struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &user); err != nil {
			return fmt.Errorf("decode auth user: %w", err)
		}
		if user.ID == "" {
			return &domain.ErrUnauthorized{Message: "token has no user"}
		}
		userID = user.ID
		return nil
	})
	if err != nil {
		c.logger.Debug("supabase: identity lookup failed", zap.Error(err))
		return "", err
	}
	return userID, nil
}
