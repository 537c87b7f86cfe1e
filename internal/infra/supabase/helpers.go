package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE and RPC
// ============================================================

func (c *Client) doPost(ctx context.Context, table string, data any, prefer string) ([]byte, error) {
	return c.send(ctx, http.MethodPost, table, data, prefer)
}

// doRPC calls a Postgres function exposed by PostgREST.
func (c *Client) doRPC(ctx context.Context, fn string, args map[string]any) ([]byte, error) {
	return c.send(ctx, http.MethodPost, "rpc/"+fn, args, "")
}

// doPatch updates the rows matched by path. With returnRows the matched rows
// come back in the body.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any, returnRows bool) ([]byte, error) {
	prefer := "return=minimal"
	if returnRows {
		prefer = "return=representation"
	}
	return c.send(ctx, http.MethodPatch, path, data, prefer)
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.send(ctx, http.MethodDelete, path, nil, "")
	return err
}

func (c *Client) send(ctx context.Context, method, path string, data any, prefer string) ([]byte, error) {
	u := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var reader *bytes.Reader
	if data != nil {
		jsonBody, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, newAPIError(resp.StatusCode, body)
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

func newAPIError(status int, body []byte) *APIError {
	var pg struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &pg)
	return &APIError{StatusCode: status, Code: pg.Code, Body: string(body)}
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// eq builds a PostgREST equality filter with the value escaped.
func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

// decodeFirst decodes the first row of a PostgREST array answer into v.
// It reports false when there is no row.
func decodeFirst(body []byte, v any) (bool, error) {
	if len(body) == 0 {
		return false, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return false, fmt.Errorf("decode rows: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(rows[0], v); err != nil {
		return false, fmt.Errorf("decode row: %w", err)
	}
	return true, nil
}
