package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/resilience"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// upstreamError marks a 5xx answer so that the breaker and the retry loop see
// a failure while the caller still gets the response relayed.
type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("ycloud returned status %d", e.status)
}

// ListWebhookEndpoints lists the endpoints of the account. Lists are retried.
func (c *YCloudClient) ListWebhookEndpoints(ctx context.Context, apiKey string) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "YCloudClient.ListWebhookEndpoints")
	defer span.End()

	return c.proxy(ctx, http.MethodGet, "/webhookEndpoints", apiKey, nil, true)
}

// CreateWebhookEndpoint registers a new endpoint.
func (c *YCloudClient) CreateWebhookEndpoint(ctx context.Context, apiKey string, req *domain.WebhookEndpointRequest) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "YCloudClient.CreateWebhookEndpoint")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.url", req.URL))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return c.proxy(ctx, http.MethodPost, "/webhookEndpoints", apiKey, body, false)
}

// UpdateWebhookEndpoint patches the given fields of endpoint id.
func (c *YCloudClient) UpdateWebhookEndpoint(ctx context.Context, apiKey, id string, fields map[string]any) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "YCloudClient.UpdateWebhookEndpoint")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.id", id))

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return c.proxy(ctx, http.MethodPatch, "/webhookEndpoints/"+url.PathEscape(id), apiKey, body, false)
}

// DeleteWebhookEndpoint removes endpoint id. A 204 is relayed as {"success":true}.
func (c *YCloudClient) DeleteWebhookEndpoint(ctx context.Context, apiKey, id string) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "YCloudClient.DeleteWebhookEndpoint")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.id", id))

	resp, err := c.proxy(ctx, http.MethodDelete, "/webhookEndpoints/"+url.PathEscape(id), apiKey, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body = json.RawMessage(`{"success":true}`)
	}
	return resp, nil
}

// proxy runs one webhook-endpoint call inside the breaker. Any answer the
// provider gave, 4xx and 5xx included, is returned for the caller to relay.
func (c *YCloudClient) proxy(ctx context.Context, method, path, apiKey string, body []byte, retry bool) (*port.ProxyResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var out *port.ProxyResponse
	attempt := func() error {
		status, data, err := c.do(ctx, method, path, apiKey, body)
		if err != nil {
			return err
		}
		out = &port.ProxyResponse{StatusCode: status, Body: relayBody(data)}
		if status >= 500 {
			return &upstreamError{status: status}
		}
		return nil
	}

	_, err := c.cb.Execute(func() (any, error) {
		if !retry {
			return nil, attempt()
		}
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, attempt)
	})
	if err == nil {
		return out, nil
	}

	if resilience.IsOpen(err) {
		return nil, &domain.ErrCircuitOpen{Service: "ycloud"}
	}
	var upstream *upstreamError
	if errors.As(err, &upstream) && out != nil {
		c.logger.Warn("ycloud webhook endpoint call failed upstream",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", out.StatusCode),
		)
		return out, nil
	}
	return nil, &domain.ErrDispatchFailed{Message: "webhook endpoint request failed", Err: err}
}

// relayBody keeps valid JSON as-is and wraps anything else.
func relayBody(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	wrapped, _ := json.Marshal(map[string]string{"error": string(data)})
	return wrapped
}
