// Package client holds the HTTP clients of external services. YCloudClient
// talks to the YCloud WhatsApp API: message sends and webhook endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// DefaultYCloudURL is the base URL of the YCloud v2 API.
const DefaultYCloudURL = "https://api.ycloud.com/v2"

// YCloudClient implements port.MessageProvider and port.WebhookEndpointAPI.
type YCloudClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	timeout    time.Duration
	logger     *zap.Logger
}

// NewYCloudClient creates a YCloud client. timeout bounds every provider call.
func NewYCloudClient(
	httpClient *http.Client,
	baseURL string,
	cb *gobreaker.CircuitBreaker,
	bulkhead *resilience.Bulkhead,
	cfg resilience.Config,
	timeout time.Duration,
	logger *zap.Logger,
) *YCloudClient {
	if baseURL == "" {
		baseURL = DefaultYCloudURL
	}
	return &YCloudClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		bulkhead:   bulkhead,
		cfg:        cfg,
		timeout:    timeout,
		logger:     logger,
	}
}

// IsProviderRejection reports a 4xx answer from YCloud. Rejections are the
// caller's fault and must not trip the breaker.
func IsProviderRejection(err error) bool {
	var dispatch *domain.ErrDispatchFailed
	return errors.As(err, &dispatch) && dispatch.StatusCode >= 400 && dispatch.StatusCode < 500
}

// SendMessage posts msg to /whatsapp/messages/sendDirectly. Sends are never
// retried: a retry after a timeout could deliver the message twice.
func (c *YCloudClient) SendMessage(ctx context.Context, apiKey string, msg *domain.ProviderMessage) (*domain.SendResult, error) {
	ctx, span := tracer.Start(ctx, "YCloudClient.SendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.type", msg.Type),
		attribute.String("message.from", msg.From),
	)

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrDispatchFailed{Err: err}
	}
	defer c.bulkhead.Release()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, &domain.ErrDispatchFailed{Err: err}
	}

	result, err := c.cb.Execute(func() (any, error) {
		status, body, err := c.do(ctx, http.MethodPost, "/whatsapp/messages/sendDirectly", apiKey, payload)
		if err != nil {
			return nil, &domain.ErrDispatchFailed{Err: err}
		}
		if status < 200 || status >= 300 {
			return nil, &domain.ErrDispatchFailed{StatusCode: status, Message: providerErrorMessage(body)}
		}

		var res domain.SendResult
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, &domain.ErrDispatchFailed{StatusCode: status, Err: fmt.Errorf("decoding send response: %w", err)}
		}
		res.Raw = json.RawMessage(body)
		return &res, nil
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return nil, &domain.ErrCircuitOpen{Service: "ycloud"}
		}
		c.logger.Warn("ycloud send failed", zap.String("type", msg.Type), zap.Error(err))
		return nil, err
	}

	res := result.(*domain.SendResult)
	span.SetAttributes(attribute.String("message.provider_id", res.ProviderID()))
	return res, nil
}

// do performs one request and returns the status and body.
func (c *YCloudClient) do(ctx context.Context, method, path, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// providerErrorMessage extracts the error text of a YCloud error body, which
// is {"error":{"message":...}}, {"error":"..."} or {"message":...}.
func providerErrorMessage(body []byte) string {
	var e struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return "Failed to send message"
	}

	var nested struct {
		Message string `json:"message"`
	}
	var plain string
	switch {
	case json.Unmarshal(e.Error, &nested) == nil && nested.Message != "":
		return nested.Message
	case json.Unmarshal(e.Error, &plain) == nil && plain != "":
		return plain
	case e.Message != "":
		return e.Message
	}
	return "Failed to send message"
}
