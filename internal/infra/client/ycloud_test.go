package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/client"
	"github.com/boddenberg/whatsapp-console/internal/infra/resilience"

	"go.uber.org/zap"
)

func newYCloud(t *testing.T, h http.HandlerFunc) *client.YCloudClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cb := resilience.NewCircuitBreaker("ycloud-test", client.IsProviderRejection)
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}
	return client.NewYCloudClient(srv.Client(), srv.URL, cb, resilience.NewBulkhead(2), cfg, time.Second, zap.NewNop())
}

func TestSendMessage_Success(t *testing.T) {
	c := newYCloud(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/whatsapp/messages/sendDirectly" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "key-1" {
			t.Errorf("expected api key header, got %q", r.Header.Get("X-API-Key"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["type"] != "text" || body["to"] != "+15550001" {
			t.Errorf("unexpected payload %v", body)
		}
		w.Write([]byte(`{"id":"yc-1","wamid":"wamid.ABC","status":"accepted"}`))
	})

	res, err := c.SendMessage(context.Background(), "key-1", &domain.ProviderMessage{
		From: "+18005550000", To: "+15550001", Type: "text",
		Text: &domain.ProviderText{Body: "Hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProviderID() != "wamid.ABC" {
		t.Errorf("expected wamid, got %q", res.ProviderID())
	}
	if len(res.Raw) == 0 {
		t.Error("expected raw provider response")
	}
}

func TestSendMessage_RejectedIsNotRetried(t *testing.T) {
	var calls int32
	c := newYCloud(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"INVALID","message":"Recipient is not a valid WhatsApp user"}}`))
	})

	_, err := c.SendMessage(context.Background(), "key-1", &domain.ProviderMessage{Type: "text"})

	var dispatch *domain.ErrDispatchFailed
	if !errors.As(err, &dispatch) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	if dispatch.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", dispatch.StatusCode)
	}
	if dispatch.Error() != "Recipient is not a valid WhatsApp user" {
		t.Errorf("expected provider message, got %q", dispatch.Error())
	}
	if calls != 1 {
		t.Errorf("sends must not be retried, got %d calls", calls)
	}
}

func TestSendMessage_ServerErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := newYCloud(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"upstream"}`))
	})

	_, err := c.SendMessage(context.Background(), "key-1", &domain.ProviderMessage{Type: "text"})

	var dispatch *domain.ErrDispatchFailed
	if !errors.As(err, &dispatch) || dispatch.Error() != "upstream" {
		t.Fatalf("expected ErrDispatchFailed with provider message, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestSendMessage_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker("ycloud-timeout", client.IsProviderRejection)
	c := client.NewYCloudClient(srv.Client(), srv.URL, cb, resilience.NewBulkhead(1), resilience.Config{}, 20*time.Millisecond, zap.NewNop())

	_, err := c.SendMessage(context.Background(), "key-1", &domain.ProviderMessage{Type: "text"})

	var dispatch *domain.ErrDispatchFailed
	if !errors.As(err, &dispatch) {
		t.Fatalf("expected ErrDispatchFailed on timeout, got %v", err)
	}
}

func TestWebhookEndpoints_Proxy(t *testing.T) {
	var listCalls int32
	c := newYCloud(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/webhookEndpoints":
			if atomic.AddInt32(&listCalls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"items":[{"id":"we-1"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/webhookEndpoints":
			body, _ := io.ReadAll(r.Body)
			var req domain.WebhookEndpointRequest
			json.Unmarshal(body, &req)
			if req.URL != "https://example.com/hook" {
				t.Errorf("unexpected create body %s", body)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"we-2"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/webhookEndpoints/we-2":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":{"message":"bad url"}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/webhookEndpoints/we-2":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	list, err := c.ListWebhookEndpoints(ctx, "key-1")
	if err != nil || list.StatusCode != http.StatusOK {
		t.Fatalf("expected list to succeed after retry, got %+v %v", list, err)
	}
	if listCalls != 2 {
		t.Errorf("expected list to be retried once, got %d calls", listCalls)
	}

	created, err := c.CreateWebhookEndpoint(ctx, "key-1", &domain.WebhookEndpointRequest{URL: "https://example.com/hook"})
	if err != nil || created.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create result %+v %v", created, err)
	}

	updated, err := c.UpdateWebhookEndpoint(ctx, "key-1", "we-2", map[string]any{"url": "nope"})
	if err != nil {
		t.Fatalf("provider rejections are relayed, got error %v", err)
	}
	if updated.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 relayed, got %d", updated.StatusCode)
	}

	deleted, err := c.DeleteWebhookEndpoint(ctx, "key-1", "we-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(deleted.Body) != `{"success":true}` {
		t.Errorf("expected success body, got %s", deleted.Body)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"whatsapp.inbound_message.received"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := now.Unix()
	valid := "t=" + strconv.FormatInt(ts, 10) + ",s=" + client.Sign("secret", ts, body)

	tests := []struct {
		name    string
		header  string
		body    []byte
		now     time.Time
		wantErr error
	}{
		{"valid", valid, body, now, nil},
		{"missing", "", body, now, client.ErrSignatureMissing},
		{"malformed", "t=abc,s=00", body, now, client.ErrSignatureMalformed},
		{"no signature", "t=1700000000", body, now, client.ErrSignatureMalformed},
		{"tampered body", valid, []byte(`{"id":"evt_2"}`), now, client.ErrSignatureMismatch},
		{"stale", valid, body, now.Add(10 * time.Minute), client.ErrSignatureExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.VerifySignature("secret", tt.header, tt.body, tt.now, client.DefaultSignatureSkew)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
