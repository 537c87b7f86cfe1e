package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/boddenberg/whatsapp-console/internal/handler"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

type fakeIngester struct {
	signature string
	body      []byte
	calls     int
}

func (f *fakeIngester) Ingest(_ context.Context, signature string, body []byte) handler.WebhookAck {
	f.calls++
	f.signature = signature
	f.body = body
	return handler.WebhookAck{Success: true, Message: "Webhook processed"}
}

func request(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"ycloud-signature": "t=1,s=ab"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: method, Path: path},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	in := &fakeIngester{}

	resp, err := handle(context.Background(), in, request(http.MethodGet, "/health", ""), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if in.calls != 0 {
		t.Fatal("health must not reach the ingress")
	}
}

func TestHandleRejectsNonPost(t *testing.T) {
	resp, _ := handle(context.Background(), &fakeIngester{}, request(http.MethodGet, "/webhook", ""), zap.NewNop())
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHandleForwardsBodyAndSignature(t *testing.T) {
	in := &fakeIngester{}
	evt := request(http.MethodPost, "/webhook", base64.StdEncoding.EncodeToString([]byte(`{"id":"evt_1"}`)))
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), in, evt, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Body, `"success":true`) {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Body)
	}
	if string(in.body) != `{"id":"evt_1"}` {
		t.Errorf("expected decoded body, got %s", in.body)
	}
	if in.signature != "t=1,s=ab" {
		t.Errorf("expected signature header, got %q", in.signature)
	}
}

func TestHandleBadBase64StillAcknowledges(t *testing.T) {
	in := &fakeIngester{}
	evt := request(http.MethodPost, "/webhook", "%%%")
	evt.IsBase64Encoded = true

	resp, _ := handle(context.Background(), in, evt, zap.NewNop())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if in.calls != 0 {
		t.Fatal("undecodable bodies must not be routed")
	}
}
