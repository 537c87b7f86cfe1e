package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/boddenberg/whatsapp-console/internal/app"
	"github.com/boddenberg/whatsapp-console/internal/config"
	"github.com/boddenberg/whatsapp-console/internal/handler"
	"github.com/boddenberg/whatsapp-console/internal/infra/client"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

type ingester interface {
	Ingest(ctx context.Context, signature string, body []byte) handler.WebhookAck
}

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	console, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to build console", zap.Error(err))
	}
	defer console.Close()

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, console.Ingress, evt, logger)
	})
}

func handle(ctx context.Context, in ingester, evt events.APIGatewayV2HTTPRequest, logger *zap.Logger) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"}), nil
	}
	if method == http.MethodOptions {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		// Still 200: the provider retries anything else.
		logger.Warn("webhook: undecodable body", zap.Error(err))
		return jsonResponse(http.StatusOK, handler.WebhookAck{Success: true, Message: "Webhook received"}), nil
	}

	ack := in.Ingest(ctx, headerValue(evt.Headers, client.SignatureHeader), body)
	return jsonResponse(http.StatusOK, ack), nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

// headerValue looks a header up case-insensitively; API Gateway lower-cases names.
func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, v any) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"content-type": "application/json"},
	}
}
