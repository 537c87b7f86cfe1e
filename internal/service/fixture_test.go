package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/boltstore"
	"github.com/boddenberg/whatsapp-console/internal/infra/dedup"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/port"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type fakeIdentity struct {
	users map[string]string // token -> user id
}

func (f *fakeIdentity) ResolveIdentity(_ context.Context, token string) (string, error) {
	id, ok := f.users[token]
	if !ok {
		return "", &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}
	return id, nil
}

type fakeProvider struct {
	mu    sync.Mutex
	calls []*domain.ProviderMessage
	keys  []string
	err   error
}

func (f *fakeProvider) SendMessage(_ context.Context, apiKey string, msg *domain.ProviderMessage) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	f.keys = append(f.keys, apiKey)
	if f.err != nil {
		return nil, f.err
	}
	n := len(f.calls)
	return &domain.SendResult{
		ID:     fmt.Sprintf("ycl-%d", n),
		WAMID:  fmt.Sprintf("wamid.out-%d", n),
		Status: "accepted",
		Raw:    json.RawMessage(fmt.Sprintf(`{"id":"ycl-%d","status":"accepted"}`, n)),
	}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEndpointAPI struct {
	key    string
	id     string
	create *domain.WebhookEndpointRequest
	fields map[string]any
}

func (f *fakeEndpointAPI) ListWebhookEndpoints(_ context.Context, apiKey string) (*port.ProxyResponse, error) {
	f.key = apiKey
	return &port.ProxyResponse{StatusCode: 200, Body: json.RawMessage(`{"items":[]}`)}, nil
}

func (f *fakeEndpointAPI) CreateWebhookEndpoint(_ context.Context, apiKey string, req *domain.WebhookEndpointRequest) (*port.ProxyResponse, error) {
	f.key = apiKey
	f.create = req
	return &port.ProxyResponse{StatusCode: 201, Body: json.RawMessage(`{"id":"we-1"}`)}, nil
}

func (f *fakeEndpointAPI) UpdateWebhookEndpoint(_ context.Context, apiKey, id string, fields map[string]any) (*port.ProxyResponse, error) {
	f.key, f.id, f.fields = apiKey, id, fields
	return &port.ProxyResponse{StatusCode: 200, Body: json.RawMessage(`{"id":"` + id + `"}`)}, nil
}

func (f *fakeEndpointAPI) DeleteWebhookEndpoint(_ context.Context, apiKey, id string) (*port.ProxyResponse, error) {
	f.key, f.id = apiKey, id
	return &port.ProxyResponse{StatusCode: 200, Body: json.RawMessage(`{"success":true}`)}, nil
}

// --- Fixture ---

const (
	tokenRoot     = "tok-root"
	tokenAdmin    = "tok-admin"
	tokenWorker   = "tok-worker"
	tokenOther    = "tok-other"
	tokenOtherAdm = "tok-other-admin"
	tokenInactive = "tok-inactive"

	businessA = "+18005550000" // co-a, default
	businessB = "+18005559999" // co-b
	customer  = "+15550001"
)

type fixture struct {
	store    *boltstore.Store
	provider *fakeProvider
	metrics  *observability.Metrics
	now      time.Time

	gate          *service.Gate
	conversations *service.ConversationService
	messages      *service.MessageService
	dispatcher    *service.Dispatcher
	router        *service.WebhookRouter
	admin         *service.AdminService
	quickReplies  *service.QuickReplyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := boltstore.Open(filepath.Join(t.TempDir(), "console.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	seed(t, store)

	f := &fixture{
		store:    store,
		provider: &fakeProvider{},
		metrics:  observability.NewMetrics(),
		now:      time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	logger := zap.NewNop()

	identity := &fakeIdentity{users: map[string]string{
		tokenRoot:     "u-root",
		tokenAdmin:    "u-admin",
		tokenWorker:   "u-worker",
		tokenOther:    "u-other",
		tokenOtherAdm: "u-other-admin",
		tokenInactive: "u-inactive",
	}}

	f.gate = service.NewGate(identity, store, logger)
	f.conversations = service.NewConversationService(store, store, store, f.gate, clock, f.metrics, logger)
	f.messages = service.NewMessageService(store, f.metrics, logger)
	f.dispatcher = service.NewDispatcher(store, f.gate, f.conversations, f.messages, f.provider,
		service.DispatcherOptions{EnforceWindow: true, Now: clock}, f.metrics, logger)
	tracker := dedup.NewMemoryTracker(time.Hour)
	t.Cleanup(func() { tracker.Close() })
	f.router = service.NewWebhookRouter(f.conversations, f.messages, store, tracker, clock, f.metrics, logger)
	f.admin = service.NewAdminService(f.gate, store, clock, logger)
	f.quickReplies = service.NewQuickReplyService(f.gate, store, logger)
	return f
}

func seed(t *testing.T, s *boltstore.Store) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	must(s.PutCompany(&domain.Company{ID: "co-a", Name: "Acme"}))
	must(s.PutCompany(&domain.Company{ID: "co-b", Name: "Globex"}))

	must(s.PutUserProfile(&domain.UserProfile{ID: "u-root", Role: domain.RoleSuperadmin}))
	must(s.PutUserProfile(&domain.UserProfile{ID: "u-admin", Role: domain.RoleAdmin, CompanyID: "co-a"}))
	must(s.PutUserProfile(&domain.UserProfile{ID: "u-worker", Role: domain.RoleWorker, CompanyID: "co-a"}))
	must(s.PutUserProfile(&domain.UserProfile{ID: "u-other", Role: domain.RoleWorker, CompanyID: "co-b"}))
	must(s.PutUserProfile(&domain.UserProfile{ID: "u-other-admin", Role: domain.RoleAdmin, CompanyID: "co-b"}))
	must(s.PutUserProfile(&domain.UserProfile{ID: "u-inactive", Role: domain.RoleWorker, CompanyID: "co-a", Status: domain.UserInactive}))

	must(s.PutBusinessNumber(&domain.BusinessNumber{ID: "bn-a", PhoneNumber: businessA, CompanyID: "co-a", Status: domain.NumberActive, IsDefault: true}))
	must(s.PutBusinessNumber(&domain.BusinessNumber{ID: "bn-a2", PhoneNumber: "+18005550001", CompanyID: "co-a", Status: domain.NumberActive}))
	must(s.PutBusinessNumber(&domain.BusinessNumber{ID: "bn-pending", PhoneNumber: "+18005550002", CompanyID: "co-a", Status: domain.NumberPending}))
	must(s.PutBusinessNumber(&domain.BusinessNumber{ID: "bn-b", PhoneNumber: businessB, CompanyID: "co-b", Status: domain.NumberActive}))

	must(s.UpsertAPISettings(context.Background(), &domain.APISettings{CompanyID: "co-a", YCloudAPIKey: "key-co-a"}))
}

func event(t *testing.T, raw string) *domain.WebhookEvent {
	t.Helper()
	var evt domain.WebhookEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return &evt
}

func inboundText(id, wamid, text string, at time.Time) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "whatsapp.inbound_message.received",
		"whatsappInboundMessage": {
			"id": "in-%s",
			"wamid": %q,
			"from": %q,
			"to": %q,
			"type": "text",
			"sendTime": %q,
			"text": {"body": %q},
			"customerProfile": {"name": "Ana"}
		}
	}`, id, id, wamid, customer, businessA, at.Format(time.RFC3339), text)
}

func sendRequest(action domain.SendAction, data string) *domain.SendRequest {
	return &domain.SendRequest{Action: action, From: businessA, To: customer, Data: json.RawMessage(data)}
}

func resolveFor(customerNumber, businessNumber, tenantID string) service.ResolveInput {
	return service.ResolveInput{
		CustomerNumber: customerNumber,
		BusinessNumber: businessNumber,
		TenantID:       tenantID,
		Preview:        "Hi",
		Direction:      domain.Inbound,
	}
}
