package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
)

func TestConversationService_ListIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	openWindow(t, f, time.Hour)
	if _, err := f.conversations.Resolve(ctx, resolveFor("+15550002", businessB, "co-b")); err != nil {
		t.Fatal(err)
	}

	own, err := f.conversations.List(ctx, tokenWorker, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].CompanyID != "co-a" {
		t.Errorf("worker must only see co-a, got %+v", own)
	}

	all, err := f.conversations.List(ctx, tokenRoot, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("superadmin must see every tenant, got %d", len(all))
	}

	filtered, _ := f.conversations.List(ctx, tokenRoot, businessB)
	if len(filtered) != 1 || filtered[0].FromNumber != businessB {
		t.Errorf("expected business number filter, got %+v", filtered)
	}

	if _, err := f.conversations.List(ctx, "", ""); err == nil {
		t.Error("expected unauthorized without token")
	}
}

func TestConversationService_Thread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := openWindow(t, f, 2*time.Hour)

	thread, err := f.conversations.Thread(ctx, tokenWorker, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if thread.Conversation.ID != conv.ID || len(thread.Messages) != 1 {
		t.Errorf("unexpected thread %+v", thread)
	}
	if !thread.Window.Open || thread.Window.HoursUntilClose != 22 {
		t.Errorf("unexpected window %+v", thread.Window)
	}

	_, err = f.conversations.Thread(ctx, tokenOther, conv.ID)
	var denied *domain.ErrPermissionDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected ErrPermissionDenied for another tenant, got %v", err)
	}

	_, err = f.conversations.Thread(ctx, tokenWorker, "missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConversationService_ThreadShowsNewestPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.conversations.Resolve(ctx, resolveFor(customer, businessA, "co-a"))
	if err != nil {
		t.Fatal(err)
	}
	start := f.now.Add(-72 * time.Hour)
	for i := 0; i < 520; i++ {
		_, err := f.store.InsertMessage(ctx, &domain.Message{
			ConversationID: conv.ID,
			MessageID:      fmt.Sprintf("wamid.old-%03d", i),
			Direction:      domain.Outbound,
			Type:           domain.TypeText,
			Content:        domain.TextContent{Text: "old"},
			Status:         domain.StatusSent,
			Timestamp:      start.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.router.Route(ctx, event(t, inboundText("evt-new", "wamid.new", "Still there?", f.now.Add(-time.Hour)))); err != nil {
		t.Fatal(err)
	}

	thread, err := f.conversations.Thread(ctx, tokenWorker, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(thread.Messages) != 500 {
		t.Fatalf("expected a page of 500, got %d", len(thread.Messages))
	}
	if last := thread.Messages[len(thread.Messages)-1]; last.MessageID != "wamid.new" {
		t.Errorf("expected the newest message last, got %s", last.MessageID)
	}
	if first := thread.Messages[0]; first.MessageID != "wamid.old-021" {
		t.Errorf("expected the oldest messages to fall off the page, got %s", first.MessageID)
	}
	if !thread.Window.Open || thread.Window.HoursUntilClose != 23 {
		t.Errorf("expected an open window from the recent inbound message, got %+v", thread.Window)
	}
}

func TestConversationService_ThreadWindowBeyondPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := openWindow(t, f, 2*time.Hour)

	// Enough later outbound messages to push the inbound one off the page.
	for i := 0; i < 505; i++ {
		_, err := f.store.InsertMessage(ctx, &domain.Message{
			ConversationID: conv.ID,
			MessageID:      fmt.Sprintf("wamid.reply-%03d", i),
			Direction:      domain.Outbound,
			Type:           domain.TypeText,
			Content:        domain.TextContent{Text: "reply"},
			Status:         domain.StatusSent,
			Timestamp:      f.now.Add(-time.Hour).Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	thread, err := f.conversations.Thread(ctx, tokenWorker, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range thread.Messages {
		if m.Direction == domain.Inbound {
			t.Fatal("the inbound message should be outside the page")
		}
	}
	if !thread.Window.Open || thread.Window.HoursUntilClose != 22 {
		t.Errorf("window must follow the latest inbound message, got %+v", thread.Window)
	}
}

func TestConversationService_LegacyRowAttributedByNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.conversations.Resolve(ctx, resolveFor(customer, businessA, ""))
	if err != nil {
		t.Fatal(err)
	}
	if conv.CompanyID != "" {
		t.Fatalf("expected legacy row without company, got %q", conv.CompanyID)
	}

	if _, err := f.conversations.Thread(ctx, tokenWorker, conv.ID); err != nil {
		t.Errorf("owner of the business number must read the legacy row: %v", err)
	}
	if _, err := f.conversations.Thread(ctx, tokenOther, conv.ID); err == nil {
		t.Error("other tenants must not read the legacy row")
	}
}

func TestConversationService_MarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := openWindow(t, f, time.Hour)

	if err := f.conversations.MarkRead(ctx, tokenOther, conv.ID); err == nil {
		t.Fatal("other tenants must not mark the conversation read")
	}
	if err := f.conversations.MarkRead(ctx, tokenWorker, conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, _ := f.store.GetConversation(ctx, conv.ID)
	if after.UnreadCount != 0 {
		t.Errorf("expected unread reset, got %d", after.UnreadCount)
	}
}

func TestConversationService_ResolveRequiresCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.conversations.Resolve(context.Background(), resolveFor("", businessA, "co-a"))
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
