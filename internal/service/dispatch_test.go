package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/service"
)

// openWindow delivers one inbound message at the fixture's clock.
func openWindow(t *testing.T, f *fixture, ago time.Duration) *domain.Conversation {
	t.Helper()
	ctx := context.Background()
	if _, err := f.router.Route(ctx, event(t, inboundText("evt-open", "wamid.in-open", "Hi", f.now.Add(-ago)))); err != nil {
		t.Fatalf("route inbound: %v", err)
	}
	conv, err := f.store.FindConversation(ctx, customer, businessA)
	if err != nil || conv == nil {
		t.Fatalf("expected conversation, got %v %v", conv, err)
	}
	return conv
}

func TestDispatcher_SendText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := openWindow(t, f, time.Hour)

	resp, err := f.dispatcher.Send(ctx, tokenWorker, sendRequest(domain.ActionSendText, `{"text":"Hello there","preview_url":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Message == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Message.MessageID != "wamid.out-1" {
		t.Errorf("expected provider wamid, got %q", resp.Message.MessageID)
	}
	if resp.Message.ConversationID != conv.ID {
		t.Errorf("expected existing conversation %s, got %s", conv.ID, resp.Message.ConversationID)
	}
	if resp.Message.Status != domain.StatusSent || resp.Message.Direction != domain.Outbound {
		t.Errorf("unexpected message %+v", resp.Message)
	}
	if len(resp.ProviderResponse) == 0 {
		t.Error("expected provider response to be relayed")
	}

	if f.provider.keys[0] != "key-co-a" {
		t.Errorf("expected tenant api key, got %q", f.provider.keys[0])
	}
	sent := f.provider.calls[0]
	if sent.Type != "text" || sent.Text == nil || sent.Text.Body != "Hello there" || !sent.Text.PreviewURL {
		t.Errorf("unexpected provider payload %+v", sent)
	}

	after, _ := f.store.GetConversation(ctx, conv.ID)
	if after.LastMessage != "Hello there" {
		t.Errorf("expected preview bump, got %q", after.LastMessage)
	}
	if after.UnreadCount != 1 {
		t.Errorf("outbound must not change unread_count, got %d", after.UnreadCount)
	}

	stored, _ := f.store.GetMessageByProviderID(ctx, "wamid.out-1")
	if stored == nil {
		t.Fatal("expected sent message to be stored")
	}
	if c, ok := stored.Content.(domain.TextContent); !ok || c.Text != "Hello there" {
		t.Errorf("unexpected stored content %#v", stored.Content)
	}
}

func TestDispatcher_WindowClosed(t *testing.T) {
	t.Run("no conversation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.dispatcher.Send(context.Background(), tokenWorker, sendRequest(domain.ActionSendText, `{"text":"Hi"}`))

		var closed *domain.ErrWindowClosed
		if !errors.As(err, &closed) {
			t.Fatalf("expected ErrWindowClosed, got %v", err)
		}
		if f.provider.callCount() != 0 {
			t.Error("provider must not be called")
		}
	})

	t.Run("last inbound older than 24h", func(t *testing.T) {
		f := newFixture(t)
		openWindow(t, f, 25*time.Hour)

		_, err := f.dispatcher.Send(context.Background(), tokenWorker, sendRequest(domain.ActionSendMedia, `{"type":"image","link":"https://x/y.png"}`))
		var closed *domain.ErrWindowClosed
		if !errors.As(err, &closed) {
			t.Fatalf("expected ErrWindowClosed, got %v", err)
		}
		if closed.LastInbound == nil {
			t.Error("expected last inbound time")
		}
	})

	t.Run("templates are always allowed", func(t *testing.T) {
		f := newFixture(t)
		resp, err := f.dispatcher.Send(context.Background(), tokenWorker, sendRequest(domain.ActionSendTemplate, `{"name":"welcome"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Message.Type != domain.TypeTemplate {
			t.Errorf("expected template message, got %q", resp.Message.Type)
		}

		conv, _ := f.store.FindConversation(context.Background(), customer, businessA)
		if conv == nil {
			t.Fatal("template send must create the conversation")
		}
		if conv.CompanyID != "co-a" || conv.LastMessage != "Template message" || conv.UnreadCount != 0 {
			t.Errorf("unexpected conversation %+v", conv)
		}
	})
}

func TestDispatcher_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("locked subscription", func(t *testing.T) {
		f := newFixture(t)
		openWindow(t, f, time.Hour)
		_ = f.store.SetCompanyStatus(ctx, "co-a", domain.SubscriptionLocked)

		_, err := f.dispatcher.Send(ctx, tokenWorker, sendRequest(domain.ActionSendText, `{"text":"Hi"}`))
		var locked *domain.ErrSubscriptionLocked
		if !errors.As(err, &locked) {
			t.Fatalf("expected ErrSubscriptionLocked, got %v", err)
		}
		if f.provider.callCount() != 0 {
			t.Error("provider must not be called")
		}
	})

	t.Run("foreign business number", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.dispatcher.Send(ctx, tokenOther, sendRequest(domain.ActionSendTemplate, `{"name":"welcome"}`))
		var denied *domain.ErrPermissionDenied
		if !errors.As(err, &denied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
		if f.provider.callCount() != 0 {
			t.Error("provider must not be called for another tenant's number")
		}
		if conv, _ := f.store.FindConversation(ctx, customer, businessA); conv != nil {
			t.Errorf("nothing may be stored, found %+v", conv)
		}
		if all, _ := f.store.ListConversations(ctx, domain.ConversationFilter{}); len(all) != 0 {
			t.Errorf("expected no conversations, got %d", len(all))
		}
	})

	t.Run("unknown business number", func(t *testing.T) {
		f := newFixture(t)
		req := sendRequest(domain.ActionSendTemplate, `{"name":"welcome"}`)
		req.From = "+10000000000"
		_, err := f.dispatcher.Send(ctx, tokenWorker, req)
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing api settings", func(t *testing.T) {
		f := newFixture(t)
		req := sendRequest(domain.ActionSendTemplate, `{"name":"welcome"}`)
		req.From = businessB
		_, err := f.dispatcher.Send(ctx, tokenOther, req)
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) || notFound.Resource != "api settings" {
			t.Fatalf("expected api settings not found, got %v", err)
		}
	})

	t.Run("provider failure stores nothing", func(t *testing.T) {
		f := newFixture(t)
		f.provider.err = &domain.ErrDispatchFailed{StatusCode: 400, Message: "Invalid recipient"}

		_, err := f.dispatcher.Send(ctx, tokenWorker, sendRequest(domain.ActionSendTemplate, `{"name":"welcome"}`))
		var failed *domain.ErrDispatchFailed
		if !errors.As(err, &failed) || failed.Message != "Invalid recipient" {
			t.Fatalf("expected provider message, got %v", err)
		}
		conv, _ := f.store.FindConversation(ctx, customer, businessA)
		if conv != nil {
			t.Error("a failed send must not create a conversation")
		}
	})

	t.Run("unknown provider error is wrapped", func(t *testing.T) {
		f := newFixture(t)
		f.provider.err = errors.New("connection reset")

		_, err := f.dispatcher.Send(ctx, tokenWorker, sendRequest(domain.ActionSendTemplate, `{"name":"welcome"}`))
		var failed *domain.ErrDispatchFailed
		if !errors.As(err, &failed) {
			t.Fatalf("expected ErrDispatchFailed, got %v", err)
		}
	})
}

func TestDispatcher_Reaction(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid reference", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.dispatcher.Send(ctx, tokenWorker, sendRequest(domain.ActionSendReaction, `{"message_id":"abc","emoji":"👍"}`))
		var invalid *domain.ErrInvalidReference
		if !errors.As(err, &invalid) {
			t.Fatalf("expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("requires an existing conversation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.dispatcher.Send(ctx, tokenWorker, sendRequest(domain.ActionSendReaction, `{"message_id":"wamid.x","emoji":"👍"}`))
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("does not move the conversation", func(t *testing.T) {
		f := newFixture(t)
		conv := openWindow(t, f, time.Hour)

		resp, err := f.dispatcher.Send(ctx, tokenWorker, sendRequest(domain.ActionSendReaction, `{"message_id":"wamid.in-open","emoji":"👍"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Message.ReplyToMessageID != "wamid.in-open" {
			t.Errorf("expected reply reference, got %q", resp.Message.ReplyToMessageID)
		}

		after, _ := f.store.GetConversation(ctx, conv.ID)
		if after.LastMessage != conv.LastMessage || !after.LastMessageTime.Equal(conv.LastMessageTime) {
			t.Errorf("reaction moved the conversation: %+v", after)
		}
	})
}

func TestBuildProviderMessage(t *testing.T) {
	t.Run("template defaults", func(t *testing.T) {
		msg, err := service.BuildProviderMessage(sendRequest(domain.ActionSendTemplate, `{"name":"welcome"}`))
		if err != nil {
			t.Fatal(err)
		}
		if msg.Template.Language.Code != "en" || string(msg.Template.Components) != "[]" {
			t.Errorf("unexpected template %+v", msg.Template)
		}
	})

	t.Run("audio drops caption", func(t *testing.T) {
		msg, err := service.BuildProviderMessage(sendRequest(domain.ActionSendMedia, `{"type":"audio","link":"https://x/a.ogg","caption":"ignored"}`))
		if err != nil {
			t.Fatal(err)
		}
		if msg.Audio == nil || msg.Audio.Caption != "" || msg.Type != "audio" {
			t.Errorf("unexpected audio %+v", msg.Audio)
		}
	})

	t.Run("interactive", func(t *testing.T) {
		msg, err := service.BuildProviderMessage(sendRequest(domain.ActionSendInteractive,
			`{"interactive_type":"button","body_text":"Pick","footer":"Thanks","action":{"buttons":[]}}`))
		if err != nil {
			t.Fatal(err)
		}
		if msg.Interactive.Body.Text != "Pick" || msg.Interactive.Footer.Text != "Thanks" || msg.Interactive.Header != nil {
			t.Errorf("unexpected interactive %+v", msg.Interactive)
		}
	})

	t.Run("location", func(t *testing.T) {
		msg, err := service.BuildProviderMessage(sendRequest(domain.ActionSendLocation, `{"latitude":-23.5,"longitude":-46.6,"name":"Office"}`))
		if err != nil {
			t.Fatal(err)
		}
		if msg.Location.Latitude != -23.5 || msg.Location.Name != "Office" {
			t.Errorf("unexpected location %+v", msg.Location)
		}
	})

	errs := []struct {
		name string
		req  *domain.SendRequest
	}{
		{"empty text", sendRequest(domain.ActionSendText, `{"text":""}`)},
		{"media without link", sendRequest(domain.ActionSendMedia, `{"type":"image"}`)},
		{"media bad type", sendRequest(domain.ActionSendMedia, `{"type":"gif","link":"x"}`)},
		{"template without name", sendRequest(domain.ActionSendTemplate, `{}`)},
		{"contacts not a list", sendRequest(domain.ActionSendContact, `{"contacts":{"name":"Bob"}}`)},
		{"bad json", sendRequest(domain.ActionSendText, `{"text":`)},
		{"unknown action", sendRequest("send_sticker", `{}`)},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.BuildProviderMessage(tt.req)
			var validation *domain.ErrValidation
			if !errors.As(err, &validation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if tt.name == "unknown action" && !strings.Contains(validation.Message, "send_sticker") {
				t.Errorf("expected action in message, got %q", validation.Message)
			}
		})
	}
}
