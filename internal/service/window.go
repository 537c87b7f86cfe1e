package service

import (
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
)

// LastInboundAt returns the timestamp of the most recent inbound message.
func LastInboundAt(messages []domain.Message) (time.Time, bool) {
	var (
		last  time.Time
		found bool
	)
	for i := range messages {
		m := &messages[i]
		if m.Direction != domain.Inbound {
			continue
		}
		if !found || m.Timestamp.After(last) {
			last, found = m.Timestamp, true
		}
	}
	return last, found
}

// IsWindowOpen reports whether a free-form message may be sent at now.
// Without any inbound message the window is closed.
func IsWindowOpen(messages []domain.Message, now time.Time) bool {
	last, ok := LastInboundAt(messages)
	if !ok {
		return false
	}
	return now.Sub(last) < domain.MessagingWindow
}

// HoursUntilClose returns max(0, 24 - hours elapsed since the last inbound message).
func HoursUntilClose(messages []domain.Message, now time.Time) float64 {
	last, ok := LastInboundAt(messages)
	if !ok {
		return 0
	}
	remaining := domain.MessagingWindow.Hours() - now.Sub(last).Hours()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// WindowOf summarizes the window state for a thread.
func WindowOf(messages []domain.Message, now time.Time) domain.WindowState {
	return domain.WindowState{
		Open:            IsWindowOpen(messages, now),
		HoursUntilClose: HoursUntilClose(messages, now),
	}
}

// WindowAfter summarizes the window from the latest inbound message alone,
// which is all the policy needs. A nil message means the window is closed.
func WindowAfter(last *domain.Message, now time.Time) domain.WindowState {
	if last == nil {
		return domain.WindowState{}
	}
	return WindowOf([]domain.Message{*last}, now)
}
