package models

import (
	"testing"
	"time"
)

func TestContactTransitionRejectsTerminalExit(t *testing.T) {
	c := &Contact{Status: ContactUnsubscribed}
	if err := c.Transition(ContactActive); err == nil {
		t.Fatal("expected transition out of unsubscribed to fail")
	}
	if c.Status != ContactUnsubscribed {
		t.Fatalf("status mutated to %q", c.Status)
	}
}

func TestContactTransitionAllowsActiveToTerminal(t *testing.T) {
	for _, to := range []ContactStatus{ContactUnsubscribed, ContactBounced, ContactComplained, ContactDoNotContact} {
		c := &Contact{Status: ContactActive}
		if err := c.Transition(to); err != nil {
			t.Fatalf("active -> %s: %v", to, err)
		}
		if c.Status != to {
			t.Fatalf("active -> %s: got %q", to, c.Status)
		}
	}
}

func TestContactReactivate(t *testing.T) {
	c := &Contact{Status: ContactBounced, EmailStatus: EmailBounced}
	c.Reactivate()
	if c.Status != ContactActive {
		t.Fatalf("status = %q, want active", c.Status)
	}
	if c.EmailStatus != EmailSent {
		t.Fatalf("email status = %q, want sent", c.EmailStatus)
	}
}

func TestMarkEmailStatusNeverDowngrades(t *testing.T) {
	c := &Contact{EmailStatus: EmailReplied}
	c.MarkEmailStatus(EmailOpened)
	if c.EmailStatus != EmailReplied {
		t.Fatalf("reply downgraded to %q by late open event", c.EmailStatus)
	}

	c = &Contact{EmailStatus: EmailSent}
	c.MarkEmailStatus(EmailOpened)
	if c.EmailStatus != EmailOpened {
		t.Fatalf("sent -> opened failed, got %q", c.EmailStatus)
	}
}

func TestSendable(t *testing.T) {
	tests := []struct {
		name   string
		status ContactStatus
		email  EmailStatus
		want   bool
	}{
		{"fresh active", ContactActive, EmailNeverSent, true},
		{"mid sequence", ContactActive, EmailOpened, true},
		{"replied stops sequence", ContactActive, EmailReplied, false},
		{"hard bounce stops sequence", ContactActive, EmailBounced, false},
		{"unsubscribed", ContactUnsubscribed, EmailSent, false},
		{"do not contact", ContactDoNotContact, EmailNeverSent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contact{Status: tt.status, EmailStatus: tt.email}
			if got := c.Sendable(); got != tt.want {
				t.Fatalf("Sendable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountNeedsDailyReset(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

	a := &EmailAccount{}
	if !a.NeedsDailyReset(now) {
		t.Fatal("nil reset date should require reset")
	}

	yesterday := now.AddDate(0, 0, -1)
	a.LastResetDate = &yesterday
	if !a.NeedsDailyReset(now) {
		t.Fatal("previous-day reset date should require reset")
	}

	today := now.Add(-2 * time.Hour)
	a.LastResetDate = &today
	if a.NeedsDailyReset(now) {
		t.Fatal("same-day reset date should not require reset")
	}
}

func TestIgnoreKeywordList(t *testing.T) {
	u := &User{IgnoreKeywords: "out of office, Unsubscribe ,, auto-reply"}
	got := u.IgnoreKeywordList()
	want := []string{"out of office", "Unsubscribe", "auto-reply"}
	if len(got) != len(want) {
		t.Fatalf("got %d keywords, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keyword %d = %q, want %q", i, got[i], want[i])
		}
	}
}
