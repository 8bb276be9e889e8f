package utils

import (
	"errors"
	"strings"
	"testing"
)

func newTestTracker() *Tracker {
	return NewTracker("https://track.example.com", "tracking-secret")
}

func TestTokenVerification(t *testing.T) {
	tr := newTestTracker()
	msgID := "<abc@example.com>"

	token := tr.Token(msgID)
	if !tr.VerifyToken(msgID, token) {
		t.Fatal("freshly issued token failed verification")
	}
	if tr.VerifyToken(msgID, "forged-token-value") {
		t.Fatal("forged token accepted")
	}
	if tr.VerifyToken("<other@example.com>", token) {
		t.Fatal("token accepted for a different message")
	}
}

func TestInjectTrackingAddsPixelAndRewritesLinks(t *testing.T) {
	tr := newTestTracker()
	html := `<p>Hi</p><a href="https://example.com/pricing">pricing</a>`

	out := tr.InjectTracking(html, "<m1@d>", true, true)

	if !strings.Contains(out, "/track/open/") {
		t.Fatal("open pixel missing")
	}
	if !strings.Contains(out, "/track/click/") {
		t.Fatal("click link not rewritten")
	}
	if strings.Contains(out, `href="https://example.com/pricing"`) {
		t.Fatal("original link left untracked")
	}
}

func TestInjectTrackingHonorsFlags(t *testing.T) {
	tr := newTestTracker()
	html := `<a href="https://example.com">x</a>`

	out := tr.InjectTracking(html, "<m1@d>", false, false)
	if out != html {
		t.Fatalf("content changed with tracking disabled: %q", out)
	}

	out = tr.InjectTracking(html, "<m1@d>", true, false)
	if !strings.Contains(out, "/track/open/") || strings.Contains(out, "/track/click/") {
		t.Fatalf("open-only tracking wrong: %q", out)
	}
}

func TestInjectTrackingSkipsOwnLinks(t *testing.T) {
	tr := newTestTracker()
	unsub := tr.BaseURL + "/unsubscribe?token=abc"
	html := `<a href="` + unsub + `">unsubscribe</a>`

	out := tr.InjectTracking(html, "<m1@d>", false, true)
	if !strings.Contains(out, `href="`+unsub+`"`) {
		t.Fatal("unsubscribe link was wrapped in click tracking")
	}
}

func TestUnsubscribeTokenRoundTrip(t *testing.T) {
	tr := newTestTracker()

	u, err := tr.UnsubscribeURL(42, 7)
	if err != nil {
		t.Fatal(err)
	}
	idx := strings.Index(u, "token=")
	if idx == -1 {
		t.Fatalf("no token in %q", u)
	}
	token := u[idx+len("token="):]

	contactID, campaignID, err := tr.ParseUnsubscribeToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if contactID != 42 || campaignID != 7 {
		t.Fatalf("got contact %d campaign %d", contactID, campaignID)
	}

	if _, _, err := tr.ParseUnsubscribeToken(token + "tampered"); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestIsTemporaryError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("421 4.7.0 try again later"), true},
		{errors.New("451 temporary local problem"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("550 5.1.1 user unknown"), false},
		{errors.New("535 authentication failed"), false},
	}
	for _, tt := range tests {
		if got := IsTemporaryError(tt.err); got != tt.want {
			t.Errorf("IsTemporaryError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
