package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"coldreach/models"
)

// OutboundMessage is one email ready for transport. MessageID must be set
// by the caller so the reply matcher can find it later.
type OutboundMessage struct {
	To        string
	Subject   string
	HTMLBody  string
	MessageID string
	InReplyTo string
	Headers   map[string]string
}

// Mailer sends campaign email over each account's own SMTP server.
type Mailer struct {
	cipher *Cipher
	creds  map[string]OAuthCredentials // keyed by provider type
}

func NewMailer(cipher *Cipher, google, microsoft OAuthCredentials) *Mailer {
	return &Mailer{
		cipher: cipher,
		creds: map[string]OAuthCredentials{
			"gmail":   google,
			"outlook": microsoft,
		},
	}
}

// GenerateMessageID produces an RFC 5322 Message-ID scoped to the sending
// domain.
func GenerateMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}

// Send delivers the message through the account's SMTP server. OAuth
// accounts authenticate with XOAUTH2, everything else with the stored
// password.
func (m *Mailer) Send(ctx context.Context, account *models.EmailAccount, msg *OutboundMessage) error {
	gm := gomail.NewMessage()
	from := account.Email
	if account.FromName != "" {
		gm.SetAddressHeader("From", from, account.FromName)
	} else {
		gm.SetHeader("From", from)
	}
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetHeader("Message-ID", msg.MessageID)
	if msg.InReplyTo != "" {
		gm.SetHeader("In-Reply-To", msg.InReplyTo)
		gm.SetHeader("References", msg.InReplyTo)
	}
	for k, v := range msg.Headers {
		gm.SetHeader(k, v)
	}
	gm.SetBody("text/html", msg.HTMLBody)

	dialer, err := m.dialer(ctx, account)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- dialer.DialAndSend(gm) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send via %s: %w", account.SMTPHost, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailer) dialer(ctx context.Context, account *models.EmailAccount) (*gomail.Dialer, error) {
	username := account.SMTPUsername
	if username == "" {
		username = account.Email
	}

	d := gomail.NewDialer(account.SMTPHost, account.SMTPPort, username, "")
	d.TLSConfig = &tls.Config{ServerName: account.SMTPHost}
	switch account.SMTPEncryption {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = nil
	}

	if account.UsesOAuth() {
		refresh, err := m.cipher.Decrypt(account.OAuthRefreshToken)
		if err != nil {
			return nil, fmt.Errorf("decrypting refresh token for %s: %w", account.Email, err)
		}
		token, err := AccessToken(ctx, account, refresh, m.creds[account.ProviderType])
		if err != nil {
			return nil, err
		}
		d.Auth = XOAUTH2SMTPAuth(username, token)
		return d, nil
	}

	password, err := m.cipher.Decrypt(account.SMTPPassword)
	if err != nil {
		return nil, fmt.Errorf("decrypting smtp password for %s: %w", account.Email, err)
	}
	d.Password = password
	return d, nil
}

// IsTemporaryError reports whether an SMTP failure looks retryable (4xx
// greylisting, throttling, transient network trouble) rather than a hard
// rejection.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, code := range []string{"421", "450", "451", "452"} {
		if strings.Contains(s, code) {
			return true
		}
	}
	for _, hint := range []string{"timeout", "temporar", "connection reset", "try again"} {
		if strings.Contains(strings.ToLower(s), hint) {
			return true
		}
	}
	return false
}

// SendDelay converts a campaign's inter-send gap into a duration, with a
// floor so misconfigured campaigns cannot hammer a server.
func SendDelay(seconds int) time.Duration {
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
