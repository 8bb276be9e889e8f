package utils

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"

	"coldreach/models"
)

var oauthEndpoints = map[string]oauth2.Endpoint{
	"gmail": {
		AuthURL:  "https://accounts.google.com/o/oauth2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	},
	"outlook": {
		AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	},
}

// OAuthCredentials holds the app-level client credentials per provider.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
}

// AccessToken exchanges the account's refresh token for a live access
// token. refreshToken must already be decrypted.
func AccessToken(ctx context.Context, account *models.EmailAccount, refreshToken string, creds OAuthCredentials) (string, error) {
	endpoint, ok := oauthEndpoints[account.ProviderType]
	if !ok {
		return "", fmt.Errorf("unsupported oauth provider %q", account.ProviderType)
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpoint,
	}
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("refreshing %s token for %s: %w", account.ProviderType, account.Email, err)
	}
	return tok.AccessToken, nil
}

func xoauth2Payload(username, accessToken string) []byte {
	return []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", username, accessToken))
}

// xoauth2SMTPAuth implements net/smtp.Auth for the XOAUTH2 mechanism used
// by gmail and outlook.
type xoauth2SMTPAuth struct {
	username    string
	accessToken string
}

// XOAUTH2SMTPAuth returns an smtp.Auth for gomail's Dialer.Auth field.
func XOAUTH2SMTPAuth(username, accessToken string) smtp.Auth {
	return &xoauth2SMTPAuth{username: username, accessToken: accessToken}
}

func (a *xoauth2SMTPAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "XOAUTH2", xoauth2Payload(a.username, a.accessToken), nil
}

func (a *xoauth2SMTPAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// Server sent an error challenge; respond with an empty line so it
		// returns the final SMTP error instead of hanging.
		return []byte{}, nil
	}
	return nil, nil
}

// xoauth2SASLClient implements go-sasl's Client for IMAP authentication.
type xoauth2SASLClient struct {
	username    string
	accessToken string
	done        bool
}

// XOAUTH2SASLClient returns a sasl.Client for go-imap's Authenticate.
func XOAUTH2SASLClient(username, accessToken string) sasl.Client {
	return &xoauth2SASLClient{username: username, accessToken: accessToken}
}

func (c *xoauth2SASLClient) Start() (string, []byte, error) {
	c.done = false
	return "XOAUTH2", xoauth2Payload(c.username, c.accessToken), nil
}

func (c *xoauth2SASLClient) Next(challenge []byte) ([]byte, error) {
	if c.done {
		return nil, fmt.Errorf("unexpected server challenge")
	}
	c.done = true
	return []byte{}, nil
}
