package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tracker builds and verifies the open-pixel, click, and unsubscribe URLs
// embedded into outgoing mail. Tokens are HMAC keyed on the tracking
// secret so endpoints can reject forged requests without a DB lookup.
type Tracker struct {
	BaseURL string
	secret  []byte
}

func NewTracker(baseURL, secret string) *Tracker {
	return &Tracker{BaseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}
}

// Token derives the per-message tracking token.
func (t *Tracker) Token(messageID string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(messageID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))[:20]
}

// VerifyToken checks a token presented to a tracking endpoint.
func (t *Tracker) VerifyToken(messageID, token string) bool {
	return hmac.Equal([]byte(t.Token(messageID)), []byte(token))
}

// PixelURL is the 1x1 gif endpoint recording opens.
func (t *Tracker) PixelURL(messageID string) string {
	return fmt.Sprintf("%s/track/open/%s/%s", t.BaseURL, url.PathEscape(messageID), t.Token(messageID))
}

// ClickURL wraps a link so the click is recorded before redirecting.
func (t *Tracker) ClickURL(messageID, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s",
		t.BaseURL, url.PathEscape(messageID), t.Token(messageID), url.QueryEscape(originalURL))
}

// InjectTracking rewrites links for click tracking and appends the open
// pixel. trackOpens and trackClicks mirror the campaign's settings.
func (t *Tracker) InjectTracking(htmlContent, messageID string, trackOpens, trackClicks bool) string {
	out := htmlContent
	if trackClicks {
		out = t.rewriteLinks(out, messageID)
	}
	if trackOpens {
		pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, t.PixelURL(messageID))
		out += pixel
	}
	return out
}

func (t *Tracker) rewriteLinks(html, messageID string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		// Never double-wrap our own tracking or unsubscribe links.
		if strings.HasPrefix(originalURL, t.BaseURL) || !strings.HasPrefix(originalURL, "http") {
			offset = endIdx
			continue
		}
		tracked := t.ClickURL(messageID, originalURL)

		html = html[:startIdx] + tracked + html[endIdx:]
		offset = startIdx + len(tracked)
	}

	return html
}

type unsubscribeClaims struct {
	ContactID  uint `json:"contact_id"`
	CampaignID uint `json:"campaign_id"`
	jwt.RegisteredClaims
}

// UnsubscribeURL returns the one-click unsubscribe link for a contact.
// The token is a signed JWT valid for a year.
func (t *Tracker) UnsubscribeURL(contactID, campaignID uint) (string, error) {
	claims := unsubscribeClaims{
		ContactID:  contactID,
		CampaignID: campaignID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().AddDate(1, 0, 0)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/unsubscribe?token=%s", t.BaseURL, url.QueryEscape(token)), nil
}

// ParseUnsubscribeToken validates a token and returns the contact and
// campaign it was issued for.
func (t *Tracker) ParseUnsubscribeToken(token string) (contactID, campaignID uint, err error) {
	parsed, err := jwt.ParseWithClaims(token, &unsubscribeClaims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return 0, 0, err
	}
	claims, ok := parsed.Claims.(*unsubscribeClaims)
	if !ok || !parsed.Valid {
		return 0, 0, fmt.Errorf("invalid unsubscribe token")
	}
	return claims.ContactID, claims.CampaignID, nil
}

// UnsubscribeFooter is appended to campaign mail when the campaign has the
// unsubscribe link enabled.
func UnsubscribeFooter(unsubURL string) string {
	return fmt.Sprintf(
		`<br><br><p style="font-size:11px;color:#999">If you'd rather not receive these emails, you can <a href="%s">unsubscribe here</a>.</p>`,
		unsubURL)
}
