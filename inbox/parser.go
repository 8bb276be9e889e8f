package inbox

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"coldreach/models"
)

// ParsedMessage is one inbound email reduced to the fields the matcher
// needs.
type ParsedMessage struct {
	MessageID  string
	InReplyTo  string
	References []string

	FromEmail string
	FromName  string
	ToEmail   string
	Subject   string

	BodyText    string
	BodyHTML    string
	Attachments []models.EmailAttachment

	ReceivedAt time.Time
}

var replyPrefixRE = regexp.MustCompile(`(?i)^(re|fwd?|aw|sv)\s*:\s*`)

// CleanAddress extracts the bare address from forms like
// "Ada Lovelace <ada@example.com>".
func CleanAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(addr.Address)
	}
	// Fall back to a manual bracket scan for headers net/mail rejects.
	if start := strings.LastIndex(raw, "<"); start != -1 {
		if end := strings.Index(raw[start:], ">"); end != -1 {
			return strings.ToLower(strings.TrimSpace(raw[start+1 : start+end]))
		}
	}
	return strings.ToLower(raw)
}

// NormalizeSubject strips reply and forward prefixes, repeatedly, so
// "Re: Re: Offer" compares equal to "Offer".
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := replyPrefixRE.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return s
}

// CanonicalMessageID trims whitespace and guarantees the <...> wrapping
// so IDs from different servers compare equal.
func CanonicalMessageID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "<") {
		id = "<" + id
	}
	if !strings.HasSuffix(id, ">") {
		id += ">"
	}
	return id
}

// ParseReferences splits a raw References header into canonical IDs,
// oldest first.
func ParseReferences(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if id := CanonicalMessageID(f); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// MatchesIgnoreKeywords checks subject and body against the owner's
// ignore list, case-insensitively.
func MatchesIgnoreKeywords(keywords []string, subject, body string) bool {
	if len(keywords) == 0 {
		return false
	}
	haystack := strings.ToLower(subject + "\n" + body)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
