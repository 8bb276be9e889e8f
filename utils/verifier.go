package utils

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/likexian/whois"
)

// DomainHealth is the result of the deliverability checks run against a
// sending domain.
type DomainHealth struct {
	Domain     string   `json:"domain"`
	HasMX      bool     `json:"has_mx"`
	HasSPF     bool     `json:"has_spf"`
	HasDMARC   bool     `json:"has_dmarc"`
	Registered bool     `json:"registered"`
	Issues     []string `json:"issues"`
}

// Healthy reports whether the domain passed every check.
func (h *DomainHealth) Healthy() bool {
	return len(h.Issues) == 0
}

// CheckDomainHealth runs MX, SPF, DMARC, and whois checks for a sending
// domain. Lookup failures count as missing records rather than aborting.
func CheckDomainHealth(ctx context.Context, domain string) *DomainHealth {
	h := &DomainHealth{Domain: domain}
	resolver := net.DefaultResolver

	if mx, err := resolver.LookupMX(ctx, domain); err == nil && len(mx) > 0 {
		h.HasMX = true
	} else {
		h.Issues = append(h.Issues, "no MX records found")
	}

	if txts, err := resolver.LookupTXT(ctx, domain); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(strings.TrimSpace(txt), "v=spf1") {
				h.HasSPF = true
				break
			}
		}
	}
	if !h.HasSPF {
		h.Issues = append(h.Issues, "no SPF record found")
	}

	if txts, err := resolver.LookupTXT(ctx, "_dmarc."+domain); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(strings.TrimSpace(txt), "v=DMARC1") {
				h.HasDMARC = true
				break
			}
		}
	}
	if !h.HasDMARC {
		h.Issues = append(h.Issues, "no DMARC record found")
	}

	if raw, err := whois.Whois(domain); err == nil && raw != "" &&
		!strings.Contains(strings.ToLower(raw), "no match") &&
		!strings.Contains(strings.ToLower(raw), "not found") {
		h.Registered = true
	} else {
		h.Issues = append(h.Issues, "whois lookup did not confirm registration")
	}

	return h
}

// ValidateMXRecords checks that the recipient's domain can accept mail.
func ValidateMXRecords(email string) (bool, error) {
	parts := strings.Split(email, "@")
	if len(parts) < 2 {
		return false, fmt.Errorf("invalid email format")
	}

	mxRecords, err := net.LookupMX(parts[1])
	if err != nil {
		return false, err
	}
	return len(mxRecords) > 0, nil
}
