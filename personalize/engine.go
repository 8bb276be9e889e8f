package personalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"coldreach/models"
)

// Engine renders AI-personalized subject lines and bodies for one user.
type Engine struct {
	backend Backend
	fetcher *Fetcher
	logger  *logrus.Logger
}

func NewEngine(backend Backend, fetcher *Fetcher, logger *logrus.Logger) *Engine {
	return &Engine{backend: backend, fetcher: fetcher, logger: logger}
}

// Backend returns the underlying provider, nil when the user has no AI
// configuration.
func (e *Engine) Backend() Backend { return e.backend }

// contactContext builds the recipient block prepended to every AI prompt.
func contactContext(c *models.Contact, websiteContent string) string {
	var sb strings.Builder
	sb.WriteString("Contact Information:\n")
	writeLine := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", label, value)
		}
	}
	writeLine("Name", c.FullName())
	writeLine("Company", c.Company)
	writeLine("Position", c.Position)
	writeLine("Industry", c.Industry)
	writeLine("Location", location(c))
	writeLine("Notes", c.Notes)

	if websiteContent != "" {
		sb.WriteString("\nWebsite Content:\n")
		sb.WriteString(websiteContent)
		sb.WriteString("\n")
	}
	return sb.String()
}

func location(c *models.Contact) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.City, c.State, c.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Personalize renders one AI prompt for a contact. websiteContent may be
// empty. Returns ("", err) on backend failure so the caller can fall back
// to template rendering; it never panics the send path.
func (e *Engine) Personalize(ctx context.Context, contact *models.Contact, prompt, websiteContent string) (string, error) {
	if e.backend == nil {
		return "", fmt.Errorf("no personalization backend configured")
	}

	userPrompt := contactContext(contact, websiteContent) + "\nTask:\n" + prompt

	result, err := e.backend.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"provider":   e.backend.Name(),
			"contact_id": contact.ID,
			"error":      err.Error(),
		}).Warn("ai personalization failed, falling back to template")
		return "", err
	}
	return result, nil
}

// FetchWebsite resolves the contact's website into AI context, or ""
// when unavailable.
func (e *Engine) FetchWebsite(ctx context.Context, contact *models.Contact) string {
	if e.fetcher == nil || contact.Website == "" {
		return ""
	}
	return e.fetcher.FetchWebsiteContent(ctx, contact.Website)
}
