package personalize

import (
	"regexp"
	"strings"

	"coldreach/models"
)

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z]+)\s*\}\}`)

// ContactVars builds the substitution map for a contact. fromName is the
// sending identity's display name; the personalization variable carries
// the contact's cached AI text.
func ContactVars(c *models.Contact, fromName string) map[string]string {
	return map[string]string{
		"firstName":       c.FirstName,
		"lastName":        c.LastName,
		"fullName":        c.FullName(),
		"company":         c.Company,
		"position":        c.Position,
		"email":           c.Email,
		"phone":           c.Phone,
		"website":         c.Website,
		"linkedin":        c.LinkedIn,
		"city":            c.City,
		"state":           c.State,
		"country":         c.Country,
		"industry":        c.Industry,
		"fromName":        fromName,
		"personalization": c.Personalization,
	}
}

// MergeTemplate substitutes {{variable}} placeholders. Unknown variables
// and empty values both collapse to nothing so templates degrade cleanly
// for sparse contacts.
func MergeTemplate(tmpl string, vars map[string]string) string {
	out := placeholderRE.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderRE.FindStringSubmatch(match)[1]
		return vars[name]
	})
	// Collapse the double spaces left behind by removed placeholders.
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}
