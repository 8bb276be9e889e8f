package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ContactStatus is the overall lifecycle state of a contact.
type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
	ContactDoNotContact ContactStatus = "do_not_contact"
)

// EmailStatus tracks how far along the outreach funnel a contact is.
type EmailStatus string

const (
	EmailNeverSent EmailStatus = "never_sent"
	EmailSent      EmailStatus = "sent"
	EmailDelivered EmailStatus = "delivered"
	EmailOpened    EmailStatus = "opened"
	EmailClicked   EmailStatus = "clicked"
	EmailReplied   EmailStatus = "replied"
	EmailBounced   EmailStatus = "bounced"
)

// Contact is a single recipient enrolled in a campaign
type Contact struct {
	gorm.Model
	UserID     uint `gorm:"not null;index" json:"user_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`
	Website   string `json:"website"`
	LinkedIn  string `json:"linkedin"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country"`
	Industry  string `json:"industry"`
	Notes     string `gorm:"type:text" json:"notes"`

	// Derived caches, filled lazily and reused across steps
	WebsiteContent  string `gorm:"type:text" json:"-"`
	Personalization string `gorm:"type:text" json:"personalization"`

	Status      ContactStatus `gorm:"default:'active';index" json:"status"`
	EmailStatus EmailStatus   `gorm:"default:'never_sent';index" json:"email_status"`

	TimesContacted int        `gorm:"default:0" json:"times_contacted"` // cache; sent_emails rows are authoritative
	LastContacted  *time.Time `json:"last_contacted"`
	LastOpened     *time.Time `json:"last_opened"`
	LastReplied    *time.Time `json:"last_replied"`
}

// terminal statuses only leave via Reactivate
var terminalStatuses = map[ContactStatus]bool{
	ContactUnsubscribed: true,
	ContactBounced:      true,
	ContactComplained:   true,
	ContactDoNotContact: true,
}

// IsTerminal reports whether the contact's status permanently excludes it
// from scheduling.
func (c *Contact) IsTerminal() bool {
	return terminalStatuses[c.Status]
}

// Sendable reports whether the scheduler may pick this contact at all.
func (c *Contact) Sendable() bool {
	if c.Status != ContactActive {
		return false
	}
	return c.EmailStatus != EmailReplied && c.EmailStatus != EmailBounced
}

// Transition moves the contact to a new status. Moves out of a terminal
// status are rejected; use Reactivate for the explicit override.
func (c *Contact) Transition(to ContactStatus) error {
	if c.Status == to {
		return nil
	}
	if terminalStatuses[c.Status] {
		return fmt.Errorf("contact %d: cannot transition from terminal status %q to %q", c.ID, c.Status, to)
	}
	c.Status = to
	return nil
}

// Reactivate returns a terminal contact to the active pool and clears the
// funnel state so the sequence restarts from its last completed step.
func (c *Contact) Reactivate() {
	c.Status = ContactActive
	if c.EmailStatus == EmailReplied || c.EmailStatus == EmailBounced {
		c.EmailStatus = EmailSent
	}
}

// funnel ordering: a contact never moves backwards down the funnel
var funnelRank = map[EmailStatus]int{
	EmailNeverSent: 0,
	EmailSent:      1,
	EmailDelivered: 2,
	EmailOpened:    3,
	EmailClicked:   4,
	EmailReplied:   5,
	EmailBounced:   5,
}

// MarkEmailStatus advances the funnel state. Downgrades are ignored so a
// late-arriving open event cannot undo a recorded reply.
func (c *Contact) MarkEmailStatus(to EmailStatus) {
	if funnelRank[to] < funnelRank[c.EmailStatus] {
		return
	}
	c.EmailStatus = to
}

// FullName joins first and last name, tolerating either being empty.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}
