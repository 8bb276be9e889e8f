package engine

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/models"
)

// Work is one due send: a contact that should receive a specific step of
// a campaign right now.
type Work struct {
	Campaign *models.Campaign
	Contact  *models.Contact
	Step     *models.SequenceStep
	Owner    *models.User
}

// Scheduler decides which contacts are due for which sequence step.
type Scheduler struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewScheduler(db *gorm.DB, logger *logrus.Logger) *Scheduler {
	return &Scheduler{db: db, logger: logger}
}

// NextStep picks the first active step the contact has not yet received.
// Returns nil when the sequence is complete. Steps failing validation are
// reported through the skip callback and passed over.
func NextStep(steps []models.SequenceStep, sentCount int, skip func(*models.SequenceStep, error)) *models.SequenceStep {
	ordered := make([]models.SequenceStep, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StepNumber < ordered[j].StepNumber })

	seen := 0
	for i := range ordered {
		step := &ordered[i]
		if !step.IsActive {
			continue
		}
		if err := ValidateStep(step); err != nil {
			if skip != nil {
				skip(step, err)
			}
			continue
		}
		if seen == sentCount {
			return step
		}
		seen++
	}
	return nil
}

// DueWork scans active campaigns and returns every send that is due at
// the given instant, ordered so the least recently contacted go first.
func (s *Scheduler) DueWork(ctx context.Context, now time.Time) ([]Work, error) {
	var campaigns []models.Campaign
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Steps").
		Preload("Accounts").
		Find(&campaigns).Error; err != nil {
		return nil, err
	}

	var work []Work
	for i := range campaigns {
		campaign := &campaigns[i]

		open, err := WindowOpen(campaign, now)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"campaign_id": campaign.ID,
				"error":       err.Error(),
			}).Warn("campaign has an invalid sending window, skipping")
			continue
		}
		if !open {
			continue
		}

		owner := &models.User{}
		if err := s.db.WithContext(ctx).First(owner, campaign.UserID).Error; err != nil {
			return nil, err
		}

		due, err := s.dueForCampaign(ctx, campaign, owner, now)
		if err != nil {
			return nil, err
		}
		work = append(work, due...)
	}

	// Fairness: contacts never touched go first, then oldest contact date.
	sort.SliceStable(work, func(i, j int) bool {
		a, b := work[i].Contact.LastContacted, work[j].Contact.LastContacted
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})

	return work, nil
}

func (s *Scheduler) dueForCampaign(ctx context.Context, campaign *models.Campaign, owner *models.User, now time.Time) ([]Work, error) {
	var contacts []models.Contact
	if err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.ContactActive).
		Where("email_status NOT IN ?", []models.EmailStatus{models.EmailReplied, models.EmailBounced}).
		Find(&contacts).Error; err != nil {
		return nil, err
	}

	// Validate the sequence once per campaign so a malformed step logs a
	// single warning per scan, not one per contact.
	steps := make([]models.SequenceStep, 0, len(campaign.Steps))
	for _, st := range campaign.Steps {
		if !st.IsActive {
			continue
		}
		if err := ValidateStep(&st); err != nil {
			s.warnMalformedStep(campaign, &st, err)
			continue
		}
		steps = append(steps, st)
	}

	var work []Work
	for i := range contacts {
		contact := &contacts[i]

		var sent []models.SentEmail
		if err := s.db.WithContext(ctx).
			Where("campaign_id = ? AND contact_id = ? AND status = ?", campaign.ID, contact.ID, "sent").
			Order("sent_at ASC").
			Find(&sent).Error; err != nil {
			return nil, err
		}

		step := NextStep(steps, len(sent), nil)
		if step == nil {
			continue
		}

		var prevSentAt *time.Time
		if len(sent) > 0 {
			prevSentAt = &sent[len(sent)-1].SentAt
		}
		if now.Before(EligibleAt(prevSentAt, step)) {
			continue
		}

		work = append(work, Work{Campaign: campaign, Contact: contact, Step: step, Owner: owner})
	}
	return work, nil
}

// warnMalformedStep records one activity warning per malformed step per
// scan so the feed does not flood.
func (s *Scheduler) warnMalformedStep(campaign *models.Campaign, step *models.SequenceStep, err error) {
	s.logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"step_number": step.StepNumber,
		"error":       err.Error(),
	}).Warn("skipping malformed sequence step")
	models.LogActivity(s.db, models.ActivityLog{
		UserID:     campaign.UserID,
		Source:     "send",
		Level:      "warning",
		Message:    "Skipping malformed sequence step: " + err.Error(),
		CampaignID: &campaign.ID,
	})
}
