package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/models"
	"coldreach/personalize"
	"coldreach/utils"
)

// ErrQuotaExhausted signals the picked account hit its daily limit
// between selection and the atomic claim.
var ErrQuotaExhausted = errors.New("account daily limit reached")

// Personalizer renders AI copy for one owner's contacts.
type Personalizer interface {
	FetchWebsite(ctx context.Context, contact *models.Contact) string
	Personalize(ctx context.Context, contact *models.Contact, prompt, website string) (string, error)
	Backend() personalize.Backend
}

// Dispatcher turns due work into delivered email.
type Dispatcher struct {
	db      *gorm.DB
	mailer  *utils.Mailer
	tracker *utils.Tracker
	cipher  *utils.Cipher
	fetcher *personalize.Fetcher
	logger  *logrus.Logger

	// personalizerFor is swappable in tests.
	personalizerFor func(owner *models.User) Personalizer
}

func NewDispatcher(db *gorm.DB, mailer *utils.Mailer, tracker *utils.Tracker, cipher *utils.Cipher, fetcher *personalize.Fetcher, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		db:      db,
		mailer:  mailer,
		tracker: tracker,
		cipher:  cipher,
		fetcher: fetcher,
		logger:  logger,
	}
	d.personalizerFor = d.buildPersonalizer
	return d
}

func (d *Dispatcher) buildPersonalizer(owner *models.User) Personalizer {
	openAIKey, err := d.cipher.Decrypt(owner.OpenAIKey)
	if err != nil {
		d.logger.WithError(err).WithField("user_id", owner.ID).Warn("cannot decrypt openai key")
	}
	deepSeekKey, err := d.cipher.Decrypt(owner.DeepSeekKey)
	if err != nil {
		d.logger.WithError(err).WithField("user_id", owner.ID).Warn("cannot decrypt deepseek key")
	}

	backend, err := personalize.NewBackend(owner, openAIKey, deepSeekKey)
	if err != nil {
		// No usable provider: the engine falls back to template rendering.
		backend = nil
	}
	return personalize.NewEngine(backend, d.fetcher, d.logger)
}

// Send executes one due send through the given account. A transport
// failure is recorded on the send log and returned; it must not stop the
// caller from processing the rest of the queue.
func (d *Dispatcher) Send(ctx context.Context, w Work, account *models.EmailAccount) error {
	contact, campaign, step := w.Contact, w.Campaign, w.Step

	if err := checkmail.ValidateFormat(contact.Email); err != nil {
		return d.bounceUndeliverable(ctx, w, "invalid email address")
	}
	if contact.EmailStatus == models.EmailNeverSent {
		// One MX lookup before the first touch keeps dead domains out of
		// the sequence entirely.
		if hasMX, err := utils.ValidateMXRecords(contact.Email); err != nil || !hasMX {
			return d.bounceUndeliverable(ctx, w, "domain accepts no mail")
		}
	}

	p := d.personalizerFor(w.Owner)

	fromName := account.FromName
	if fromName == "" {
		fromName = account.Email
	}

	website := ""
	if step.UseAiForSubject || step.UseAiForContent {
		website = contact.WebsiteContent
		if website == "" {
			if website = p.FetchWebsite(ctx, contact); website != "" {
				// Cache the scrape so later steps skip the fetch.
				contact.WebsiteContent = website
				if err := d.db.WithContext(ctx).Model(contact).
					Update("website_content", website).Error; err != nil {
					d.logger.WithError(err).Debug("website cache write failed")
				}
			}
		}
	}

	subject, subjectLog := d.render(ctx, p, w, step.UseAiForSubject, step.Subject, step.AiSubjectPrompt, "subject", website, fromName)
	body, contentLog := d.render(ctx, p, w, step.UseAiForContent, step.Content, step.AiContentPrompt, "content", website, fromName)

	messageID := utils.GenerateMessageID(account.Domain())
	inReplyTo, threadID := d.threading(ctx, campaign.ID, contact.ID, messageID)

	html := body
	if campaign.UnsubscribeLink {
		if unsubURL, err := d.tracker.UnsubscribeURL(contact.ID, campaign.ID); err == nil {
			html += utils.UnsubscribeFooter(unsubURL)
		}
	}
	html = d.tracker.InjectTracking(html, messageID, campaign.TrackOpens, campaign.TrackClicks)

	now := time.Now()
	claimed, err := ClaimQuota(ctx, d.db, account.ID, now)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrQuotaExhausted
	}

	record := models.SentEmail{
		UserID:     campaign.UserID,
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		AccountID:  account.ID,
		StepNumber: step.StepNumber,
		MessageID:  messageID,
		ThreadID:   threadID,
		ToEmail:    contact.Email,
		Subject:    subject,
		Body:       html,
		SentAt:     now,
	}

	sendErr := d.mailer.Send(ctx, account, &utils.OutboundMessage{
		To:        contact.Email,
		Subject:   subject,
		HTMLBody:  html,
		MessageID: messageID,
		InReplyTo: inReplyTo,
	})
	if sendErr != nil {
		if err := ReleaseQuota(ctx, d.db, account.ID); err != nil {
			d.logger.WithError(err).Error("quota release failed")
		}
		record.Status = "failed"
		record.ErrorMessage = sendErr.Error()
		if err := d.db.WithContext(ctx).Create(&record).Error; err != nil {
			d.logger.WithError(err).Error("failed send could not be recorded")
		}
		// Failed rows never advance the sequence, so a transient refusal
		// is retried on a later tick.
		level, message := "error", fmt.Sprintf("Send to %s failed: %v", contact.Email, sendErr)
		if utils.IsTemporaryError(sendErr) {
			level = "warning"
			message = fmt.Sprintf("Send to %s failed temporarily, will retry: %v", contact.Email, sendErr)
		}
		models.LogActivity(d.db, models.ActivityLog{
			UserID:     campaign.UserID,
			Source:     "send",
			Level:      level,
			Message:    message,
			CampaignID: &campaign.ID,
			ContactID:  &contact.ID,
			AccountID:  &account.ID,
		})
		return fmt.Errorf("sending step %d to %s: %w", step.StepNumber, contact.Email, sendErr)
	}

	record.Status = "sent"
	if err := d.db.WithContext(ctx).Create(&record).Error; err != nil {
		return err
	}
	d.savePersonalizationLogs(ctx, w, subjectLog, contentLog)

	contact.TimesContacted++
	contact.LastContacted = &now
	contact.MarkEmailStatus(models.EmailSent)
	if err := d.db.WithContext(ctx).Save(contact).Error; err != nil {
		return err
	}
	if err := d.db.WithContext(ctx).Model(campaign).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error; err != nil {
		return err
	}

	models.LogActivity(d.db, models.ActivityLog{
		UserID:     campaign.UserID,
		Source:     "send",
		Level:      "success",
		Message:    fmt.Sprintf("Sent step %d to %s via %s", step.StepNumber, contact.Email, account.Email),
		CampaignID: &campaign.ID,
		ContactID:  &contact.ID,
		AccountID:  &account.ID,
	})
	d.logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"contact_id":  contact.ID,
		"account_id":  account.ID,
		"step":        step.StepNumber,
		"message_id":  messageID,
	}).Info("email sent")

	return nil
}

// bounceUndeliverable marks a contact bounced before any transport
// attempt and surfaces the reason in the activity feed.
func (d *Dispatcher) bounceUndeliverable(ctx context.Context, w Work, reason string) error {
	w.Contact.MarkEmailStatus(models.EmailBounced)
	if err := d.db.WithContext(ctx).Save(w.Contact).Error; err != nil {
		return err
	}
	models.LogActivity(d.db, models.ActivityLog{
		UserID:     w.Campaign.UserID,
		Source:     "send",
		Level:      "warning",
		Message:    fmt.Sprintf("Skipping %s: %s", w.Contact.Email, reason),
		CampaignID: &w.Campaign.ID,
		ContactID:  &w.Contact.ID,
	})
	return nil
}

// render resolves a subject or body, preferring the AI backend when the
// step asks for it and falling back to a plain template merge of the
// prompt when the backend fails or is unavailable.
func (d *Dispatcher) render(ctx context.Context, p Personalizer, w Work, useAI bool, manual, prompt, kind, website, fromName string) (string, *models.PersonalizationLog) {
	vars := personalize.ContactVars(w.Contact, fromName)

	if !useAI {
		return personalize.MergeTemplate(manual, vars), nil
	}

	started := time.Now()
	result, err := p.Personalize(ctx, w.Contact, prompt, website)
	entry := &models.PersonalizationLog{
		UserID:      w.Campaign.UserID,
		CampaignID:  w.Campaign.ID,
		ContactID:   w.Contact.ID,
		StepNumber:  w.Step.StepNumber,
		Kind:        kind,
		Prompt:      prompt,
		UsedWebsite: website != "",
		Processing:  time.Since(started),
	}
	if err != nil || result == "" {
		entry.Provider = "manual"
		merged := personalize.MergeTemplate(prompt, vars)
		entry.Result = merged
		return merged, entry
	}

	entry.Provider = p.Backend().Name()
	if cb, ok := p.Backend().(*personalize.ChatBackend); ok {
		entry.AiModel = cb.Model()
	}
	entry.Result = result
	return result, entry
}

func (d *Dispatcher) savePersonalizationLogs(ctx context.Context, w Work, logs ...*models.PersonalizationLog) {
	for _, entry := range logs {
		if entry == nil {
			continue
		}
		if err := d.db.WithContext(ctx).Create(entry).Error; err != nil {
			d.logger.WithError(err).Debug("personalization log write failed")
		}
	}
}

// threading links follow-up steps into the thread of the first send so
// recipients see one conversation.
func (d *Dispatcher) threading(ctx context.Context, campaignID, contactID uint, messageID string) (inReplyTo, threadID string) {
	var last models.SentEmail
	err := d.db.WithContext(ctx).
		Where("campaign_id = ? AND contact_id = ? AND status = ?", campaignID, contactID, "sent").
		Order("sent_at DESC").
		First(&last).Error
	if err != nil {
		return "", messageID
	}
	threadID = last.ThreadID
	if threadID == "" {
		threadID = last.MessageID
	}
	return last.MessageID, threadID
}
