package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/models"
)

// matchLookback bounds the sender+subject heuristic so ancient sends
// cannot claim unrelated mail.
const matchLookback = 30 * 24 * time.Hour

// Matcher links inbound mail to the outbound send it replies to and
// updates contact and campaign state accordingly.
type Matcher struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewMatcher(db *gorm.DB, logger *logrus.Logger) *Matcher {
	return &Matcher{db: db, logger: logger}
}

// Ingest stores one fetched message. Duplicate message IDs for the same
// account are a no-op. Returns the stored row for callers that want it.
func (m *Matcher) Ingest(ctx context.Context, account *models.EmailAccount, owner *models.User, msg *ParsedMessage) (*models.ReceivedEmail, error) {
	messageID := CanonicalMessageID(msg.MessageID)
	if messageID == "" {
		// No Message-ID at all: synthesize one from receipt metadata so
		// the dedupe index still works.
		messageID = CanonicalMessageID(fmt.Sprintf("missing-%d-%s@%s", msg.ReceivedAt.UnixNano(), msg.FromEmail, "coldreach.local"))
	}

	var existing models.ReceivedEmail
	err := m.db.WithContext(ctx).
		Where("message_id = ? AND account_id = ?", messageID, account.ID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ignored := MatchesIgnoreKeywords(owner.IgnoreKeywordList(), msg.Subject, msg.BodyText)

	matched, err := m.matchSent(ctx, owner.ID, msg)
	if err != nil {
		return nil, err
	}

	inReplyTo := CanonicalMessageID(msg.InReplyTo)
	threadID := messageID
	if matched != nil && matched.ThreadID != "" {
		threadID = matched.ThreadID
	} else if inReplyTo != "" {
		threadID = inReplyTo
	}

	row := models.ReceivedEmail{
		UserID:      owner.ID,
		AccountID:   account.ID,
		MessageID:   messageID,
		ThreadID:    threadID,
		InReplyTo:   inReplyTo,
		References:  joinReferences(msg.References),
		FromEmail:   CleanAddress(msg.FromEmail),
		FromName:    msg.FromName,
		ToEmail:     CleanAddress(msg.ToEmail),
		Subject:     msg.Subject,
		BodyText:    msg.BodyText,
		BodyHTML:    msg.BodyHTML,
		Attachments: msg.Attachments,
		IsReply:     matched != nil,
		IsIgnored:   ignored,
		ReceivedAt:  msg.ReceivedAt,
	}
	if matched != nil {
		row.CampaignID = &matched.CampaignID
		row.ContactID = &matched.ContactID
		row.SentEmailID = &matched.ID
	}

	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		// A concurrent poll can win the unique-index race after the
		// pre-check above; the duplicate is a no-op, not a failure.
		var dup models.ReceivedEmail
		if lookupErr := m.db.WithContext(ctx).
			Where("message_id = ? AND account_id = ?", messageID, account.ID).
			First(&dup).Error; lookupErr == nil {
			return &dup, nil
		}
		return nil, err
	}

	if matched != nil && !ignored {
		if err := m.recordReply(ctx, owner, matched, &row); err != nil {
			return nil, err
		}
	} else if ignored {
		m.logger.WithFields(logrus.Fields{
			"account_id": account.ID,
			"from":       row.FromEmail,
			"subject":    row.Subject,
		}).Info("message matched ignore keywords, stored without reply handling")
	}

	return &row, nil
}

// matchSent finds the outbound message this one replies to. Priority:
// In-Reply-To, then References newest first, then a sender+subject
// heuristic over recent sends.
func (m *Matcher) matchSent(ctx context.Context, userID uint, msg *ParsedMessage) (*models.SentEmail, error) {
	for _, id := range matchCandidates(msg) {
		var sent models.SentEmail
		err := m.db.WithContext(ctx).
			Where("user_id = ? AND message_id = ? AND status = ?", userID, id, "sent").
			First(&sent).Error
		if err == nil {
			return &sent, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	from := CleanAddress(msg.FromEmail)
	if from == "" {
		return nil, nil
	}
	normalized := NormalizeSubject(msg.Subject)
	if normalized == "" {
		return nil, nil
	}

	// Thread headers are exact; the heuristic only fires for contacts
	// still in a running campaign.
	var recent []models.SentEmail
	if err := m.db.WithContext(ctx).
		Where("user_id = ? AND to_email = ? AND status = ? AND sent_at > ?",
			userID, from, "sent", msg.ReceivedAt.Add(-matchLookback)).
		Where("campaign_id IN (?)", m.db.Model(&models.Campaign{}).Select("id").Where("is_active = ?", true)).
		Order("sent_at DESC").
		Limit(20).
		Find(&recent).Error; err != nil {
		return nil, err
	}
	for i := range recent {
		if NormalizeSubject(recent[i].Subject) == normalized {
			return &recent[i], nil
		}
	}
	return nil, nil
}

// recordReply marks the reply on the sent row, the contact, and the
// campaign stats. The reply ends the contact's sequence.
func (m *Matcher) recordReply(ctx context.Context, owner *models.User, sent *models.SentEmail, row *models.ReceivedEmail) error {
	now := row.ReceivedAt

	if sent.RepliedAt == nil {
		if err := m.db.WithContext(ctx).Model(sent).
			Updates(map[string]interface{}{"replied_at": now}).Error; err != nil {
			return err
		}
	}

	var contact models.Contact
	if err := m.db.WithContext(ctx).First(&contact, sent.ContactID).Error; err != nil {
		return err
	}

	alreadyReplied := contact.EmailStatus == models.EmailReplied
	contact.MarkEmailStatus(models.EmailReplied)
	contact.LastReplied = &now
	if err := m.db.WithContext(ctx).Save(&contact).Error; err != nil {
		return err
	}

	if !alreadyReplied {
		if err := m.db.WithContext(ctx).Model(&models.Campaign{}).
			Where("id = ?", sent.CampaignID).
			Update("reply_count", gorm.Expr("reply_count + ?", 1)).Error; err != nil {
			return err
		}
	}

	models.LogActivity(m.db, models.ActivityLog{
		UserID:     owner.ID,
		Source:     "receive",
		Level:      "success",
		Message:    fmt.Sprintf("Reply received from %s", row.FromEmail),
		CampaignID: &sent.CampaignID,
		ContactID:  &sent.ContactID,
		AccountID:  &row.AccountID,
	})
	m.logger.WithFields(logrus.Fields{
		"campaign_id": sent.CampaignID,
		"contact_id":  sent.ContactID,
		"message_id":  row.MessageID,
	}).Info("reply matched, sequence stopped")

	return nil
}

// matchCandidates orders the message IDs worth looking up: In-Reply-To
// first, then References newest first.
func matchCandidates(msg *ParsedMessage) []string {
	candidates := make([]string, 0, 1+len(msg.References))
	if id := CanonicalMessageID(msg.InReplyTo); id != "" {
		candidates = append(candidates, id)
	}
	for i := len(msg.References) - 1; i >= 0; i-- {
		candidates = append(candidates, msg.References[i])
	}
	return candidates
}

func joinReferences(refs []string) string {
	return strings.Join(refs, " ")
}
