package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/models"
	"coldreach/utils"
)

// transparent 1x1 gif served for open tracking
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingController serves the open pixel, click redirect, and
// unsubscribe endpoints referenced from outgoing mail.
type TrackingController struct {
	DB      *gorm.DB
	Tracker *utils.Tracker
	Logger  *logrus.Logger
}

func NewTrackingController(db *gorm.DB, tracker *utils.Tracker, logger *logrus.Logger) *TrackingController {
	return &TrackingController{DB: db, Tracker: tracker, Logger: logger}
}

// TrackOpen records an email open and returns the pixel. Invalid tokens
// still get the pixel so probing reveals nothing.
func (tc *TrackingController) TrackOpen(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")

	if tc.Tracker.VerifyToken(messageID, token) {
		tc.recordOpen(messageID)
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")
	return c.Send(trackingPixel)
}

func (tc *TrackingController) recordOpen(messageID string) {
	var sent models.SentEmail
	if err := tc.DB.Where("message_id = ?", messageID).First(&sent).Error; err != nil {
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"open_count": gorm.Expr("open_count + ?", 1),
	}
	firstOpen := sent.OpenedAt == nil
	if firstOpen {
		updates["opened_at"] = now
	}
	if err := tc.DB.Model(&sent).Updates(updates).Error; err != nil {
		tc.Logger.WithError(err).Warn("recording open failed")
		return
	}

	if firstOpen {
		tc.DB.Model(&models.Campaign{}).Where("id = ?", sent.CampaignID).
			Update("open_count", gorm.Expr("open_count + ?", 1))

		var contact models.Contact
		if err := tc.DB.First(&contact, sent.ContactID).Error; err == nil {
			contact.MarkEmailStatus(models.EmailOpened)
			contact.LastOpened = &now
			tc.DB.Save(&contact)
		}
	}
}

// TrackClick records a click and redirects to the original URL.
func (tc *TrackingController) TrackClick(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")
	target := c.Query("url")

	if target == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "missing url", nil)
	}
	if tc.Tracker.VerifyToken(messageID, token) {
		tc.recordClick(messageID)
	}
	return c.Redirect(target, fiber.StatusFound)
}

func (tc *TrackingController) recordClick(messageID string) {
	var sent models.SentEmail
	if err := tc.DB.Where("message_id = ?", messageID).First(&sent).Error; err != nil {
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"click_count": gorm.Expr("click_count + ?", 1),
	}
	firstClick := sent.ClickedAt == nil
	if firstClick {
		updates["clicked_at"] = now
	}
	if err := tc.DB.Model(&sent).Updates(updates).Error; err != nil {
		tc.Logger.WithError(err).Warn("recording click failed")
		return
	}

	if firstClick {
		tc.DB.Model(&models.Campaign{}).Where("id = ?", sent.CampaignID).
			Update("click_count", gorm.Expr("click_count + ?", 1))

		var contact models.Contact
		if err := tc.DB.First(&contact, sent.ContactID).Error; err == nil {
			contact.MarkEmailStatus(models.EmailClicked)
			tc.DB.Save(&contact)
		}
	}
}

// Unsubscribe processes a one-click unsubscribe link.
func (tc *TrackingController) Unsubscribe(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "missing token", nil)
	}

	contactID, campaignID, err := tc.Tracker.ParseUnsubscribeToken(token)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid unsubscribe link", nil)
	}

	var contact models.Contact
	if err := tc.DB.First(&contact, contactID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "contact not found", nil)
	}

	if contact.Status != models.ContactUnsubscribed {
		if err := contact.Transition(models.ContactUnsubscribed); err == nil {
			if err := tc.DB.Save(&contact).Error; err != nil {
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, "could not unsubscribe", err)
			}
			tc.DB.Model(&models.Campaign{}).Where("id = ?", campaignID).
				Update("unsubscribe_count", gorm.Expr("unsubscribe_count + ?", 1))
			models.LogActivity(tc.DB, models.ActivityLog{
				UserID:     contact.UserID,
				Source:     "send",
				Level:      "info",
				Message:    contact.Email + " unsubscribed",
				CampaignID: &campaignID,
				ContactID:  &contact.ID,
			})
		}
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString("<html><body><p>You have been unsubscribed.</p></body></html>")
}
