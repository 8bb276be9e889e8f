package controllers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"coldreach/models"
	"coldreach/utils"
)

// InboxController exposes the received-mail feed.
type InboxController struct {
	DB *gorm.DB
}

func NewInboxController(db *gorm.DB) *InboxController {
	return &InboxController{DB: db}
}

// List returns received emails for a user, newest first, with optional
// category and unread filters.
func (ic *InboxController) List(c *fiber.Ctx) error {
	userID := utils.ParseUint(c.Query("user_id"))
	if userID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "user_id is required", nil)
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	q := ic.DB.Model(&models.ReceivedEmail{}).Where("user_id = ?", userID)
	if category := c.Query("category"); category != "" {
		q = q.Where("category = ?", category)
	}
	if c.QueryBool("unread") {
		q = q.Where("is_read = ?", false)
	}
	if c.QueryBool("replies") {
		q = q.Where("is_reply = ? AND is_ignored = ?", true, false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "query failed", err)
	}

	var emails []models.ReceivedEmail
	if err := q.Order("received_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&emails).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "query failed", err)
	}

	return c.JSON(utils.PaginatedResponse{Data: emails, Total: total, Page: page, Limit: limit})
}

// MarkRead flips the read flag on one received email.
func (ic *InboxController) MarkRead(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	read := c.QueryBool("read", true)

	res := ic.DB.Model(&models.ReceivedEmail{}).Where("id = ?", id).Update("is_read", read)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "update failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "email not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "is_read": read}))
}

// Star toggles the starred flag.
func (ic *InboxController) Star(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	starred := c.QueryBool("starred", true)

	res := ic.DB.Model(&models.ReceivedEmail{}).Where("id = ?", id).Update("is_starred", starred)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "update failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "email not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "is_starred": starred}))
}

// Move changes the email's category (inbox, spam, trash, archive).
func (ic *InboxController) Move(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var body struct {
		Category string `json:"category"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid body", err)
	}
	switch body.Category {
	case "inbox", "spam", "trash", "archive":
	default:
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "unknown category", nil)
	}

	res := ic.DB.Model(&models.ReceivedEmail{}).Where("id = ?", id).Update("category", body.Category)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "update failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "email not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "category": body.Category}))
}

// Activity returns the activity feed rows for a user, newest first.
func (ic *InboxController) Activity(c *fiber.Ctx) error {
	userID := utils.ParseUint(c.Query("user_id"))
	if userID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "user_id is required", nil)
	}
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	q := ic.DB.Model(&models.ActivityLog{}).Where("user_id = ?", userID)
	if source := c.Query("source"); source != "" {
		q = q.Where("source = ?", source)
	}

	var entries []models.ActivityLog
	if err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "query failed", err)
	}
	return c.JSON(utils.SuccessResponse(entries))
}
