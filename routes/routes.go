package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/controllers"
	"coldreach/utils"
)

// SetupRoutes wires the tracking and inbox endpoints.
func SetupRoutes(app *fiber.App, db *gorm.DB, tracker *utils.Tracker, logger *logrus.Logger) {
	tracking := controllers.NewTrackingController(db, tracker, logger)
	app.Get("/track/open/:messageID/:token", tracking.TrackOpen)
	app.Get("/track/click/:messageID/:token", tracking.TrackClick)
	app.Get("/unsubscribe", tracking.Unsubscribe)

	inboxCtl := controllers.NewInboxController(db)
	api := app.Group("/api/v1")
	api.Get("/inbox", inboxCtl.List)
	api.Patch("/inbox/:id/read", inboxCtl.MarkRead)
	api.Patch("/inbox/:id/star", inboxCtl.Star)
	api.Patch("/inbox/:id/move", inboxCtl.Move)
	api.Get("/activity", inboxCtl.Activity)
}
