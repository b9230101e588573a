package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"questbot-system/services"
)

// SetupEventRoutes wires platform event delivery. The gateway POSTs each
// observed event once; handlers acknowledge with 202 even when the event is
// a no-op (not a tracked quest, wrong emoji) so the gateway never retries
// and re-fires a trigger.
func SetupEventRoutes(app *fiber.App, log *zap.SugaredLogger, reactors *services.ReactorService) {
	eventsGroup := app.Group("/events")

	eventsGroup.Post("/reaction", func(c *fiber.Ctx) error {
		var ev services.ReactionEvent
		if err := c.BodyParser(&ev); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON", "cause": err.Error(),
			})
		}
		if ev.CommunityID == "" || ev.MessageID == "" || ev.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "community_id, message_id and user_id are required",
			})
		}

		if err := reactors.HandleReaction(c.Context(), ev); err != nil {
			// Recovered here: event flow must survive a failed trigger.
			log.Errorf("Reaction handler failed for message %s user %s: %v", ev.MessageID, ev.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "reaction processing failed",
			})
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	eventsGroup.Post("/member-roles", func(c *fiber.Ctx) error {
		var ev services.MemberRolesEvent
		if err := c.BodyParser(&ev); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON", "cause": err.Error(),
			})
		}
		if ev.CommunityID == "" || ev.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "community_id and user_id are required",
			})
		}

		if err := reactors.HandleMemberRoles(c.Context(), ev); err != nil {
			log.Errorf("Member-roles handler failed for user %s: %v", ev.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "role change processing failed",
			})
		}
		return c.SendStatus(fiber.StatusAccepted)
	})
}
