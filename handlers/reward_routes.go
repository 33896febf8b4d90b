// handlers/reward_routes.go
package handlers

import (
	"errors"
	"log"

	"easyearn-backend/middleware"
	"easyearn-backend/models"
	"easyearn-backend/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRewardRoutes mounts the secured reward-action endpoints. Every route
// requires a gateway-forwarded user context; every business-rule rejection
// maps to a specific message, never a generic failure.
func SetupRewardRoutes(app *fiber.App, rewards *services.RewardService, withdrawals *services.WithdrawalService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/dashboard", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		snapshot, err := rewards.Dashboard(userID)
		if err != nil {
			return rewardError(c, err)
		}
		return c.JSON(snapshot)
	})

	secured.Post("/wheel/spin", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		result, err := rewards.SpinWheel(userID)
		if err != nil {
			return rewardError(c, err)
		}
		log.Printf("🎡 [WHEEL] %s won %s", userID, result.Segment.Label)
		return c.JSON(fiber.Map{"ok": true, "segment": result.Segment, "balance_cents": result.BalanceCents})
	})

	secured.Post("/case/level/open", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		result, err := rewards.OpenLevelCase(userID)
		if err != nil {
			return rewardError(c, err)
		}
		log.Printf("🎁 [LEVEL_CASE] %s won %s", userID, result.Segment.Label)
		return c.JSON(fiber.Map{"ok": true, "segment": result.Segment, "balance_cents": result.BalanceCents})
	})

	secured.Post("/case/streak/open", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Tier int `json:"tier"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		result, err := rewards.OpenStreakCase(userID, req.Tier)
		if err != nil {
			return rewardError(c, err)
		}
		log.Printf("🔥 [STREAK_CASE] %s opened tier %d, won %s", userID, req.Tier, result.Segment.Label)
		return c.JSON(fiber.Map{"ok": true, "segment": result.Segment, "balance_cents": result.BalanceCents})
	})

	secured.Post("/withdrawals", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Method      string `json:"method"`
			Destination string `json:"destination"`
			AmountCents int64  `json:"amount_cents"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		w, err := withdrawals.RequestWithdrawal(userID, models.WithdrawalMethod(req.Method), req.Destination, req.AmountCents)
		if err != nil {
			return rewardError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(w)
	})

	secured.Get("/withdrawals", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		list, err := withdrawals.ListForUser(userID, c.QueryInt("limit", 50))
		if err != nil {
			return rewardError(c, err)
		}
		return c.JSON(list)
	})

	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Post("/withdrawals/:id/sent", func(c *fiber.Ctx) error {
		w, err := withdrawals.MarkSent(c.Params("id"))
		if err != nil {
			return rewardError(c, err)
		}
		return c.JSON(fiber.Map{"ok": true, "withdrawal": w})
	})

	admin.Post("/withdrawals/:id/refund", func(c *fiber.Ctx) error {
		w, err := withdrawals.Refund(c.Params("id"))
		if err != nil {
			return rewardError(c, err)
		}
		return c.JSON(fiber.Map{"ok": true, "withdrawal": w})
	})
}

// rewardError translates the sentinel business errors into specific
// responses. Unknown errors are the only generic 500s.
func rewardError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	case errors.Is(err, services.ErrUserNotActive):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "account is not active"})
	case errors.Is(err, services.ErrWheelCooldown):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "wheel already spun in the last 24 hours"})
	case errors.Is(err, services.ErrNotEnoughReferrals):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "need 10 referrals active in the last 14 days"})
	case errors.Is(err, services.ErrNoCaseKeys):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no level case keys available"})
	case errors.Is(err, services.ErrCaseNotAvailable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "case not available for this streak"})
	case errors.Is(err, services.ErrStreakTooShort):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "streak has not reached this milestone"})
	case errors.Is(err, services.ErrInvalidTier):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tier must be 7 or 14"})
	case errors.Is(err, services.ErrInsufficientBalance):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient balance"})
	case errors.Is(err, services.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amount or method"})
	case errors.Is(err, services.ErrMissingParams):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing required fields"})
	case errors.Is(err, services.ErrWithdrawalNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "withdrawal not found"})
	case errors.Is(err, services.ErrWithdrawalClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "withdrawal already processed"})
	default:
		log.Printf("❌ [REWARDS] internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
