// handlers/distribution_routes.go
package handlers

import (
	"errors"

	"roi-distribution-system/middleware"
	"roi-distribution-system/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate = validator.New()

type runRequest struct {
	UserID string `json:"user_id" validate:"omitempty,max=64"`
}

type creditRequest struct {
	UserID string          `json:"user_id" validate:"required,max=64"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type" validate:"required,max=32"`
}

type linkRequest struct {
	UserID     string `json:"user_id" validate:"required,max=64"`
	ReferrerID string `json:"referrer_id" validate:"required,max=64,nefield=UserID"`
}

type DistributionHandler struct {
	Scheduler *services.Scheduler
	Engine    *services.DistributionService
	Referrals *services.ReferralService
	Log       *zap.Logger
}

// SetupDistributionRoutes mounts the admin surface. Every route requires an
// admin user forwarded by the Gateway.
func SetupDistributionRoutes(app *fiber.App, h *DistributionHandler) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(h.Log), middleware.RequireRole("admin"))

	roi := admin.Group("/roi")
	roi.Post("/run", h.TriggerRun)
	roi.Post("/backfill", h.TriggerBackfill)
	roi.Post("/credit", h.ManualCredit)
	roi.Get("/status", h.Status)
	roi.Get("/runs", h.ListRuns)

	referrals := admin.Group("/referrals")
	referrals.Post("/link", h.LinkReferrer)
	referrals.Delete("/:userId/chain", h.ResetChain)
}

func (h *DistributionHandler) TriggerRun(c *fiber.Ctx) error {
	var req runRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "validation failed", err)
	}

	summary, err := h.Scheduler.TriggerDaily(c.UserContext(), services.DailyRunOptions{
		UserID:  req.UserID,
		ActorID: middleware.ActorID(c),
	})
	if err != nil {
		return h.fail(c, "daily run failed", err)
	}
	return c.JSON(summary)
}

func (h *DistributionHandler) TriggerBackfill(c *fiber.Ctx) error {
	summary, err := h.Scheduler.TriggerBackfill(c.UserContext(), middleware.ActorID(c))
	if err != nil {
		return h.fail(c, "backfill failed", err)
	}
	return c.JSON(summary)
}

func (h *DistributionHandler) ManualCredit(c *fiber.Ctx) error {
	var req creditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "validation failed", err)
	}

	res, err := h.Engine.ManualCredit(c.UserContext(), services.ManualCreditInput{
		UserID:  req.UserID,
		Amount:  req.Amount,
		Type:    req.Type,
		ActorID: middleware.ActorID(c),
	})
	if err != nil {
		return h.fail(c, "manual credit failed", err)
	}
	return c.JSON(res)
}

func (h *DistributionHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.Scheduler.Status())
}

func (h *DistributionHandler) ListRuns(c *fiber.Ctx) error {
	page, err := h.Engine.ListRuns(c.UserContext(), c.QueryInt("limit", 0), c.QueryInt("offset", 0))
	if err != nil {
		return h.fail(c, "failed to list runs", err)
	}
	return c.JSON(page)
}

func (h *DistributionHandler) LinkReferrer(c *fiber.Ctx) error {
	var req linkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "validation failed", err)
	}

	user, err := h.Referrals.LinkReferrer(c.UserContext(), req.UserID, req.ReferrerID, middleware.ActorID(c))
	if err != nil {
		return h.fail(c, "referral link failed", err)
	}
	return c.JSON(fiber.Map{
		"user_id":        user.ExternalUserID,
		"referrer_id":    user.ReferrerID,
		"referral_chain": user.ReferralChain,
	})
}

func (h *DistributionHandler) ResetChain(c *fiber.Ctx) error {
	if err := h.Referrals.ResetReferralChain(c.UserContext(), c.Params("userId"), middleware.ActorID(c)); err != nil {
		return h.fail(c, "referral reset failed", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func (h *DistributionHandler) fail(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.Log.Error("[API] "+msg, zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidROIType),
		errors.Is(err, services.ErrSelfReferral):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrReferrerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrReferralCycle),
		errors.Is(err, services.ErrReferrerAlreadySet):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
