package settlement

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/paystack"
	"github.com/sudo-init-do/bundlehub/internal/utils"
)

const maxWebhookBody = 1 << 20

// Handler exposes the reconciler over HTTP
type Handler struct {
	rec            *Reconciler
	reconcileAfter time.Duration
	log            *zap.Logger
}

func NewHandler(rec *Reconciler, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{rec: rec, reconcileAfter: cfg.Settle.ReconcileAfter, log: log}
}

type VerifyRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// Verify lets the client confirm a top-up after returning from checkout
func (h *Handler) Verify(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reference is required"})
	}

	v, err := h.rec.VerifySettlement(c.Request().Context(), userID, req.Reference)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Webhook receives Paystack events. The raw body is needed for the signature.
func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	err = h.rec.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(paystack.SignatureHeader))
	switch {
	case err == nil:
		return c.String(http.StatusOK, "Webhook processed")
	case errors.Is(err, paystack.ErrBadSignature):
		h.log.Warn("webhook rejected: bad signature", zap.String("ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	default:
		h.log.Error("webhook processing failed", zap.Error(err))
		return c.String(http.StatusInternalServerError, "Error processing webhook")
	}
}

// Reconcile sweeps stale pending top-ups (admin)
func (h *Handler) Reconcile(c echo.Context) error {
	olderThan := h.reconcileAfter
	if v := c.QueryParam("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "older_than must be a duration like 15m"})
		}
		olderThan = d
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 100
	}

	sum, err := h.rec.ReconcilePending(c.Request().Context(), olderThan, limit)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, sum)
}
