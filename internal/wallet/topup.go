package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bundlehub/internal/utils"
)

// TopupRequest amount is in minor units. Email falls back to the token's email claim.
type TopupRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Email  string `json:"email" validate:"omitempty,email"`
}

// TopUp opens a Paystack checkout and records the pending top-up
func (h *Handler) TopUp(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	req := new(TopupRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.Email == "" {
		req.Email, _ = c.Get("email").(string)
	}

	topup, err := h.svc.InitiateTopUp(c.Request().Context(), userID, req.Amount, req.Email)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":            "pending",
		"checkout_url":      topup.CheckoutURL,
		"reference":         topup.InternalReference,
		"payment_reference": topup.PaymentReference,
		"amount":            topup.Amount,
	})
}
