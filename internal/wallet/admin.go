package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bundlehub/internal/utils"
)

// AdjustRequest is a signed correction in minor units
type AdjustRequest struct {
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required,max=255"`
}

// AdminAdjust credits (positive) or debits (negative) a user's wallet
func (h *Handler) AdminAdjust(c echo.Context) error {
	adminID, _ := utils.UserID(c)
	userID := c.Param("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user ID is required"})
	}

	var req AdjustRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	balance, err := h.svc.Adjust(c.Request().Context(), adminID, userID, req.Amount, req.Description)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": userID,
		"balance": balance,
		"message": "wallet balance adjusted",
	})
}

// AdminUserWallet returns one user's wallet and recent transactions (admin view)
func (h *Handler) AdminUserWallet(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user ID is required"})
	}

	ctx := c.Request().Context()
	w, err := h.svc.GetOrCreate(ctx, userID)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	txs, err := h.svc.History(ctx, userID, 0)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"wallet":       w,
		"transactions": ToTransactions(txs, w.Currency),
	})
}
