package wallet

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bundlehub/internal/utils"
)

// Transactions returns the newest wallet transactions for the authenticated user
func (h *Handler) Transactions(c echo.Context) error {
	uid, ok := utils.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "unauthorized or invalid user",
		})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	txs, err := h.svc.History(c.Request().Context(), uid, limit)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"transactions": ToTransactions(txs, h.svc.cfg.Currency)})
}
