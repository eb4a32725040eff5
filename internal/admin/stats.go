package admin

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bundlehub/internal/utils"
)

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	wallets, err := h.store.ListWallets(ctx)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	var float int64
	for _, w := range wallets {
		float += w.Balance
	}
	pending, err := h.store.ListPendingTopUps(ctx, time.Now(), maxLimit)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"wallets":        len(wallets),
		"total_balance":  float,
		"pending_topups": len(pending),
	})
}
