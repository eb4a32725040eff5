package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/money"
	"github.com/sudo-init-do/bundlehub/internal/utils"
)

// Handler exposes the wallet service over HTTP
type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Balance returns the authenticated user's wallet balance
func (h *Handler) Balance(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	w, err := h.svc.Balance(c.Request().Context(), userID)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}

	return c.JSON(http.StatusOK, BalanceResponse{
		UserID:   userID,
		Balance:  w.Balance,
		Display:  money.Format(w.Balance, w.Currency),
		Currency: w.Currency,
	})
}
