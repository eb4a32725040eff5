package utils

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/paystack"
)

// ErrorJSON maps domain errors onto HTTP status codes.
// Unknown errors are logged and hidden behind a generic 500.
func ErrorJSON(c echo.Context, log *zap.Logger, err error) error {
	var (
		verr *ledger.ValidationError
		ierr *ledger.InsufficientFundsError
		gerr *paystack.GatewayError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &ierr):
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"error":     "insufficient balance",
			"balance":   ierr.Balance,
			"requested": ierr.Requested,
		})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "insufficient balance"})
	case errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, ledger.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, ledger.ErrOrderNotRefundable), errors.Is(err, ledger.ErrSettlementConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.As(err, &gerr):
		log.Warn("payment gateway error", zap.Error(err), zap.Bool("temporary", gerr.Temporary()))
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":     "payment provider unavailable, please try again",
			"retryable": gerr.Temporary(),
		})
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// UserID reads the caller set by the JWT middleware
func UserID(c echo.Context) (string, bool) {
	uid, ok := c.Get("user_id").(string)
	return uid, ok && uid != ""
}
