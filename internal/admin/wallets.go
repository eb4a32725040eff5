// Package admin serves the read-only back-office views over the ledger.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/money"
	"github.com/sudo-init-do/bundlehub/internal/utils"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

type Handler struct {
	store ledger.Store
	log   *zap.Logger
}

func NewHandler(store ledger.Store, log *zap.Logger) *Handler {
	return &Handler{store: store, log: log}
}

type AdminWallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Display   string    `json:"display"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func limitParam(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// GET /admin/wallets
func (h *Handler) ListWallets(c echo.Context) error {
	wallets, err := h.store.ListWallets(c.Request().Context())
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	out := make([]AdminWallet, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, AdminWallet{
			ID:        w.ID,
			UserID:    w.UserID,
			Balance:   w.Balance,
			Display:   money.Format(w.Balance, w.Currency),
			Currency:  w.Currency,
			CreatedAt: w.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"wallets": out})
}

// GET /admin/transactions
func (h *Handler) ListTransactions(c echo.Context) error {
	txs, err := h.store.ListAllTransactions(c.Request().Context(), limitParam(c))
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// GET /admin/topups/pending lists top-ups still waiting on the gateway
func (h *Handler) PendingTopUps(c echo.Context) error {
	txs, err := h.store.ListPendingTopUps(c.Request().Context(), time.Now(), limitParam(c))
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	return c.JSON(http.StatusOK, echo.Map{"topups": txs})
}
