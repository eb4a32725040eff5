package wallet

import (
	"time"

	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/money"
)

// BalanceResponse carries minor units plus a display string
type BalanceResponse struct {
	UserID   string `json:"user_id"`
	Balance  int64  `json:"balance"`
	Display  string `json:"display"`
	Currency string `json:"currency"`
}

// Transaction model for responses
type Transaction struct {
	ID               string    `json:"id"`
	Kind             string    `json:"type"`
	Amount           int64     `json:"amount"`
	Display          string    `json:"display"`
	Status           string    `json:"status"`
	Reference        string    `json:"reference"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toTransaction(t ledger.Transaction, currency string) Transaction {
	return Transaction{
		ID:               t.ID,
		Kind:             string(t.Kind),
		Amount:           t.Amount,
		Display:          money.Format(t.Amount, currency),
		Status:           string(t.Status),
		Reference:        t.Reference,
		PaymentReference: t.PaymentReference,
		Description:      t.Description,
		CreatedAt:        t.CreatedAt,
	}
}

// ToTransactions renders ledger rows for the API
func ToTransactions(txs []ledger.Transaction, currency string) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransaction(t, currency))
	}
	return out
}
