package ledger

import (
	"context"
	"time"
)

// Store is the durable ledger behind the wallet core.
//
// Every method that moves money is a single atomic write against the
// backend: balance changes are conditional updates, never read-then-write.
type Store interface {
	GetOrCreateWallet(ctx context.Context, userID, currency string) (*Wallet, error)
	WalletByUser(ctx context.Context, userID string) (*Wallet, error)
	ListWallets(ctx context.Context) ([]Wallet, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	TransactionByPaymentRef(ctx context.Context, ref string) (*Transaction, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]Transaction, error)
	ListAllTransactions(ctx context.Context, limit int) ([]Transaction, error)
	ListPendingTopUps(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error)

	// CompletePending moves a pending transaction to completed and credits
	// its wallet in the same write. won is false, and nothing changes, when
	// the transaction was no longer pending.
	CompletePending(ctx context.Context, txID string, metadata map[string]any) (won bool, newBalance int64, err error)
	// FailPending moves a pending transaction to failed with no balance effect.
	FailPending(ctx context.Context, txID string, metadata map[string]any) (bool, error)
	// MergeMetadata enriches metadata regardless of status.
	MergeMetadata(ctx context.Context, txID string, metadata map[string]any) error

	// ApplyAdjustment applies a signed delta and records t, atomically. A
	// negative delta only lands if the balance stays non-negative.
	ApplyAdjustment(ctx context.Context, walletID string, delta int64, t *Transaction) (int64, error)

	// PlaceOrder debits o.Amount, records the purchase transaction t and
	// inserts o as one atomic write.
	PlaceOrder(ctx context.Context, walletID string, o *Order, t *Transaction) (int64, error)
	OrderByID(ctx context.Context, id string) (*Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]Order, error)
	TransitionOrder(ctx context.Context, id string, from []OrderStatus, to OrderStatus) (bool, error)
	// RefundOrder fails a pending/processing order, credits t.Amount to
	// t.WalletID and records t. Returns ErrOrderNotRefundable if the order
	// already left those states.
	RefundOrder(ctx context.Context, orderID string, t *Transaction) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
