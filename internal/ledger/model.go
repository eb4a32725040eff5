package ledger

import "time"

// TransactionKind classifies a balance-affecting event
type TransactionKind string

const (
	KindTopUp      TransactionKind = "topup"
	KindPurchase   TransactionKind = "purchase"
	KindRefund     TransactionKind = "refund"
	KindWithdrawal TransactionKind = "withdrawal"
)

// TransactionStatus is the settlement state of a transaction
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// OrderStatus tracks fulfillment of a bundle purchase
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
)

// Carrier is a mobile network the platform resells bundles for
type Carrier string

const (
	CarrierMTN     Carrier = "MTN"
	CarrierTelecel Carrier = "TELECEL"
	CarrierAT      Carrier = "AT"
)

// Wallet holds a user's spendable balance in minor units (pesewas)
type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is a ledger entry owned by a wallet.
// PaymentReference is only set for gateway-mediated entries and is the
// settlement idempotency key.
type Transaction struct {
	ID               string            `json:"id"`
	WalletID         string            `json:"wallet_id"`
	Kind             TransactionKind   `json:"kind"`
	Amount           int64             `json:"amount"`
	Reference        string            `json:"reference"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	Status           TransactionStatus `json:"status"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Order is a data-bundle purchase paid from the wallet
type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Carrier       Carrier     `json:"carrier"`
	PackageID     string      `json:"package_id"`
	PackageName   string      `json:"package_name"`
	Amount        int64       `json:"amount"`
	PhoneNumber   string      `json:"phone_number"`
	Status        OrderStatus `json:"status"`
	TransactionID string      `json:"transaction_id"`
	BalanceAfter  int64       `json:"balance_after"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// MergeMetadata copies src over dst, allocating dst when needed
func MergeMetadata(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
