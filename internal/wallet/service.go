package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/alerts"
	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/metrics"
	"github.com/sudo-init-do/bundlehub/internal/paystack"
)

const (
	internalRefPrefix = "TXN_"
	paymentRefPrefix  = "wallet_topup_"
	adjustRefPrefix   = "ADJ_"
)

// Gateway is the slice of the payment provider used to start a top-up
type Gateway interface {
	InitializeCheckout(ctx context.Context, req paystack.CheckoutRequest) (*paystack.Checkout, error)
}

// Service owns every balance mutation. Handlers and the other services go
// through it (or through the store's atomic composites) and never touch
// balances directly.
type Service struct {
	store       ledger.Store
	gateway     Gateway
	notify      alerts.Notifier
	cfg         config.Wallet
	callbackURL string
	validate    *validator.Validate
	log         *zap.Logger
}

func NewService(store ledger.Store, gateway Gateway, notify alerts.Notifier, cfg *config.Config, log *zap.Logger) *Service {
	return &Service{
		store:       store,
		gateway:     gateway,
		notify:      notify,
		cfg:         cfg.Wallet,
		callbackURL: cfg.Paystack.CallbackURL,
		validate:    validator.New(),
		log:         log.Named("wallet"),
	}
}

// TopUp is what the client needs to complete payment
type TopUp struct {
	CheckoutURL       string `json:"checkout_url"`
	InternalReference string `json:"reference"`
	PaymentReference  string `json:"payment_reference"`
	Amount            int64  `json:"amount"`
}

// GetOrCreate returns the user's wallet, creating an empty one on first use
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*ledger.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ledger.Invalid("user_id", "is required")
	}
	w, err := s.store.GetOrCreateWallet(ctx, userID, s.cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("get or create wallet: %w", err)
	}
	return w, nil
}

// Balance returns the current wallet (created lazily)
func (s *Service) Balance(ctx context.Context, userID string) (*ledger.Wallet, error) {
	return s.GetOrCreate(ctx, userID)
}

// History lists the newest transactions of the user's wallet
func (s *Service) History(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	w, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.store.ListTransactions(ctx, w.ID, limit)
}

func (s *Service) validateTopUp(amount int64, email string) error {
	if amount < s.cfg.TopUpMin {
		return ledger.Invalid("amount", fmt.Sprintf("minimum top-up is %d", s.cfg.TopUpMin))
	}
	if amount > s.cfg.TopUpMax {
		return ledger.Invalid("amount", fmt.Sprintf("maximum top-up is %d", s.cfg.TopUpMax))
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return ledger.Invalid("email", "a valid email is required")
	}
	return nil
}

// InitiateTopUp opens a checkout session and records the pending top-up.
// The pending transaction is durable before the checkout URL is returned, so
// a fast webhook always finds it. A gateway failure leaves nothing behind.
func (s *Service) InitiateTopUp(ctx context.Context, userID string, amount int64, email string) (*TopUp, error) {
	if err := s.validateTopUp(amount, email); err != nil {
		metrics.TopUpsInitiated.WithLabelValues("invalid").Inc()
		return nil, err
	}
	w, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	id := ulid.Make().String()
	internalRef := internalRefPrefix + id
	paymentRef := paymentRefPrefix + id

	checkout, err := s.gateway.InitializeCheckout(ctx, paystack.CheckoutRequest{
		Email:       email,
		Amount:      amount,
		Currency:    s.cfg.Currency,
		Reference:   paymentRef,
		CallbackURL: s.callbackURL,
		Metadata: map[string]any{
			"user_id":   userID,
			"wallet_id": w.ID,
			"type":      "wallet_topup",
		},
	})
	if err != nil {
		metrics.TopUpsInitiated.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	tx := &ledger.Transaction{
		WalletID:         w.ID,
		Kind:             ledger.KindTopUp,
		Amount:           amount,
		Reference:        internalRef,
		PaymentReference: paymentRef,
		Status:           ledger.StatusPending,
		Description:      "Wallet top-up",
		Metadata: map[string]any{
			"user_id":     userID,
			"email":       email,
			"access_code": checkout.AccessCode,
		},
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		metrics.TopUpsInitiated.WithLabelValues("error").Inc()
		s.log.Error("checkout opened but pending top-up not recorded",
			zap.String("payment_reference", paymentRef), zap.Error(err))
		return nil, fmt.Errorf("record pending top-up: %w", err)
	}

	metrics.TopUpsInitiated.WithLabelValues("ok").Inc()
	s.log.Info("top-up initiated",
		zap.String("user_id", userID),
		zap.String("payment_reference", paymentRef),
		zap.Int64("amount", amount))

	return &TopUp{
		CheckoutURL:       checkout.AuthorizationURL,
		InternalReference: internalRef,
		PaymentReference:  paymentRef,
		Amount:            amount,
	}, nil
}

// ApplyCredit settles a pending top-up: the status flip and the balance
// increment are a single store write, and only the caller that flips the
// status gets applied=true. Reserved for the settlement reconciler.
func (s *Service) ApplyCredit(ctx context.Context, txID string, metadata map[string]any) (bool, int64, error) {
	won, balance, err := s.store.CompletePending(ctx, txID, metadata)
	if err != nil {
		return false, 0, fmt.Errorf("apply credit %s: %w", txID, err)
	}
	return won, balance, nil
}

// Debit takes amount from the user's wallet if the balance covers it and
// records a completed purchase transaction in the same write.
func (s *Service) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	return s.charge(ctx, userID, amount, func(walletID string) (int64, error) {
		return s.store.ApplyAdjustment(ctx, walletID, -amount, &ledger.Transaction{
			Kind:        ledger.KindPurchase,
			Amount:      amount,
			Reference:   internalRefPrefix + ulid.Make().String(),
			Status:      ledger.StatusCompleted,
			Description: "Wallet debit",
		})
	})
}

// Purchase is the debit behind a bundle order: the conditional decrement,
// the purchase transaction t and the order o commit together or not at all.
func (s *Service) Purchase(ctx context.Context, userID string, o *ledger.Order, t *ledger.Transaction) (int64, error) {
	t.Kind, t.Amount = ledger.KindPurchase, o.Amount
	return s.charge(ctx, userID, o.Amount, func(walletID string) (int64, error) {
		return s.store.PlaceOrder(ctx, walletID, o, t)
	})
}

func (s *Service) charge(ctx context.Context, userID string, amount int64, write func(walletID string) (int64, error)) (int64, error) {
	if amount <= 0 {
		return 0, ledger.Invalid("amount", "must be greater than zero")
	}
	w, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	balance, err := write(w.ID)
	recordDebit(err)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Refund credits a failed order's amount back to its owner and marks the
// order failed in one write. A second refund gets ErrOrderNotRefundable.
func (s *Service) Refund(ctx context.Context, o *ledger.Order, t *ledger.Transaction) (int64, error) {
	w, err := s.store.WalletByUser(ctx, o.UserID)
	if err != nil {
		return 0, err
	}
	t.WalletID, t.Kind, t.Amount = w.ID, ledger.KindRefund, o.Amount
	balance, err := s.store.RefundOrder(ctx, o.ID, t)
	if err != nil {
		return 0, err
	}
	metrics.Refunds.Inc()
	return balance, nil
}

// recordDebit counts a debit attempt by outcome
func recordDebit(err error) {
	switch {
	case err == nil:
		metrics.Debits.WithLabelValues("ok").Inc()
	case errors.Is(err, ledger.ErrInsufficientFunds):
		metrics.Debits.WithLabelValues("insufficient").Inc()
	default:
		metrics.Debits.WithLabelValues("error").Inc()
	}
}

// WarnIfLow queues a low-balance notice when balance dropped under the threshold
func (s *Service) WarnIfLow(ctx context.Context, userID, email string, balance int64) {
	if s.cfg.LowBalanceThreshold <= 0 || balance >= s.cfg.LowBalanceThreshold || email == "" {
		return
	}
	if err := s.notify.LowBalance(ctx, userID, email, balance); err != nil {
		s.log.Warn("low balance alert not queued", zap.String("user_id", userID), zap.Error(err))
	}
}

// Adjust applies a signed admin correction with its own completed transaction
func (s *Service) Adjust(ctx context.Context, adminID, userID string, delta int64, description string) (int64, error) {
	if delta == 0 {
		return 0, ledger.Invalid("amount", "must not be zero")
	}
	if strings.TrimSpace(description) == "" {
		return 0, ledger.Invalid("description", "is required")
	}
	w, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}

	kind, amount := ledger.KindTopUp, delta
	if delta < 0 {
		kind, amount = ledger.KindWithdrawal, -delta
	}
	tx := &ledger.Transaction{
		Kind:        kind,
		Amount:      amount,
		Reference:   adjustRefPrefix + ulid.Make().String(),
		Status:      ledger.StatusCompleted,
		Description: description,
		Metadata: map[string]any{
			"type":     "admin_adjustment",
			"admin_id": adminID,
		},
	}
	balance, err := s.store.ApplyAdjustment(ctx, w.ID, delta, tx)
	if err != nil {
		return 0, err
	}
	s.log.Info("wallet adjusted",
		zap.String("admin_id", adminID),
		zap.String("user_id", userID),
		zap.Int64("delta", delta),
		zap.Int64("balance", balance))
	return balance, nil
}
