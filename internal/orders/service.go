// Package orders sells data bundles against the wallet balance.
package orders

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/alerts"
	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/ledger"
)

const (
	purchaseRefPrefix = "TXN_"
	refundRefPrefix   = "RFD_"
)

// local numbers like 0241234567; international numbers go through e164
var localPhone = regexp.MustCompile(`^0[2-5][0-9]{8}$`)

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

var fieldNames = map[string]string{
	"UserID":      "user_id",
	"Carrier":     "carrier",
	"PackageID":   "package_id",
	"Amount":      "amount",
	"PhoneNumber": "phone_number",
}

// Wallets is the slice of the wallet service orders depend on
type Wallets interface {
	Purchase(ctx context.Context, userID string, o *ledger.Order, t *ledger.Transaction) (int64, error)
	Refund(ctx context.Context, o *ledger.Order, t *ledger.Transaction) (int64, error)
	WarnIfLow(ctx context.Context, userID, email string, balance int64)
}

// PlaceOrderRequest amount is in minor units
type PlaceOrderRequest struct {
	UserID      string `validate:"required"`
	Email       string
	Carrier     string `validate:"required"`
	PackageID   string `validate:"required"`
	PackageName string
	Amount      int64  `validate:"gt=0"`
	PhoneNumber string `validate:"required,phone"`
}

// Placed is the outcome of a successful purchase
type Placed struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	NewBalance    int64  `json:"new_balance"`
}

type Service struct {
	store    ledger.Store
	wallets  Wallets
	notify   alerts.Notifier
	carriers map[ledger.Carrier]bool
	validate *validator.Validate
	log      *zap.Logger
}

func NewService(store ledger.Store, wallets Wallets, notify alerts.Notifier, cfg *config.Config, log *zap.Logger) *Service {
	carriers := make(map[ledger.Carrier]bool, len(cfg.Orders.EnabledCarriers))
	for _, c := range cfg.Orders.EnabledCarriers {
		carriers[ledger.Carrier(strings.ToUpper(c))] = true
	}
	v := validator.New()
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return localPhone.MatchString(p) || v.Var(p, "e164") == nil
	}); err != nil {
		panic(fmt.Sprintf("orders: register phone validation: %v", err))
	}
	return &Service{
		store:    store,
		wallets:  wallets,
		notify:   notify,
		carriers: carriers,
		validate: v,
		log:      log.Named("orders"),
	}
}

func (s *Service) validateOrder(req *PlaceOrderRequest) error {
	req.Carrier = strings.ToUpper(strings.TrimSpace(req.Carrier))
	req.PhoneNumber = strings.ReplaceAll(strings.TrimSpace(req.PhoneNumber), " ", "")
	req.PackageID = strings.TrimSpace(req.PackageID)

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := fieldNames[fe.Field()]
			switch fe.Tag() {
			case "phone":
				return ledger.Invalid("phone_number", "must be a valid phone number")
			case "gt":
				return ledger.Invalid(field, "must be greater than zero")
			}
			return ledger.Invalid(field, "is required")
		}
		return ledger.Invalid("request", err.Error())
	}
	if !s.carriers[ledger.Carrier(req.Carrier)] {
		return ledger.Invalid("carrier", fmt.Sprintf("%s bundles are not available", req.Carrier))
	}
	if strings.TrimSpace(req.PackageName) == "" {
		req.PackageName = defaultPackageName(req.PackageID)
	}
	return nil
}

// defaultPackageName turns a bare size such as "2" into "2GB"
func defaultPackageName(packageID string) string {
	if digitsOnly.MatchString(packageID) {
		return packageID + "GB"
	}
	return packageID
}

// PlaceOrder debits the wallet and records the order in one atomic write.
// Either both exist afterwards or neither does.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Placed, error) {
	if err := s.validateOrder(&req); err != nil {
		return nil, err
	}
	ref := purchaseRefPrefix + ulid.Make().String()
	order := &ledger.Order{
		UserID:        req.UserID,
		Carrier:       ledger.Carrier(req.Carrier),
		PackageID:     req.PackageID,
		PackageName:   req.PackageName,
		Amount:        req.Amount,
		PhoneNumber:   req.PhoneNumber,
		Status:        ledger.OrderPending,
		TransactionID: ref,
	}
	tx := &ledger.Transaction{
		Reference:   ref,
		Status:      ledger.StatusCompleted,
		Description: fmt.Sprintf("%s %s data bundle", req.Carrier, req.PackageName),
		Metadata: map[string]any{
			"package_id":   req.PackageID,
			"phone_number": req.PhoneNumber,
		},
	}

	balance, err := s.wallets.Purchase(ctx, req.UserID, order, tx)
	if err != nil {
		if !errors.Is(err, ledger.ErrInsufficientFunds) && !ledger.IsValidation(err) {
			s.log.Error("order not placed", zap.String("user_id", req.UserID), zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", req.UserID),
		zap.String("carrier", req.Carrier),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", balance))

	if err := s.notify.OrderPlaced(ctx, alerts.OrderPlacedPayload{
		OrderID:     order.ID,
		UserID:      req.UserID,
		Carrier:     req.Carrier,
		PackageName: req.PackageName,
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
	}, req.Email); err != nil {
		s.log.Warn("order alert not queued", zap.String("order_id", order.ID), zap.Error(err))
	}
	s.wallets.WarnIfLow(ctx, req.UserID, req.Email, balance)

	return &Placed{OrderID: order.ID, TransactionID: ref, NewBalance: balance}, nil
}

func (s *Service) UserOrders(ctx context.Context, userID string) ([]ledger.Order, error) {
	return s.store.OrdersByUser(ctx, userID)
}

// allowed lists the states each target may be entered from
var allowed = map[ledger.OrderStatus][]ledger.OrderStatus{
	ledger.OrderProcessing: {ledger.OrderPending},
	ledger.OrderCompleted:  {ledger.OrderPending, ledger.OrderProcessing},
	ledger.OrderFailed:     {ledger.OrderPending, ledger.OrderProcessing},
}

// UpdateStatus advances fulfillment. Moving to failed refunds the order
// amount in the same write, and only once.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to ledger.OrderStatus) (*ledger.Order, error) {
	from, ok := allowed[to]
	if !ok {
		return nil, ledger.Invalid("status", fmt.Sprintf("cannot move an order to %q", to))
	}
	o, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("order_id", orderID), zap.String("from", string(o.Status)), zap.String("to", string(to)))

	if to == ledger.OrderFailed {
		return s.refund(ctx, log, o)
	}

	moved, err := s.store.TransitionOrder(ctx, orderID, from, to)
	if err != nil {
		return nil, err
	}
	if !moved {
		current, err := s.store.OrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, ledger.Invalid("status", fmt.Sprintf("order is %s and cannot move to %s", current.Status, to))
	}
	log.Info("order status updated")
	return s.store.OrderByID(ctx, orderID)
}

func (s *Service) refund(ctx context.Context, log *zap.Logger, o *ledger.Order) (*ledger.Order, error) {
	balance, err := s.wallets.Refund(ctx, o, &ledger.Transaction{
		Reference:   refundRefPrefix + ulid.Make().String(),
		Status:      ledger.StatusCompleted,
		Description: fmt.Sprintf("Refund for failed %s %s order", o.Carrier, o.PackageName),
		Metadata: map[string]any{
			"order_id":       o.ID,
			"transaction_id": o.TransactionID,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Info("order failed and refunded", zap.Int64("amount", o.Amount), zap.Int64("balance", balance))
	return s.store.OrderByID(ctx, o.ID)
}
