// Package settlement confirms gateway-funded top-ups exactly once, whichever
// of the webhook, the client's verify call or the pending sweep gets there first.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/alerts"
	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/idempotency"
	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/metrics"
	"github.com/sudo-init-do/bundlehub/internal/paystack"
)

const (
	SourceWebhook   = "webhook"
	SourceVerify    = "verify"
	SourceReconcile = "reconcile"
)

// Verifier asks the gateway for the authoritative status of a charge
type Verifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error)
}

// Crediter applies the pending→completed flip together with the wallet credit
type Crediter interface {
	ApplyCredit(ctx context.Context, txID string, metadata map[string]any) (bool, int64, error)
	GetOrCreate(ctx context.Context, userID string) (*ledger.Wallet, error)
}

// Confirmation is one trigger's view of the payment outcome
type Confirmation struct {
	Status          string
	Amount          int64
	PaidAt          string
	Channel         string
	GatewayResponse string
	IPAddress       string
	Source          string
}

func (c Confirmation) succeeded() bool { return c.Status == paystack.StatusSuccess }

// terminalFailure is true for gateway statuses that can never turn into a payment.
// abandoned/ongoing/pending stay pending: the customer may still finish checkout.
func (c Confirmation) terminalFailure() bool {
	return c.Status == "failed" || c.Status == "reversed"
}

func (c Confirmation) metadata() map[string]any {
	m := map[string]any{
		c.Source + "_confirmed_at": time.Now().UTC().Format(time.RFC3339),
		"gateway_status":           c.Status,
	}
	for k, v := range map[string]string{
		"paid_at":          c.PaidAt,
		"channel":          c.Channel,
		"gateway_response": c.GatewayResponse,
		"ip_address":       c.IPAddress,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// FromVerification adapts a verify response
func FromVerification(v *paystack.Verification, source string) Confirmation {
	return Confirmation{
		Status:          v.Status,
		Amount:          v.Amount,
		PaidAt:          v.PaidAt,
		Channel:         v.Channel,
		GatewayResponse: v.GatewayResponse,
		IPAddress:       v.IPAddress,
		Source:          source,
	}
}

// Result of a settlement attempt. NewBalance is only meaningful when Applied.
type Result struct {
	Transaction *ledger.Transaction
	NewBalance  int64
	Applied     bool
}

// Reconciler drives pending top-ups to a terminal state
type Reconciler struct {
	store   ledger.Store
	wallet  Crediter
	gateway Verifier
	dedupe  idempotency.Deduper
	notify  alerts.Notifier
	secret  string
	retries int
	delay   time.Duration
	log     *zap.Logger
}

func NewReconciler(store ledger.Store, wallet Crediter, gateway Verifier, dedupe idempotency.Deduper,
	notify alerts.Notifier, cfg *config.Config, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		wallet:  wallet,
		gateway: gateway,
		dedupe:  dedupe,
		notify:  notify,
		secret:  cfg.Paystack.SecretKey,
		retries: cfg.Settle.LookupRetries,
		delay:   cfg.Settle.LookupDelay,
		log:     log.Named("settlement"),
	}
}

// lookup tolerates a webhook that lands before the initiating request has
// committed its pending row.
func (r *Reconciler) lookup(ctx context.Context, paymentRef string) (*ledger.Transaction, error) {
	for attempt := 0; ; attempt++ {
		tx, err := r.store.TransactionByPaymentRef(ctx, paymentRef)
		if err == nil || !errors.Is(err, ledger.ErrTransactionNotFound) || attempt >= r.retries {
			return tx, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.delay):
		}
	}
}

// Settle applies a confirmation to the transaction behind paymentRef.
// Repeated or concurrent calls credit the wallet at most once; a lost race is
// reported as success with Applied=false.
func (r *Reconciler) Settle(ctx context.Context, paymentRef string, conf Confirmation) (*Result, error) {
	log := r.log.With(zap.String("payment_reference", paymentRef), zap.String("source", conf.Source))

	tx, err := r.lookup(ctx, paymentRef)
	if err != nil {
		r.count(conf.Source, err)
		return nil, err
	}
	meta := conf.metadata()

	switch tx.Status {
	case ledger.StatusCompleted:
		r.record(ctx, log, tx.ID, meta)
		metrics.Settlements.WithLabelValues(conf.Source, "already_settled").Inc()
		return &Result{Transaction: tx}, nil

	case ledger.StatusFailed:
		r.record(ctx, log, tx.ID, meta)
		if conf.succeeded() {
			return nil, r.conflict(ctx, log, conf.Source, tx, "gateway reports success for a failed top-up")
		}
		metrics.Settlements.WithLabelValues(conf.Source, "failed").Inc()
		return &Result{Transaction: tx}, nil
	}

	if !conf.succeeded() {
		if !conf.terminalFailure() {
			r.record(ctx, log, tx.ID, meta)
			metrics.Settlements.WithLabelValues(conf.Source, "still_pending").Inc()
			return &Result{Transaction: tx}, nil
		}
		if _, err := r.store.FailPending(ctx, tx.ID, meta); err != nil {
			r.count(conf.Source, err)
			return nil, fmt.Errorf("fail pending %s: %w", paymentRef, err)
		}
		log.Info("top-up marked failed", zap.String("gateway_status", conf.Status))
		metrics.Settlements.WithLabelValues(conf.Source, "failed").Inc()
		return r.reload(ctx, paymentRef, false, 0)
	}

	if conf.Amount > 0 && conf.Amount != tx.Amount {
		r.record(ctx, log, tx.ID, meta)
		return nil, r.conflict(ctx, log, conf.Source, tx,
			fmt.Sprintf("gateway amount %d does not match recorded amount %d", conf.Amount, tx.Amount))
	}

	meta["settled_via"] = conf.Source
	applied, balance, err := r.wallet.ApplyCredit(ctx, tx.ID, meta)
	if err != nil {
		r.count(conf.Source, err)
		return nil, err
	}
	if !applied {
		delete(meta, "settled_via")
		r.record(ctx, log, tx.ID, meta)
		metrics.Settlements.WithLabelValues(conf.Source, "already_settled").Inc()
		return r.reload(ctx, paymentRef, false, 0)
	}

	metrics.Settlements.WithLabelValues(conf.Source, "credited").Inc()
	log.Info("top-up credited", zap.Int64("amount", tx.Amount), zap.Int64("balance", balance))
	r.announce(ctx, log, tx, balance)
	return r.reload(ctx, paymentRef, true, balance)
}

func (r *Reconciler) reload(ctx context.Context, paymentRef string, applied bool, balance int64) (*Result, error) {
	tx, err := r.store.TransactionByPaymentRef(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	return &Result{Transaction: tx, NewBalance: balance, Applied: applied}, nil
}

// record merges informational metadata; failure here never changes the outcome
func (r *Reconciler) record(ctx context.Context, log *zap.Logger, txID string, meta map[string]any) {
	if err := r.store.MergeMetadata(ctx, txID, meta); err != nil {
		log.Warn("settlement metadata not recorded", zap.Error(err))
	}
}

func (r *Reconciler) conflict(ctx context.Context, log *zap.Logger, source string, tx *ledger.Transaction, why string) error {
	metrics.Settlements.WithLabelValues(source, "conflict").Inc()
	log.Error("settlement conflict, manual review needed", zap.String("transaction_id", tx.ID), zap.String("reason", why))
	msg := fmt.Sprintf("Top-up %s (transaction %s, wallet %s): %s.", tx.PaymentReference, tx.ID, tx.WalletID, why)
	if err := r.notify.AdminAlert(ctx, "critical", msg); err != nil {
		log.Warn("admin alert not queued", zap.Error(err))
	}
	return fmt.Errorf("%s: %w", why, ledger.ErrSettlementConflict)
}

func (r *Reconciler) announce(ctx context.Context, log *zap.Logger, tx *ledger.Transaction, balance int64) {
	userID, _ := tx.Metadata["user_id"].(string)
	email, _ := tx.Metadata["email"].(string)
	if err := r.notify.TopUpCompleted(ctx, userID, email, tx.PaymentReference, tx.Amount, balance); err != nil {
		log.Warn("top-up notification not queued", zap.Error(err))
	}
}

func (r *Reconciler) count(source string, err error) {
	outcome := "error"
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		outcome = "not_found"
	}
	metrics.Settlements.WithLabelValues(source, outcome).Inc()
}

// Verified is returned to the client polling after checkout
type Verified struct {
	NewBalance int64                    `json:"new_balance"`
	Status     ledger.TransactionStatus `json:"status"`
	Reference  string                   `json:"reference"`
}

// VerifySettlement is the client-pull trigger. References owned by another
// user are reported as not found.
func (r *Reconciler) VerifySettlement(ctx context.Context, userID, paymentRef string) (*Verified, error) {
	if paymentRef == "" {
		return nil, ledger.Invalid("reference", "is required")
	}
	w, err := r.wallet.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	tx, err := r.store.TransactionByPaymentRef(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	if tx.WalletID != w.ID || tx.Kind != ledger.KindTopUp {
		return nil, ledger.ErrTransactionNotFound
	}

	if tx.Status == ledger.StatusPending {
		v, err := r.gateway.VerifyTransaction(ctx, paymentRef)
		if err != nil {
			return nil, err
		}
		res, err := r.Settle(ctx, paymentRef, FromVerification(v, SourceVerify))
		if err != nil {
			return nil, err
		}
		tx = res.Transaction
	}

	current, err := r.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Verified{NewBalance: current.Balance, Status: tx.Status, Reference: paymentRef}, nil
}

// HandleWebhook verifies and applies one gateway delivery.
// Unknown references are acknowledged (nil error) so the gateway stops retrying.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	ev, err := paystack.ParseEvent(r.secret, body, signature)
	if err != nil {
		return err
	}
	log := r.log.With(zap.String("event", ev.Event), zap.String("payment_reference", ev.Data.Reference))
	if ev.Event != paystack.EventChargeSuccess {
		log.Debug("webhook event ignored")
		return nil
	}
	if ev.Data.Reference == "" {
		log.Warn("charge.success without reference")
		return nil
	}

	fresh, err := r.dedupe.Claim(ctx, ev.Data.Reference)
	if err != nil {
		return err
	}
	if !fresh {
		metrics.WebhookDuplicates.Inc()
		log.Info("duplicate webhook delivery dropped")
		return nil
	}

	// charge.success is itself the success signal; data.status is optional
	status := ev.Data.Status
	if status == "" {
		status = paystack.StatusSuccess
	}
	res, err := r.Settle(ctx, ev.Data.Reference, Confirmation{
		Status:          status,
		Amount:          ev.Data.Amount,
		PaidAt:          ev.Data.PaidAt,
		Channel:         ev.Data.Channel,
		GatewayResponse: ev.Data.GatewayResponse,
		IPAddress:       ev.Data.IPAddress,
		Source:          SourceWebhook,
	})
	switch {
	case err == nil:
		if res.Transaction != nil && res.Transaction.Status == ledger.StatusPending {
			// nothing settled, so a redelivery must still get through
			r.release(ctx, log, ev.Data.Reference)
		}
		return nil
	case errors.Is(err, ledger.ErrTransactionNotFound):
		log.Warn("webhook for unknown reference acknowledged")
		return nil
	case errors.Is(err, ledger.ErrSettlementConflict):
		return nil
	default:
		r.release(ctx, log, ev.Data.Reference)
		return err
	}
}

func (r *Reconciler) release(ctx context.Context, log *zap.Logger, ref string) {
	if err := r.dedupe.Release(ctx, ref); err != nil {
		log.Warn("dedupe key not released", zap.Error(err))
	}
}

// ReconcileSummary counts what one sweep did
type ReconcileSummary struct {
	Checked  int `json:"checked"`
	Credited int `json:"credited"`
	Failed   int `json:"failed"`
	Pending  int `json:"pending"`
	Errors   int `json:"errors"`
}

// ReconcilePending re-verifies top-ups left pending longer than olderThan,
// recovering payments whose webhook never arrived.
func (r *Reconciler) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileSummary, error) {
	pending, err := r.store.ListPendingTopUps(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending top-ups: %w", err)
	}

	sum := &ReconcileSummary{}
	for _, tx := range pending {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Checked++
		log := r.log.With(zap.String("payment_reference", tx.PaymentReference))

		v, err := r.gateway.VerifyTransaction(ctx, tx.PaymentReference)
		if err != nil {
			sum.Errors++
			log.Warn("reconcile verify failed", zap.Error(err))
			continue
		}
		res, err := r.Settle(ctx, tx.PaymentReference, FromVerification(v, SourceReconcile))
		if err != nil {
			sum.Errors++
			log.Warn("reconcile settle failed", zap.Error(err))
			continue
		}
		switch {
		case res.Applied:
			sum.Credited++
		case res.Transaction.Status == ledger.StatusFailed:
			sum.Failed++
		case res.Transaction.Status == ledger.StatusPending:
			sum.Pending++
		}
	}
	r.log.Info("pending top-ups reconciled",
		zap.Int("checked", sum.Checked), zap.Int("credited", sum.Credited),
		zap.Int("failed", sum.Failed), zap.Int("errors", sum.Errors))
	return sum, nil
}
