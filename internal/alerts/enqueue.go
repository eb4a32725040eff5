package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/money"
)

// Notifier is what the wallet, settlement and order services publish to.
// Every call is best-effort: callers log failures and carry on.
type Notifier interface {
	TopUpCompleted(ctx context.Context, userID, email, paymentRef string, amount, balance int64) error
	OrderPlaced(ctx context.Context, p OrderPlacedPayload, email string) error
	LowBalance(ctx context.Context, userID, email string, balance int64) error
	AdminAlert(ctx context.Context, severity, message string) error
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns notifications into asynq tasks
type Enqueuer struct {
	client     taskEnqueuer
	adminEmail string
	currency   string
	threshold  int64
}

func NewEnqueuer(client *asynq.Client, cfg *config.Config) *Enqueuer {
	return &Enqueuer{
		client:     client,
		adminEmail: cfg.Alerts.AdminEmail,
		currency:   cfg.Wallet.Currency,
		threshold:  cfg.Wallet.LowBalanceThreshold,
	}
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType, queue string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(taskType, b), asynq.Queue(queue), asynq.MaxRetry(5))
	return err
}

// TopUpCompleted tells the owner their wallet was credited
func (e *Enqueuer) TopUpCompleted(ctx context.Context, userID, email, paymentRef string, amount, balance int64) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "Your wallet top-up was successful",
		Body: fmt.Sprintf("Your wallet has been credited with %s (ref %s).\n\nNew balance: %s.",
			money.Format(amount, e.currency), paymentRef, money.Format(balance, e.currency)),
	}
	payload := TopUpCompletedPayload{UserID: userID, PaymentReference: paymentRef, Amount: amount, Balance: balance, Envelope: env, SentAt: time.Now()}
	return e.enqueue(ctx, TaskTopUpCompleted, queueEmails, payload)
}

// OrderPlaced confirms a bundle purchase to the buyer
func (e *Enqueuer) OrderPlaced(ctx context.Context, p OrderPlacedPayload, email string) error {
	p.Envelope = EmailEnvelope{
		To:      email,
		Subject: "Your data bundle order has been received",
		Body: fmt.Sprintf("Order %s: %s %s for %s, paid %s from your wallet.",
			p.OrderID, p.Carrier, p.PackageName, p.PhoneNumber, money.Format(p.Amount, e.currency)),
	}
	p.SentAt = time.Now()
	return e.enqueue(ctx, TaskOrderPlaced, queueEmails, p)
}

// LowBalance warns the owner once a debit leaves them under the configured threshold
func (e *Enqueuer) LowBalance(ctx context.Context, userID, email string, balance int64) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "Your wallet balance is running low",
		Body: fmt.Sprintf("Your wallet balance is %s. Top up to keep buying bundles without interruption.",
			money.Format(balance, e.currency)),
	}
	payload := LowBalancePayload{UserID: userID, Balance: balance, Threshold: e.threshold, Envelope: env, SentAt: time.Now()}
	return e.enqueue(ctx, TaskLowBalance, queueAlerts, payload)
}

// AdminAlert sends an alert to the operations mailbox
func (e *Enqueuer) AdminAlert(ctx context.Context, severity, message string) error {
	env := EmailEnvelope{To: e.adminEmail, Subject: "[" + severity + "] BundleHub alert", Body: message}
	payload := AdminAlertPayload{Severity: severity, Message: message, Envelope: env, SentAt: time.Now()}
	return e.enqueue(ctx, TaskAdminAlert, queueAlerts, payload)
}

// Nop drops every notification. Used when ALERTS_ENABLED=false and in tests.
type Nop struct{}

func (Nop) TopUpCompleted(context.Context, string, string, string, int64, int64) error { return nil }
func (Nop) OrderPlaced(context.Context, OrderPlacedPayload, string) error              { return nil }
func (Nop) LowBalance(context.Context, string, string, int64) error                   { return nil }
func (Nop) AdminAlert(context.Context, string, string) error                          { return nil }

var (
	_ Notifier = (*Enqueuer)(nil)
	_ Notifier = Nop{}
)
