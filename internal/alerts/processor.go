package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Processor runs the asynq worker that delivers queued notifications
type Processor struct {
	server *asynq.Server
	mailer Mailer
	log    *zap.Logger
}

func NewProcessor(opt asynq.RedisClientOpt, mailer Mailer, log *zap.Logger) *Processor {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			queueEmails: 10,
			queueAlerts: 5,
		},
	})
	return &Processor{server: server, mailer: mailer, log: log}
}

// Mux routes every task type to its handler
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTopUpCompleted, p.handleTopUpCompleted)
	mux.HandleFunc(TaskOrderPlaced, p.handleOrderPlaced)
	mux.HandleFunc(TaskLowBalance, p.handleLowBalance)
	mux.HandleFunc(TaskAdminAlert, p.handleAdminAlert)
	return mux
}

// Start runs the worker in the background
func (p *Processor) Start() {
	go func() {
		if err := p.server.Run(p.Mux()); err != nil {
			p.log.Error("asynq server stopped", zap.Error(err))
		}
	}()
}

func (p *Processor) Shutdown() { p.server.Shutdown() }

// deliver decodes the payload and sends its envelope.
// Tasks with no recipient are logged and dropped rather than retried.
func deliver[T any](ctx context.Context, p *Processor, t *asynq.Task, envelope func(*T) EmailEnvelope) error {
	var payload T
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	env := envelope(&payload)
	if env.To == "" {
		p.log.Info("notification has no recipient, skipped", zap.String("task", t.Type()))
		return nil
	}
	if err := p.mailer.Send(ctx, env); err != nil {
		p.log.Error("notification send failed", zap.String("task", t.Type()), zap.Error(err))
		return err
	}
	p.log.Info("notification sent", zap.String("task", t.Type()), zap.String("to", env.To))
	return nil
}

func (p *Processor) handleTopUpCompleted(ctx context.Context, t *asynq.Task) error {
	return deliver(ctx, p, t, func(pl *TopUpCompletedPayload) EmailEnvelope { return pl.Envelope })
}

func (p *Processor) handleOrderPlaced(ctx context.Context, t *asynq.Task) error {
	return deliver(ctx, p, t, func(pl *OrderPlacedPayload) EmailEnvelope { return pl.Envelope })
}

func (p *Processor) handleLowBalance(ctx context.Context, t *asynq.Task) error {
	return deliver(ctx, p, t, func(pl *LowBalancePayload) EmailEnvelope { return pl.Envelope })
}

func (p *Processor) handleAdminAlert(ctx context.Context, t *asynq.Task) error {
	return deliver(ctx, p, t, func(pl *AdminAlertPayload) EmailEnvelope { return pl.Envelope })
}
