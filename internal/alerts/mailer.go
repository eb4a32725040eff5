package alerts

import (
	"context"

	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/config"
)

// Mailer delivers a rendered envelope
type Mailer interface {
	Send(ctx context.Context, env EmailEnvelope) error
}

// NewMailer picks Plunk when an API key is configured, otherwise logs the mail
func NewMailer(cfg config.Alerts, log *zap.Logger) Mailer {
	if cfg.PlunkKey != "" {
		return NewPlunk(cfg)
	}
	log.Warn("PLUNK_API_KEY not set, notifications will only be logged")
	return &LogMailer{log: log}
}

// LogMailer writes the envelope to the log instead of sending it
type LogMailer struct {
	log *zap.Logger
}

func (m *LogMailer) Send(_ context.Context, env EmailEnvelope) error {
	m.log.Info("mail", zap.String("to", env.To), zap.String("subject", env.Subject))
	return nil
}
