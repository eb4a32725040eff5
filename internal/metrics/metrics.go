package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Settlements counts settlement attempts by trigger (webhook|verify|reconcile)
	// and outcome (credited|already_settled|failed|conflict|not_found|error).
	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_settlements_total",
			Help: "Settlement attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	TopUpsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_topups_initiated_total",
			Help: "Top-up initiations by outcome",
		},
		[]string{"outcome"},
	)

	// Debits counts wallet debits (orders included) by outcome (ok|insufficient|error)
	Debits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_debits_total",
			Help: "Wallet debits by outcome",
		},
		[]string{"outcome"},
	)

	Refunds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_refunded_total",
			Help: "Orders refunded after failing fulfilment",
		},
	)

	WebhookDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paystack_webhook_duplicates_total",
			Help: "Webhook deliveries dropped by the dedupe fast path",
		},
	)
)

// Handler exposes the default registry
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
