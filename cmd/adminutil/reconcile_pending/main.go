package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/alerts"
	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/idempotency"
	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/logger"
	"github.com/sudo-init-do/bundlehub/internal/paystack"
	"github.com/sudo-init-do/bundlehub/internal/settlement"
	"github.com/sudo-init-do/bundlehub/internal/wallet"
)

// Re-verifies top-ups stuck in pending, for when webhooks were missed.
// Safe to run alongside the server: settlement credits at most once.
func main() {
	olderThan := flag.Duration("older-than", 0, "only top-ups pending longer than this (default RECONCILE_AFTER)")
	limit := flag.Int("limit", 200, "max top-ups to check")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	if *olderThan <= 0 {
		*olderThan = cfg.Settle.ReconcileAfter
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := ledger.Open(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("ledger store unavailable", zap.Error(err))
	}
	defer store.Close()

	gateway := paystack.NewClient(cfg.Paystack, zlog)
	// no customer emails from a batch run; conflicts still land in the log
	wallets := wallet.NewService(store, gateway, alerts.Nop{}, cfg, zlog)
	rec := settlement.NewReconciler(store, wallets, gateway, idempotency.Nop{}, alerts.Nop{}, cfg, zlog)

	sum, err := rec.ReconcilePending(ctx, *olderThan, *limit)
	if err != nil {
		zlog.Fatal("reconcile failed", zap.Error(err))
	}
	fmt.Printf("checked=%d credited=%d failed=%d pending=%d errors=%d\n",
		sum.Checked, sum.Credited, sum.Failed, sum.Pending, sum.Errors)
}
