package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/admin"
	"github.com/sudo-init-do/bundlehub/internal/alerts"
	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/idempotency"
	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/logger"
	"github.com/sudo-init-do/bundlehub/internal/metrics"
	mware "github.com/sudo-init-do/bundlehub/internal/middleware"
	"github.com/sudo-init-do/bundlehub/internal/orders"
	"github.com/sudo-init-do/bundlehub/internal/paystack"
	"github.com/sudo-init-do/bundlehub/internal/settlement"
	"github.com/sudo-init-do/bundlehub/internal/utils"
	"github.com/sudo-init-do/bundlehub/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("ledger store unavailable", zap.Error(err))
	}
	defer store.Close()

	// Redis backs webhook dedupe and the alert queue
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis unreachable, webhook dedupe will fail open", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	dedupe := idempotency.NewRedisDeduper(rdb, "webhook:paystack", cfg.Settle.DedupeTTL, zlog)

	var notify alerts.Notifier = alerts.Nop{}
	if cfg.Alerts.Enabled {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		notify = alerts.NewEnqueuer(client, cfg)

		processor := alerts.NewProcessor(redisOpt, alerts.NewMailer(cfg.Alerts, zlog), zlog)
		processor.Start()
		defer processor.Shutdown()
	}

	gateway := paystack.NewClient(cfg.Paystack, zlog)
	wallets := wallet.NewService(store, gateway, notify, cfg, zlog)
	reconciler := settlement.NewReconciler(store, wallets, gateway, dedupe, notify, cfg, zlog)
	orderSvc := orders.NewService(store, wallets, notify, cfg, zlog)

	walletH := wallet.NewHandler(wallets, zlog)
	settleH := settlement.NewHandler(reconciler, cfg, zlog)
	orderH := orders.NewHandler(orderSvc, zlog)
	adminH := admin.NewHandler(store, zlog)

	e := echo.New()
	e.HideBanner = true
	e.Debug = !cfg.IsProduction()
	e.Validator = utils.NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.Middleware(zlog))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "ledger unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", metrics.Handler())

	// Public: Paystack signs the body, so no JWT here. Per-IP limit against floods.
	hooks := e.Group("/wallet/webhook")
	hooks.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(50)))
	hooks.POST("/paystack", settleH.Webhook)

	api := e.Group("")
	api.Use(mware.JWT(cfg.JWTSecret))

	api.GET("/wallet/balance", walletH.Balance)
	api.GET("/wallet/transactions", walletH.Transactions)
	api.POST("/wallet/topup", walletH.TopUp)
	api.POST("/wallet/verify-topup", settleH.Verify)

	api.POST("/orders", orderH.CreateOrder, mware.RequireRoles(mware.RoleCustomer, mware.RoleAdmin))
	api.GET("/orders/me", orderH.MyOrders)

	adminG := e.Group("/admin")
	adminG.Use(mware.JWT(cfg.JWTSecret))
	adminG.Use(mware.AdminGuard)

	adminG.GET("/stats", adminH.Stats)
	adminG.GET("/wallets", adminH.ListWallets)
	adminG.GET("/wallets/:user_id", walletH.AdminUserWallet)
	adminG.POST("/wallets/:user_id/adjust", walletH.AdminAdjust)
	adminG.GET("/transactions", adminH.ListTransactions)
	adminG.GET("/topups/pending", adminH.PendingTopUps)
	adminG.POST("/topups/reconcile", settleH.Reconcile)
	adminG.PATCH("/orders/:id/status", orderH.UpdateStatus)

	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
