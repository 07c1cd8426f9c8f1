package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/callback"
	"github.com/ariefcatur/go-tour-booking/internal/cleanup"
	"github.com/ariefcatur/go-tour-booking/internal/config"
	"github.com/ariefcatur/go-tour-booking/internal/httpx"
	"github.com/ariefcatur/go-tour-booking/internal/inventory"
	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/notify"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/ariefcatur/go-tour-booking/internal/payment/momo"
	"github.com/ariefcatur/go-tour-booking/internal/payment/vnpay"
	"github.com/ariefcatur/go-tour-booking/internal/postgres"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/ariefcatur/go-tour-booking/internal/review"
	"github.com/ariefcatur/go-tour-booking/internal/telemetry"
	"github.com/ariefcatur/go-tour-booking/internal/ws"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	// Store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	sessions := redisx.NewSessionStore(rdb, cfg.SessionTTL)
	defer sessions.Close()

	// Notifications
	pub, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	notifier := notify.New(pub, cfg.ServiceName, log)
	defer notifier.Close()

	orch := booking.New(store, inventory.New(log), booking.Options{
		OrderTTL:     cfg.OrderTTL,
		CleanupBatch: cfg.CleanupBatch,
		Log:          log,
	})

	momoClient := momo.New(momo.Config{
		PartnerCode: cfg.MoMo.PartnerCode,
		AccessKey:   cfg.MoMo.AccessKey,
		SecretKey:   cfg.MoMo.SecretKey,
		Endpoint:    cfg.MoMo.Endpoint,
		RedirectURL: cfg.MoMo.RedirectURL,
		IPNURL:      cfg.MoMo.IPNURL,
		RequestType: cfg.MoMo.RequestType,
		Timeout:     cfg.GatewayTimeout,
		Retry:       momo.RetryPolicy{MaxAttempts: momo.DefaultRetry.MaxAttempts, Backoff: cfg.MoMo.RetryWait},
	}, orch, log)
	vnpayClient := vnpay.New(vnpay.Config{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PayURL:     cfg.VNPay.PayURL,
		APIURL:     cfg.VNPay.APIURL,
		ReturnURL:  cfg.VNPay.ReturnURL,
		ExpireIn:   cfg.VNPay.ExpireIn,
		Timeout:    cfg.GatewayTimeout,
	}, log)

	reviews := review.New(store, notifier, cfg.PublicBaseURL, log)
	hub := ws.NewHub()
	go hub.Run(ctx)

	cache := redisx.NewStatusCache(rdb, log)
	// observers run after commit, in this order
	orch.Observe(cache, hub, notifier, reviews)

	callbacks := callback.New(orch, momoClient, vnpayClient, notifier, redisx.NewDeduper(rdb),
		callback.Config{PublicBaseURL: cfg.PublicBaseURL, DedupNotifications: cfg.DedupNotifications}, log)

	sweeper := cleanup.New(orch, cfg.CleanupInterval, log)
	if cfg.CleanupAutoRun {
		sweeper.Start(ctx)
	}
	defer sweeper.Stop()

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN not set, admin api disabled")
	}
	router := httpx.NewRouter(httpx.Deps{
		Orders:         orch,
		Gateways:       payment.NewRegistry(momoClient, vnpayClient),
		Callbacks:      callbacks,
		Reviews:        reviews,
		Cleanup:        sweeper,
		Hub:            hub,
		Cache:          cache,
		IdemKeys:       redisx.NewOrderKeys(rdb),
		Sessions:       sessions,
		BaseCtx:        ctx,
		AdminToken:     cfg.AdminToken,
		RequestTimeout: cfg.GatewayTimeout + cfg.GatewayTimeout/2,
		Log:            log,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "notify", cfg.NotifyBroker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (orders.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		s := orders.NewMemStore()
		for _, pair := range cfg.MemorySeed {
			id, n, ok := strings.Cut(pair, "=")
			stock, err := strconv.Atoi(n)
			if !ok || err != nil {
				return nil, nil, fmt.Errorf("bad MEMORY_SEED_BUCKETS entry %q", pair)
			}
			s.SeedBucket(orders.Bucket{ID: id, Stock: stock})
		}
		log.Warn("using in-memory store, data is lost on exit", "buckets", len(cfg.MemorySeed))
		return s, func() {}, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns))
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("db migrate: %w", err)
		}
		return &orders.PgStore{DB: db}, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func openPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (notify.Publisher, error) {
	switch cfg.NotifyBroker {
	case "kafka":
		p := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, log)
		p.Start(ctx)
		return notify.NewKafkaPublisher(p), nil
	case "rabbit":
		p, err := notify.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitExch)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "log":
		return notify.NewLogPublisher(log), nil
	}
	return nil, fmt.Errorf("unknown NOTIFY_BROKER %q", cfg.NotifyBroker)
}
