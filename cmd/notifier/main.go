package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-tour-booking/internal/config"
	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/notify"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/ariefcatur/go-tour-booking/internal/telemetry"
	"github.com/joho/godotenv"
)

// notifier consumes booking notifications and delivers them through the
// mail API, once per event id.
func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("notifier exited", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := telemetry.Setup(ctx, cfg.ServiceName+"-notifier", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	mailer := notify.NewMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.GatewayTimeout)
	d := notify.NewDispatcher(mailer, redisx.NewDeduper(rdb), log)

	switch cfg.NotifyBroker {
	case "kafka":
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, cfg.NotifyTopic, cfg.NotifyWorkers, log)
		log.Info("notifier consuming kafka", "group", cfg.NotifyGroup, "topic", cfg.NotifyTopic, "workers", cfg.NotifyWorkers)
		return cons.Start(ctx, d.HandleKafka)
	case "rabbit":
		cons, err := notify.NewRabbitConsumer(cfg.RabbitURL, cfg.RabbitExch, cfg.RabbitQueue, log)
		if err != nil {
			return err
		}
		defer cons.Close()
		log.Info("notifier consuming rabbitmq", "exchange", cfg.RabbitExch, "queue", cfg.RabbitQueue)
		return cons.Start(ctx, d.Handle)
	}
	return fmt.Errorf("notifier needs NOTIFY_BROKER kafka or rabbit, got %q", cfg.NotifyBroker)
}
