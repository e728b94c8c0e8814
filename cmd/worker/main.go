// worker consumes the notification and purchase-event topics.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cashback-service/internal/client"
	"cashback-service/internal/factory"
	"cashback-service/internal/notify"
	"cashback-service/internal/util"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()
	if len(cfg.Kafka.Brokers) == 0 {
		util.Fatal("KAFKA_BROKERS is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifications := client.NewKafkaConsumer(cfg, cfg.Kafka.NotificationTopic, cfg.Kafka.ConsumerGroup+"-notifications")
	defer notifications.Close()
	purchases := client.NewKafkaConsumer(cfg, cfg.Kafka.PurchaseEventTopic, cfg.Kafka.ConsumerGroup+"-purchases")
	defer purchases.Close()

	processor := f.ServiceFactory().PurchaseProcessor()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		util.Info("Notification consumer started", util.String("topic", cfg.Kafka.NotificationTopic))
		return notifications.Run(gctx, notify.Handler(f.Mailer()))
	})
	g.Go(func() error {
		util.Info("Purchase event consumer started", util.String("topic", cfg.Kafka.PurchaseEventTopic))
		return purchases.Run(gctx, processor.KafkaHandler())
	})

	if err := g.Wait(); err != nil {
		util.Error("Worker stopped with error", util.ErrorField(err))
		f.Close()
		os.Exit(1)
	}
	util.Info("Worker stopped")
}
