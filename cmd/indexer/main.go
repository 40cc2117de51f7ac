package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-lifecycle-service/config"
	"github.com/oksasatya/identity-lifecycle-service/internal/infrastructure/search"
	"github.com/oksasatya/identity-lifecycle-service/pkg/helpers"
)

// indexer consumes identity events from RabbitMQ and keeps the
// Elasticsearch projection of identities current.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-indexer", cfg.Env, cfg.LogLevel)

	if !cfg.EventsEnabled {
		logger.Info("EVENTS_ENABLED=false; indexer disabled")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		logger.WithError(err).Fatal("elasticsearch client")
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = helpers.EnsureIndex(ensureCtx, es, cfg.ESIdentitiesIndex, search.IdentityMapping)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("ensure identities index")
	}
	indexer := search.NewIdentityIndexer(es, cfg.ESIdentitiesIndex)

	conn, ch, err := helpers.DialQueue(cfg.RabbitMQURL, cfg.RabbitMQIdentityQueue)
	if err != nil {
		logger.WithError(err).Fatal("amqp dial")
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	// Prefetch for fair dispatch across indexer replicas
	if err := ch.Qos(16, 0, false); err != nil {
		logger.WithError(err).Fatal("qos")
	}
	msgs, err := ch.Consume(cfg.RabbitMQIdentityQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.WithError(err).Fatal("consume")
	}

	logger.WithField("queue", cfg.RabbitMQIdentityQueue).Info("indexer listening")
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down indexer")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Error("delivery channel closed")
				return
			}
			handle(ctx, logger, indexer, msg)
		}
	}
}

func handle(ctx context.Context, logger *logrus.Logger, indexer *search.IdentityIndexer, msg amqp.Delivery) {
	ev, err := search.Decode(msg.Body)
	if err == nil {
		err = indexer.Apply(ctx, ev)
	}
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, search.ErrMalformedEvent):
		logger.WithError(err).Warn("dropping identity event")
		_ = msg.Nack(false, false)
	default:
		logger.WithError(err).WithField("type", ev.Type).Error("indexing identity event failed")
		_ = msg.Nack(false, !msg.Redelivered)
	}
}
