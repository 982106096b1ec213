// Package kafka_middleware instruments Kafka producers and consumers with
// structured logs and Prometheus counters.
package kafka_middleware

import (
	"context"
	"time"

	"eventmarket/pkg/kafka"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/metrics"
)

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.PublishFunc) error {
		start := time.Now()
		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Error("failed to publish message", append(attrs, "error", err)...)
		} else {
			log.Debug("published message", attrs...)
		}
		return err
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Warn("failed to process message", append(attrs, "error", err)...)
		} else {
			log.Debug("processed message", attrs...)
		}
		return err
	}
}

func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.PublishFunc) error {
		err := next(ctx, msg)
		metrics.KafkaMessagesTotal.WithLabelValues("produce", msg.Topic, metrics.Outcome(err == nil)).Inc()
		return err
	}
}

func MetricsConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		metrics.KafkaHandleDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
		metrics.KafkaMessagesTotal.WithLabelValues("consume", msg.Topic, metrics.Outcome(err == nil)).Inc()
		return err
	}
}
