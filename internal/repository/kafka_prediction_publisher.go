package repository

import (
	"context"
	"time"

	"FinSheet/internal/domain/models"
	"FinSheet/internal/domain/repository"
	pkgkafka "FinSheet/pkg/kafka"
)

// KafkaPredictionPublisher feeds stored predictions to the report-generator
// topic.
type KafkaPredictionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPredictionPublisher creates a Kafka-backed publisher.
func NewKafkaPredictionPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPredictionPublisher{producer: producer, topic: topic}
}

func (p *KafkaPredictionPublisher) PublishPrediction(ctx context.Context, pred models.Prediction, set models.IndicatorSet) error {
	return p.producer.Publish(ctx, p.topic, []byte(pred.Symbol), map[string]interface{}{
		"symbol":       pred.Symbol,
		"signal":       string(pred.Signal),
		"score":        pred.Score,
		"confidence":   pred.Confidence,
		"generated_at": pred.GeneratedAt.Format(time.RFC3339),
		"indicators":   set.Values,
	})
}

func (p *KafkaPredictionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher is used when Kafka is disabled in config.
type NoopPublisher struct{}

func (NoopPublisher) PublishPrediction(context.Context, models.Prediction, models.IndicatorSet) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
