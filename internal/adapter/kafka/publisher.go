package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/lake-raster-engine/internal/config"
	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

// messageWriter is the subset of kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per sampled observation.
// It implements pipeline.SamplePublisher.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured sample topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSamples writes all observations of a run in a single WriteMessages
// call. Messages are keyed by dataset and point so a point's series lands on
// one partition in order.
func (p *Publisher) PublishSamples(ctx context.Context, dataset string, obs []domain.SampleObservation) error {
	if len(obs) == 0 {
		return nil
	}
	publishedAt := domain.Now()
	msgs := make([]kafkago.Message, len(obs))
	for i := range obs {
		msg, err := serializeToMessage(dataset, obs[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d samples: %w", len(msgs), err)
	}
	p.logger.Debug("published samples", "dataset", dataset, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// SampleMessage is the JSON payload of a published observation.
type SampleMessage struct {
	Dataset       string     `json:"dataset"`
	Point         string     `json:"point"`
	Date          string     `json:"date"`
	Color         domain.RGB `json:"color"`
	Concentration float64    `json:"concentration"`
}

func serializeToMessage(dataset string, o domain.SampleObservation, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(SampleMessage{
		Dataset:       dataset,
		Point:         o.PointName,
		Date:          o.Date.Format(domain.DateLayout),
		Color:         o.Color,
		Concentration: o.Concentration,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sample: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(dataset + "/" + o.PointName),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(dataset)},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
