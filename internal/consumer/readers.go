package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"example.com/fittrack/internal/config"
)

// StartReaders runs one processor per configured topic until ctx is done.
// Each reader is closed when its processor returns; wg tracks them.
func StartReaders(ctx context.Context, wg *sync.WaitGroup, cfg config.KafkaConfig, handler Handler, logger logrus.FieldLogger) {
	for _, topic := range cfg.Topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.Brokers,
			GroupID:         cfg.GroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			ReadLagInterval: -1,
		})
		topicLogger := logger.WithField("topic", topic)
		proc := NewProcessor(reader, handler, WithLogger(topicLogger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			topicLogger.WithField("group", cfg.GroupID).Info("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.WithError(err).Error("consumer stopped")
			}
		}()
	}
}
