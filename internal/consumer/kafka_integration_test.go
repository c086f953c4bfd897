//go:build integration

package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/fittrack/internal/events"
)

type syncInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
}

func (s *syncInvalidator) Invalidate(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, invalidation{tenantID: tenantID, userID: userID})
	return nil
}

func (s *syncInvalidator) snapshot() []invalidation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]invalidation(nil), s.calls...)
}

func TestKafkaActivityEventInvalidatesCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.Run(ctx, "confluentinc/confluent-local:7.5.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]
	topic := "activity_events"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "insights-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	inv := &syncInvalidator{}
	logger, _ := test.NewNullLogger()
	proc := NewProcessor(reader, NewInvalidationHandler(inv), WithLogger(logger))

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	payload, err := json.Marshal(events.ActivityCreated{
		ActivityID:   "act-int",
		TenantID:     "tenant",
		UserID:       "user",
		ActivityType: "RUNNING",
		StartedAt:    time.Now().UTC(),
		DurationMin:  30,
		Source:       "integration-test",
		Version:      "v1",
	})
	require.NoError(t, err)

	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], 7)
	copy(value[5:], payload)

	require.NoError(t, writer.WriteMessages(ctx,
		kafka.Message{Key: []byte("garbage"), Value: []byte("not framed")},
		kafka.Message{
			Key:   []byte("act-int"),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(EventActivityCreated)},
				{Key: "tenant_id", Value: []byte("tenant")},
			},
		},
	))

	require.Eventually(t, func() bool {
		return len(inv.snapshot()) == 1
	}, 30*time.Second, 250*time.Millisecond)
	require.Equal(t, invalidation{tenantID: "tenant", userID: "user"}, inv.snapshot()[0])
}
