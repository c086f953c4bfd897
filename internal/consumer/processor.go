// Package consumer reads activity events from Kafka and drops cached
// activity collections that the events make stale.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// magicByte prefixes Confluent framed payloads.
const magicByte = 0x00

// ErrMalformedEvent marks events that can never be handled. The processor
// commits them instead of leaving them for redelivery.
var ErrMalformedEvent = errors.New("malformed event")

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the activity service outbox.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetryDelay sets the pause after a failed fetch.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Processor) {
		p.retryDelay = d
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     logrus.FieldLogger
	retryDelay time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     logrus.StandardLogger().WithField("component", "consumer"),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context
// is cancelled or the reader is closed.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			p.logger.WithError(err).Warn("fetch failed")
			if !p.pause(ctx) {
				return ctx.Err()
			}
			continue
		}

		log := p.logger.WithFields(logrus.Fields{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		})

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			log.WithError(decodeErr).Warn("decode failed")
			recordDecodeError(msg.Topic)
			p.commit(ctx, log, msg)
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			log = log.WithFields(logrus.Fields{"event_type": event.EventType, "tenant": event.TenantID})
			if errors.Is(handleErr, ErrMalformedEvent) {
				log.WithError(handleErr).Warn("dropping malformed event")
				recordDecodeError(msg.Topic)
				p.commit(ctx, log, msg)
				continue
			}
			log.WithError(handleErr).Error("handler failed")
			recordHandlerError(event)
			continue
		}

		if p.commit(ctx, log, msg) {
			recordProcessed(event)
		}
	}
}

func (p *Processor) commit(ctx context.Context, log logrus.FieldLogger, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Warn("commit failed")
		return false
	}
	return true
}

func (p *Processor) pause(ctx context.Context) bool {
	if p.retryDelay <= 0 {
		return true
	}
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != magicByte {
		return Message{}, fmt.Errorf("unexpected magic byte 0x%02x", msg.Value[0])
	}

	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	tenantID, _ := headerValue(msg, "tenant_id")
	schemaSubject, _ := headerValue(msg, "schema_subject")

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		TenantID:      string(tenantID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
