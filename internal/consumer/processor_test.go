package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func framed(schemaID uint32, payload string) []byte {
	value := make([]byte, 5+len(payload))
	value[0] = magicByte
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)
	return value
}

func eventMessage(eventType, tenantID string, offset int64, value []byte) kafka.Message {
	return kafka.Message{
		Topic:     "activity_events",
		Partition: 0,
		Offset:    offset,
		Time:      time.Now().UTC(),
		Value:     value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "tenant_id", Value: []byte(tenantID)},
			{Key: "schema_subject", Value: []byte("activity_events-value")},
		},
	}
}

func testLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := `{"activity_id":"abc"}`
	reader := &stubReader{
		messages: []kafka.Message{eventMessage("activity.created", "tenant-1", 10, framed(42, payload))},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(testLogger())).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "activity.created", handler.last.EventType)
	require.Equal(t, "tenant-1", handler.last.TenantID)
	require.Equal(t, 42, handler.last.SchemaID)
	require.Equal(t, "activity_events-value", handler.last.SchemaSubject)
	require.JSONEq(t, payload, string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{
		messages: []kafka.Message{eventMessage("activity.state_changed", "tenant-2", 20, framed(99, `{"activity_id":"def"}`))},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler, WithLogger(testLogger())).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedEvents(t *testing.T) {
	reader := &stubReader{
		messages: []kafka.Message{eventMessage("activity.created", "tenant-1", 30, framed(1, `{}`))},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: ErrMalformedEvent}

	err := NewProcessor(reader, handler, WithLogger(testLogger())).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	noHeader := eventMessage("activity.created", "tenant-1", 3, framed(1, `{}`))
	noHeader.Headers = nil
	badMagic := eventMessage("activity.created", "tenant-1", 2, framed(1, `{}`))
	badMagic.Value[0] = 0x7b

	reader := &stubReader{
		messages: []kafka.Message{
			eventMessage("activity.created", "tenant-1", 1, []byte{0, 1}),
			badMagic,
			noHeader,
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}
	logger, hook := test.NewNullLogger()

	err := NewProcessor(reader, handler, WithLogger(logger)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
	require.Len(t, hook.AllEntries(), 3)
	require.Equal(t, "decode failed", hook.LastEntry().Message)
}

func TestProcessorRetriesFetchErrors(t *testing.T) {
	reader := &stubReader{fetchErrs: []error{errors.New("broker unavailable")}, after: func() error { return io.EOF }}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(testLogger()), WithRetryDelay(time.Millisecond)).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, handler.calls)
}

func TestProcessorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewProcessor(&stubReader{}, &stubHandler{}, WithLogger(testLogger())).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type stubReader struct {
	fetchErrs   []error
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
