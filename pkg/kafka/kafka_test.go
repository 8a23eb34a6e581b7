package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := fmt.Errorf("handle: %w", Permanent(base))

	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, base))
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "t", km, nil)
	assert.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))

	ctx, km, _, _ = TraceHook().BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	assert.Len(t, TraceID(ctx), 36)
	assert.Equal(t, TraceID(ctx), ExtractTraceID(km))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}

func TestStartOffset(t *testing.T) {
	assert.Equal(t, kafka.LastOffset, startOffset("latest"))
	assert.Equal(t, kafka.FirstOffset, startOffset("earliest"))
}

func TestEncodeMessages(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	msgs, n, err := encodeMessages("fincast.results", []Message{
		{Key: []byte("j-1"), Value: map[string]int{"rent": 1}, Headers: map[string]string{"trace_id": "t1"}},
		{Value: "raw"},
		{Value: []byte("bytes")},
	}, now)
	assert.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, `{"rent":1}`, string(msgs[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "trace_id", Value: []byte("t1")}}, msgs[0].Headers)
	assert.Equal(t, "raw", string(msgs[1].Value))
	assert.Equal(t, "fincast.results", msgs[2].Topic)
	assert.Equal(t, now, msgs[2].Time)
	assert.Equal(t, int64(len(`{"rent":1}`)+len("raw")+len("bytes")), n)

	_, _, err = encodeMessages("t", []Message{{Value: func() {}}}, now)
	assert.Error(t, err)
}

type scriptedHandler struct {
	calls int
	fn    func(call int) error
}

func (h *scriptedHandler) Topic() string { return "jobs" }

func (h *scriptedHandler) Handle(context.Context, []byte) error {
	h.calls++
	return h.fn(h.calls)
}

func newTestConsumer(t *testing.T, h MessageHandler) (*Consumer, *[]error) {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	)
	assert.NoError(t, err)
	c.RegisterHandler(h)

	var failures []error
	c.WithConsumerHook(HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) {
		failures = append(failures, err)
	}})
	return c, &failures
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	h := &scriptedHandler{fn: func(call int) error {
		if call < 3 {
			return errors.New("broker busy")
		}
		return nil
	}}
	c, failures := newTestConsumer(t, h)

	c.process(&message{topic: "jobs", data: []byte("{}")})

	assert.Equal(t, 3, h.calls)
	assert.Empty(t, *failures)
}

func TestProcessStopsOnPermanentError(t *testing.T) {
	h := &scriptedHandler{fn: func(int) error { return Permanent(errors.New("bad payload")) }}
	c, failures := newTestConsumer(t, h)

	c.process(&message{topic: "jobs"})

	assert.Equal(t, 1, h.calls)
	if assert.Len(t, *failures, 1) {
		assert.True(t, IsPermanent((*failures)[0]))
	}
}

func TestProcessGivesUpAfterRetryMax(t *testing.T) {
	h := &scriptedHandler{fn: func(int) error { return errors.New("down") }}
	c, failures := newTestConsumer(t, h)

	c.process(&message{topic: "jobs"})

	assert.Equal(t, 3, h.calls)
	assert.Len(t, *failures, 1)
}

func TestProcessRecoversPanics(t *testing.T) {
	h := &scriptedHandler{fn: func(int) error { panic("nil map") }}
	c, failures := newTestConsumer(t, h)

	assert.NotPanics(t, func() { c.process(&message{topic: "jobs"}) })
	assert.Equal(t, 1, h.calls)
	if assert.Len(t, *failures, 1) {
		assert.Contains(t, (*failures)[0].Error(), "nil map")
	}
}

func TestHandleTimeoutBoundsAttempt(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerHandleTimeout(5*time.Millisecond))
	assert.NoError(t, err)

	h := handlerFunc(func(ctx context.Context, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	})
	err = c.handleOnce(context.Background(), h, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type handlerFunc func(context.Context, []byte) error

func (f handlerFunc) Topic() string                              { return "jobs" }
func (f handlerFunc) Handle(ctx context.Context, b []byte) error { return f(ctx, b) }
