package server

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/pkg/config"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
)

func TestJobHookPropagatesTraceID(t *testing.T) {
	a := New(config.Default(), nil, nil, nil, nil)
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-9")}}}

	ctx, _, _, err := a.jobHook().BeforeHandle(context.Background(), "fincast.requests", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "t-9", pkgkafka.TraceID(ctx))
}

func TestJobHookLogsFinalFailure(t *testing.T) {
	var buf bytes.Buffer
	a := New(config.Default(), logger.NewWithWriter(&buf, "info"), nil, nil, nil)
	km := kafka.Message{
		Partition: 2,
		Offset:    41,
		Headers:   []kafka.Header{{Key: "trace_id", Value: []byte("t-9")}},
	}

	a.jobHook().OnError(context.Background(), "fincast.requests", km, nil, pkgkafka.Permanent(errors.New("unknown model")))

	out := buf.String()
	assert.Contains(t, out, "forecast job failed")
	assert.Contains(t, out, `"trace_id":"t-9"`)
	assert.Contains(t, out, `"offset":41`)
	assert.Contains(t, out, `"permanent":true`)
}
