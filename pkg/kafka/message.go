package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tidwall/gjson"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Header names written by the producer and read by the consumer
const (
	HeaderEventType     = "event_type"
	HeaderRequestID     = "request_id"
	HeaderTraceParent   = "traceparent"
	HeaderSchemaVersion = "schema_version"
)

// ErrPoisonMessage marks a message that can never be processed. The consumer
// commits it so the partition does not stall.
var ErrPoisonMessage = errors.New("poison message")

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}
}

// Context continues the producer's trace and request id
func (m *IncomingMessage) Context(ctx context.Context) context.Context {
	ctx = tracing.ExtractTraceParent(ctx, m.Headers[HeaderTraceParent])
	if requestID := m.Headers[HeaderRequestID]; requestID != "" {
		ctx = fernctx.SetRequestID(ctx, requestID)
	}
	return ctx
}

// Peek reads a single JSON path from the value without decoding all of it
func (m *IncomingMessage) Peek(path string) gjson.Result {
	return gjson.GetBytes(m.Value, path)
}

// Decode unmarshals the value into dest. Malformed JSON is reported as
// ErrPoisonMessage.
func (m *IncomingMessage) Decode(dest any) error {
	if !gjson.ValidBytes(m.Value) {
		return fmt.Errorf("%w: invalid JSON at offset %d", ErrPoisonMessage, m.Offset)
	}
	if err := json.Unmarshal(m.Value, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	return nil
}
