package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
)

type fakeReader struct {
	mu        sync.Mutex
	queued    []kafka.Message
	fetched   []int64
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queued) > 0 {
		msg := f.queued[0]
		f.queued = f.queued[1:]
		f.fetched = append(f.fetched, msg.Offset)
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	offsets := make([]int64, 0, len(f.committed))
	for _, m := range f.committed {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

func instantBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestConsumer_processMessage(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		finalErr  error
		calls     int
		committed bool
	}{
		{name: "success commits", calls: 1, committed: true},
		{name: "poison message commits without retry", finalErr: fmt.Errorf("%w: bad json", ErrPoisonMessage), calls: 1, committed: true},
		{name: "transient failure is retried then committed", failures: 2, calls: 3, committed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			var got *IncomingMessage
			calls := 0
			c := newConsumer(reader, "extractions", testLogger(), func(_ context.Context, msg *IncomingMessage) error {
				got = msg
				calls++
				if calls <= tt.failures {
					return errors.New("db down")
				}
				return tt.finalErr
			})
			c.newBackOff = instantBackOff

			c.processMessage(context.Background(), kafka.Message{
				Topic:   "extractions",
				Key:     []byte("p1"),
				Value:   []byte(`{"person_id":"p1"}`),
				Offset:  7,
				Headers: []kafka.Header{{Key: HeaderRequestID, Value: []byte("req-1")}},
			})

			require.NotNil(t, got)
			assert.Equal(t, "p1", got.Key)
			assert.Equal(t, "req-1", got.Headers[HeaderRequestID])
			assert.Equal(t, tt.calls, calls)
			assert.Equal(t, tt.committed, len(reader.committed) == 1)
		})
	}

	t.Run("shutdown during retries leaves message uncommitted", func(t *testing.T) {
		reader := &fakeReader{}
		ctx, cancel := context.WithCancel(context.Background())
		c := newConsumer(reader, "extractions", testLogger(), func(context.Context, *IncomingMessage) error {
			cancel()
			return errors.New("db down")
		})
		c.newBackOff = instantBackOff

		c.processMessage(ctx, kafka.Message{Topic: "extractions", Offset: 7})

		assert.Empty(t, reader.committed)
	})
}

func TestConsumer_FailedOffsetIsNotSkipped(t *testing.T) {
	reader := &fakeReader{queued: []kafka.Message{
		{Topic: "extractions", Partition: 0, Offset: 10},
		{Topic: "extractions", Partition: 0, Offset: 11},
	}}

	var mu sync.Mutex
	var handled []int64
	failedOnce := false
	c := newConsumer(reader, "extractions", testLogger(), func(_ context.Context, msg *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.Offset)
		if msg.Offset == 10 && !failedOnce {
			failedOnce = true
			return errors.New("db down")
		}
		return nil
	})
	c.newBackOff = instantBackOff

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(reader.committedOffsets()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{10, 10, 11}, handled)
	assert.Equal(t, []int64{10, 11}, reader.committedOffsets())
	assert.Equal(t, []int64{10, 11}, reader.fetched)
}

func TestConsumer_StartStop(t *testing.T) {
	reader := &fakeReader{}
	c := newConsumer(reader, "extractions", testLogger(), func(context.Context, *IncomingMessage) error { return nil })

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop())
	assert.True(t, c.Health())
}

func TestIncomingMessage(t *testing.T) {
	msg := &IncomingMessage{
		Value:   []byte(`{"person_id":"p1","payload":{"name":"x"}}`),
		Headers: map[string]string{HeaderRequestID: "req-1"},
	}

	assert.Equal(t, "p1", msg.Peek("person_id").String())
	assert.Equal(t, "x", msg.Peek("payload.name").String())
	assert.False(t, msg.Peek("missing").Exists())

	ctx := msg.Context(context.Background())
	assert.Equal(t, "req-1", fernctx.GetRequestID(ctx))

	var dest struct {
		PersonID string `json:"person_id"`
	}
	require.NoError(t, msg.Decode(&dest))
	assert.Equal(t, "p1", dest.PersonID)

	bad := &IncomingMessage{Value: []byte(`{"person_id":`)}
	assert.ErrorIs(t, bad.Decode(&dest), ErrPoisonMessage)

	wrongType := &IncomingMessage{Value: []byte(`{"person_id": 5}`)}
	assert.ErrorIs(t, wrongType.Decode(&dest), ErrPoisonMessage)
}

func TestProducer_Publish(t *testing.T) {
	ctx := fernctx.SetRequestID(context.Background(), "req-9")

	t.Run("writes headers and payload", func(t *testing.T) {
		w := &fakeWriter{}
		p := newProducer(w, "events", testLogger())

		require.NoError(t, p.Publish(ctx, "p1", "profile.merged", map[string]any{"person_id": "p1"}))
		require.Len(t, w.written, 1)

		msg := w.written[0]
		assert.Equal(t, "p1", string(msg.Key))
		assert.JSONEq(t, `{"person_id":"p1"}`, string(msg.Value))

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "profile.merged", headers[HeaderEventType])
		assert.Equal(t, SchemaVersion, headers[HeaderSchemaVersion])
		assert.Equal(t, "req-9", headers[HeaderRequestID])
	})

	t.Run("write error", func(t *testing.T) {
		p := newProducer(&fakeWriter{err: errors.New("broker down")}, "events", testLogger())
		err := p.Publish(ctx, "p1", "profile.merged", map[string]any{})
		assert.ErrorContains(t, err, "broker down")
	})

	t.Run("unencodable payload", func(t *testing.T) {
		p := newProducer(&fakeWriter{}, "events", testLogger())
		err := p.Publish(ctx, "p1", "profile.merged", map[string]any{"c": make(chan int)})
		assert.Error(t, err)
	})
}
