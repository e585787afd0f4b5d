package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

// fakeReader serves msgs in order and calls drained once they run out.
type fakeReader struct {
	msgs      []kafka.Message
	next      int
	fetches   int
	committed []int64
	closed    bool
	drained   func()
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.fetches++
	if f.next < len(f.msgs) {
		m := f.msgs[f.next]
		f.next++
		return m, nil
	}
	if f.drained != nil {
		f.drained()
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func messages(n int) []kafka.Message {
	out := make([]kafka.Message, n)
	for i := range out {
		out[i] = kafka.Message{Offset: int64(i), Key: []byte{byte('a' + i)}}
	}
	return out
}

var fastRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     time.Millisecond,
}

func TestConsumerRetriesFailedMessageInPlace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{msgs: messages(3), drained: cancel}

	calls := map[string]int{}
	var order []string
	c := newConsumer(r, "documents", func(_ context.Context, key, _ []byte) error {
		calls[string(key)]++
		order = append(order, string(key))
		if string(key) == "b" && calls["b"] < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}, WithRetry(fastRetry))

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"a", "b", "b", "b", "c"}, order)
	assert.Equal(t, []int64{0, 1, 2}, r.committed)
	assert.True(t, r.closed)
}

func TestConsumerStopsWithoutCommittingPastFailure(t *testing.T) {
	r := &fakeReader{msgs: messages(3)}
	boom := errors.New("timed out")
	calls := 0
	c := newConsumer(r, "documents", func(_ context.Context, key, _ []byte) error {
		if string(key) == "b" {
			calls++
			return boom
		}
		return nil
	}, WithRetry(fastRetry))

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRedeliveryExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{0}, r.committed)
	assert.Equal(t, 2, r.fetches, "c is never fetched")
	assert.True(t, r.closed)
}

func TestConsumerShutdownDuringRetryLeavesMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{msgs: messages(2)}
	c := newConsumer(r, "documents", func(context.Context, []byte, []byte) error {
		cancel()
		return errors.New("interrupted")
	}, WithRetry(fastRetry))

	require.NoError(t, c.Start(ctx))
	assert.Empty(t, r.committed)
	assert.True(t, r.closed)
}
