package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pol-gateway/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var testEvent = domain.TransactionEvent{
	ID:          "req-1",
	Kind:        domain.KindBuy,
	TxHash:      "0xabc",
	Nonce:       7,
	BlockNumber: 1001,
	AmountA:     10,
	AmountB:     19.5,
	Timestamp:   1_700_000_000,
}

func TestKafka_Publish(t *testing.T) {
	w := &fakeWriter{}
	ts := time.Unix(1_700_000_000, 0)
	k := &Kafka{writer: w, now: func() time.Time { return ts }}

	require.NoError(t, k.Publish(context.Background(), testEvent))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "buy", string(w.msgs[0].Key))
	assert.Equal(t, ts, w.msgs[0].Time)

	var got domain.TransactionEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, testEvent, got)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafka_PublishError(t *testing.T) {
	k := &Kafka{writer: &fakeWriter{err: errors.New("leader not available")}, now: time.Now}

	err := k.Publish(context.Background(), testEvent)
	assert.ErrorContains(t, err, "leader not available")
}

func TestMemory(t *testing.T) {
	m := &Memory{}
	require.NoError(t, m.Publish(context.Background(), testEvent))
	assert.Equal(t, []domain.TransactionEvent{testEvent}, m.Events())

	m.Err = errors.New("down")
	assert.Error(t, m.Publish(context.Background(), testEvent))
	assert.Len(t, m.Events(), 1)
}
