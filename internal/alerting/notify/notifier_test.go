package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/ruleset"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifier_Publish(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
	n := &KafkaNotifier{writer: w, topic: "alert-rule-changes", now: func() time.Time { return at }}
	oldTo, newTo := 24.0, 36.0

	err := n.Publish(context.Background(), "run-1", []ruleset.Change{
		{Key: "PENDING_REQUESTS", OldThreshold: 10, NewThreshold: 12, OldTimeoutHours: &oldTo, NewTimeoutHours: &newTo},
		{Key: "FAILED_SWAPS", OldThreshold: 3, NewThreshold: 4},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "PENDING_REQUESTS", string(w.msgs[0].Key))

	var ev RuleChangeEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &ev))
	assert.Equal(t, RuleChangeEvent{RunID: "run-1", Key: "FAILED_SWAPS", OldThreshold: 3, NewThreshold: 4, ChangedAt: at}, ev)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_NothingToPublish(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	n := &KafkaNotifier{writer: w, topic: "t", now: time.Now}
	assert.NoError(t, n.Publish(context.Background(), "run-1", nil))
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := &KafkaNotifier{writer: &fakeWriter{err: errors.New("broker down")}, topic: "t", now: time.Now}
	err := n.Publish(context.Background(), "", []ruleset.Change{{Key: "FAILED_SWAPS", NewThreshold: 4}})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaNotifier_Validates(t *testing.T) {
	_, err := NewKafkaNotifier(nil, "t")
	assert.Error(t, err)
	_, err = NewKafkaNotifier([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
