package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/ruleset"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// RuleChangeEvent is the message published for every rule the patcher rewrote.
type RuleChangeEvent struct {
	RunID           string    `json:"runId,omitempty"`
	Key             string    `json:"key"`
	OldThreshold    float64   `json:"oldThreshold"`
	NewThreshold    float64   `json:"newThreshold"`
	OldTimeoutHours *float64  `json:"oldTimeoutHours,omitempty"`
	NewTimeoutHours *float64  `json:"newTimeoutHours,omitempty"`
	ChangedAt       time.Time `json:"changedAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes rule changes so the alerting service can reload without a deploy.
// Messages are keyed by rule key, so changes to one rule stay ordered on one partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
	}
	return &KafkaNotifier{writer: w, topic: topic, now: time.Now}, nil
}

func (n *KafkaNotifier) Publish(ctx context.Context, runID string, changes []ruleset.Change) error {
	if len(changes) == 0 {
		return nil
	}
	msgs, err := n.messages(runID, changes)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish rule changes to %s: %w", n.topic, err)
	}
	log.Debug().Str("topic", n.topic).Int("messages", len(msgs)).Msg("rule changes published")
	return nil
}

func (n *KafkaNotifier) messages(runID string, changes []ruleset.Change) ([]kafka.Message, error) {
	at := n.now().UTC()
	msgs := make([]kafka.Message, 0, len(changes))
	for _, c := range changes {
		body, err := json.Marshal(RuleChangeEvent{
			RunID:           runID,
			Key:             c.Key,
			OldThreshold:    c.OldThreshold,
			NewThreshold:    c.NewThreshold,
			OldTimeoutHours: c.OldTimeoutHours,
			NewTimeoutHours: c.NewTimeoutHours,
			ChangedAt:       at,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal rule change %s: %w", c.Key, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(c.Key),
			Value: body,
			Time:  at,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte("application/json")},
			},
		})
	}
	return msgs, nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// NoopNotifier drops every change.
type NoopNotifier struct{}

func (NoopNotifier) Publish(context.Context, string, []ruleset.Change) error { return nil }
func (NoopNotifier) Close() error { return nil }
