package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/qepting91/reelfeed/internal/domain"
)

// KafkaReporter publishes scroll views to a topic instead of calling the
// REST endpoints. The writer batches and retries on its own.
type KafkaReporter struct {
	writer    *kafka.Writer
	sessionID string
	viewerID  string
}

type viewEvent struct {
	PostID    string    `json:"post_id"`
	SessionID string    `json:"session_id,omitempty"`
	ViewerID  string    `json:"viewer_id,omitempty"`
	Source    string    `json:"source"`
	ViewedAt  time.Time `json:"viewed_at"`
}

func NewKafkaReporter(brokers, topic, sessionID, viewerID string) *KafkaReporter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaReporter{writer: w, sessionID: sessionID, viewerID: viewerID}
}

func (kr *KafkaReporter) ReportView(ctx context.Context, postID string) error {
	return kr.ReportViews(ctx, []string{postID})
}

func (kr *KafkaReporter) ReportViews(ctx context.Context, postIDs []string) error {
	msgs, err := viewMessages(postIDs, kr.sessionID, kr.viewerID, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := kr.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish views: %w: %w", domain.ErrRetryable, err)
	}
	return nil
}

func (kr *KafkaReporter) Close() error {
	return kr.writer.Close()
}

func viewMessages(postIDs []string, sessionID, viewerID string, now time.Time) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(postIDs))
	for _, id := range postIDs {
		b, err := json.Marshal(viewEvent{PostID: id, SessionID: sessionID, ViewerID: viewerID, Source: "scroll", ViewedAt: now})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(id), Value: b, Time: now})
	}
	return msgs, nil
}
