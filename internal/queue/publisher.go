package queue

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/tsa/internal/analysis"
	"github.com/smukkama/tsa/internal/protocol"
)

// batchWriter is the part of Producer used by ResultPublisher
type batchWriter interface {
	PublishBatch(ctx context.Context, messages []kafka.Message) error
}

// ResultPublisher publishes collection results for report generation
type ResultPublisher struct {
	producer batchWriter
}

// NewResultPublisher creates a new result publisher
func NewResultPublisher(producer batchWriter) *ResultPublisher {
	return &ResultPublisher{producer: producer}
}

// PublishCollection sends one message per condition and a closing report
// message. All messages of a collection share a key and therefore a
// partition, so the report arrives after its conditions.
func (p *ResultPublisher) PublishCollection(ctx context.Context, requestID string, res *analysis.CollectionResult) error {
	key := []byte(res.RunID + ":" + res.Title)
	conditions, report := protocol.NewResultMessages(requestID, res)

	messages := make([]kafka.Message, 0, len(conditions)+1)
	for _, msg := range conditions {
		data, err := protocol.EncodeConditionResult(msg)
		if err != nil {
			return fmt.Errorf("failed to encode result of %s: %w", msg.Result.Key(), err)
		}
		messages = append(messages, kafka.Message{Key: key, Value: data})
	}

	data, err := protocol.EncodeCollectionReport(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	messages = append(messages, kafka.Message{Key: key, Value: data})

	return p.producer.PublishBatch(ctx, messages)
}
