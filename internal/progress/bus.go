// Package progress fans ingestion progress out to live subscribers.
package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"paperchat/internal/model"
)

const topicPrefix = "ingest.progress."

// Bus publishes one message per progress update on a per-document topic.
// Publishing waits for subscriber acks so updates arrive in publish order.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            16,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		logger: logger.Named("progress"),
	}
}

func Topic(documentID string) string {
	return topicPrefix + documentID
}

// Publish sends p to every current subscriber of its document. Updates with
// no subscriber are dropped.
func (b *Bus) Publish(p model.Progress) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress failed: %w", err)
	}
	if err := b.pubsub.Publish(Topic(p.DocumentID), message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("publish progress failed: %w", err)
	}
	return nil
}

// Subscribe streams progress for one document until ctx is done. The stream
// never reports fewer completed chunks than an earlier update; intermediate
// updates may be skipped for a slow reader, terminal ones are not.
func (b *Bus) Subscribe(ctx context.Context, documentID string) (<-chan model.Progress, error) {
	msgs, err := b.pubsub.Subscribe(ctx, Topic(documentID))
	if err != nil {
		return nil, fmt.Errorf("subscribe progress failed: %w", err)
	}

	out := make(chan model.Progress, 16)
	go func() {
		defer close(out)
		last := -1
		for msg := range msgs {
			var p model.Progress
			err := json.Unmarshal(msg.Payload, &p)
			msg.Ack()
			if err != nil {
				b.logger.Warn("decode progress failed", zap.String("document_id", documentID), zap.Error(err))
				continue
			}
			if p.Completed < last {
				continue
			}
			last = p.Completed

			if p.State.Terminal() {
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case out <- p:
			default:
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
