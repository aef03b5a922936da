package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/catalog-console/api/internal/services"
)

const productSavedEventType = "product.saved"

// productSavedMessage is the wire shape of a product saved event.
type productSavedMessage struct {
	Type         string    `json:"type"`
	ProductID    string    `json:"productId"`
	Created      bool      `json:"created"`
	VariantCount int       `json:"variantCount"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// PubSubProductEventPublisher publishes product lifecycle events to a Pub/Sub topic.
type PubSubProductEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.ProductEventPublisher = (*PubSubProductEventPublisher)(nil)

// NewPubSubProductEventPublisher constructs a Pub/Sub backed product event publisher.
func NewPubSubProductEventPublisher(topic *pubsub.Topic) (*PubSubProductEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub product publisher: topic is required")
	}
	return &PubSubProductEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishProductSaved publishes the event and waits for the server acknowledgement.
func (p *PubSubProductEventPublisher) PublishProductSaved(ctx context.Context, event services.ProductSavedEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub product publisher: not initialised")
	}

	data, err := p.marshal(productSavedMessage{
		Type:         productSavedEventType,
		ProductID:    event.ProductID,
		Created:      event.Created,
		VariantCount: event.VariantCount,
		OccurredAt:   event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal product saved event: %w", err)
	}

	attrs := map[string]string{"eventType": productSavedEventType}
	setAttr(attrs, "productId", event.ProductID)
	attrs["created"] = strconv.FormatBool(event.Created)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish product saved event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
