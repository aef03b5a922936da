package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/catalog-console/api/internal/services"
)

func TestPubSubProductEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "product-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	defer topic.Stop()

	publisher, err := NewPubSubProductEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubProductEventPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 5, 6, 18, 0, 0, 0, time.FixedZone("JST", 9*60*60))
	event := services.ProductSavedEvent{
		ProductID:    "prod-1",
		Created:      true,
		VariantCount: 3,
		OccurredAt:   occurredAt,
	}
	if err := publisher.PublishProductSaved(ctx, event); err != nil {
		t.Fatalf("PublishProductSaved: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload productSavedMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != "product.saved" || payload.ProductID != "prod-1" || !payload.Created || payload.VariantCount != 3 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(occurredAt) || payload.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC occurredAt, got %s", payload.OccurredAt)
	}
	if attr := messages[0].Attributes["productId"]; attr != "prod-1" {
		t.Fatalf("expected productId attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["created"]; attr != "true" {
		t.Fatalf("expected created attribute, got %q", attr)
	}
}

func TestNewPubSubProductEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubProductEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
