package services

import (
	"context"
	"time"

	domain "github.com/catalog-console/api/internal/domain"
)

// AssetUploader is the binary asset store: it accepts raw image content and returns a stable URL.
// Timeouts are the uploader's concern.
type AssetUploader interface {
	UploadImage(ctx context.Context, image domain.PendingImage) (string, error)
}

// ProductSavedEvent announces a product that was created or updated through the editor.
type ProductSavedEvent struct {
	ProductID    string
	Created      bool
	VariantCount int
	OccurredAt   time.Time
}

// ProductEventPublisher delivers product lifecycle events to downstream consumers.
type ProductEventPublisher interface {
	PublishProductSaved(ctx context.Context, event ProductSavedEvent) error
}

// ProductSubmissionPipeline turns an edited matrix into a persisted product.
type ProductSubmissionPipeline interface {
	Submit(ctx context.Context, req SubmissionRequest) (domain.ProductRecord, error)
}

// ProductEditorService manages product editor sessions. Every mutation on a session is serialised;
// distinct sessions never share state.
type ProductEditorService interface {
	OpenSession(ctx context.Context, cmd OpenSessionCommand) (EditorSnapshot, error)
	Snapshot(sessionID string) (EditorSnapshot, error)
	SelectCategory(ctx context.Context, sessionID, categoryID string) (EditorSnapshot, error)
	// Edit runs fn with exclusive access to the session and returns the state after it.
	Edit(sessionID string, fn func(*EditorSession) error) (EditorSnapshot, error)
	SetAttribute(sessionID, variantID, sizeID, name string, raw any) (EditorSnapshot, error)
	BroadcastAttribute(sessionID, name string, raw any) (EditorSnapshot, error)
	Validate(sessionID string) ([]ValidationFinding, error)
	Submit(ctx context.Context, sessionID string) (domain.ProductRecord, error)
	Close(sessionID string) error
	SweepExpired(now time.Time) int
}

// OpenSessionCommand starts an editor session. An empty ProductID opens a new product.
type OpenSessionCommand struct {
	ProductID  string
	CategoryID string
}

// EditorSnapshot is a read-only copy of a session's state.
type EditorSnapshot struct {
	SessionID  string
	ProductID  string
	CategoryID string
	Schema     []domain.AttributeSchema
	Filters    []domain.AttributeSchema
	Matrix     domain.VariantMatrix
	UpdatedAt  time.Time
}
