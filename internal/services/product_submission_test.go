package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/catalog-console/api/internal/domain"
)

type stubUploader struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *stubUploader) UploadImage(ctx context.Context, image domain.PendingImage) (string, error) {
	current := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if current <= seen || s.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.calls = append(s.calls, image.FileName)
	s.mu.Unlock()

	if err, ok := s.fail[image.FileName]; ok {
		return "", err
	}
	return "https://cdn.example.com/" + image.FileName, nil
}

func (s *stubUploader) uploaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubProductRepository struct {
	createFn   func(ctx context.Context, payload domain.ProductPayload) (domain.ProductRecord, error)
	updateFn   func(ctx context.Context, id string, payload domain.ProductPayload) (domain.ProductRecord, error)
	findFn     func(ctx context.Context, id string) (domain.ProductRecord, error)
	created    []domain.ProductPayload
	updated    []domain.ProductPayload
	updatedIDs []string
}

func (s *stubProductRepository) Create(ctx context.Context, payload domain.ProductPayload) (domain.ProductRecord, error) {
	s.created = append(s.created, payload)
	if s.createFn != nil {
		return s.createFn(ctx, payload)
	}
	return domain.ProductRecord{ID: "prod-new", ProductPayload: payload}, nil
}

func (s *stubProductRepository) Update(ctx context.Context, id string, payload domain.ProductPayload) (domain.ProductRecord, error) {
	s.updated = append(s.updated, payload)
	s.updatedIDs = append(s.updatedIDs, id)
	if s.updateFn != nil {
		return s.updateFn(ctx, id, payload)
	}
	return domain.ProductRecord{ID: id, ProductPayload: payload}, nil
}

func (s *stubProductRepository) FindByID(ctx context.Context, id string) (domain.ProductRecord, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return domain.ProductRecord{}, &stubRepositoryError{err: errors.New("missing"), notFound: true}
}

type stubRepositoryError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepositoryError) Error() string       { return e.err.Error() }
func (e *stubRepositoryError) IsNotFound() bool    { return e.notFound }
func (e *stubRepositoryError) IsConflict() bool    { return e.conflict }
func (e *stubRepositoryError) IsUnavailable() bool { return e.unavailable }

type stubEventPublisher struct {
	events []ProductSavedEvent
	err    error
}

func (s *stubEventPublisher) PublishProductSaved(_ context.Context, event ProductSavedEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func pendingImage(name string) domain.ImageSlot {
	return domain.PendingSlot(domain.PendingImage{FileName: name, ContentType: "image/png", Data: []byte(name)})
}

func newTestSubmitter(t *testing.T, uploader *stubUploader, repo *stubProductRepository, events ProductEventPublisher) *ProductSubmitter {
	t.Helper()
	submitter, err := NewProductSubmitter(ProductSubmissionDeps{
		Uploader: uploader,
		Products: repo,
		Events:   events,
		Clock: func() time.Time {
			return time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*60*60))
		},
	})
	if err != nil {
		t.Fatalf("new submitter: %v", err)
	}
	return submitter
}

func submittableMatrix() (domain.VariantMatrix, *VariantMatrixStore) {
	store := newTestStore()
	store.SetProductDetails(domain.ProductDetails{Name: "Tee", Price: 25, CategoryID: "apparel"})
	variantID := store.AddColorVariant()
	store.UpdateColorVariant(variantID, ColorVariantPatch{Color: ptr("Red")})
	store.ToggleSize(variantID, "M")
	return store.Snapshot(), store
}

func TestNewProductSubmitter_RequiresCollaborators(t *testing.T) {
	if _, err := NewProductSubmitter(ProductSubmissionDeps{Products: &stubProductRepository{}}); err == nil {
		t.Fatalf("expected error without uploader")
	}
	if _, err := NewProductSubmitter(ProductSubmissionDeps{Uploader: &stubUploader{}}); err == nil {
		t.Fatalf("expected error without repository")
	}
	if _, err := NewProductSubmitter(ProductSubmissionDeps{Uploader: &stubUploader{}, Products: &stubProductRepository{}, MaxConcurrentUploads: -1}); err == nil {
		t.Fatalf("expected error for negative concurrency")
	}
}

func TestProductSubmitter_ValidationFailureSkipsUploads(t *testing.T) {
	uploader := &stubUploader{}
	repo := &stubProductRepository{}
	submitter := newTestSubmitter(t, uploader, repo, nil)

	_, store := submittableMatrix()
	store.SetProductDetails(domain.ProductDetails{})
	store.MainImages().Select(pendingImage("a.png"))

	_, err := submitter.Submit(context.Background(), SubmissionRequest{Matrix: store.Snapshot()})
	if !errors.Is(err, ErrSubmissionValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	var validationErr *ValidationFailedError
	if !errors.As(err, &validationErr) || len(validationErr.Findings) != 2 {
		t.Fatalf("expected findings on the error, got %#v", err)
	}
	if len(uploader.uploaded()) != 0 {
		t.Fatalf("expected no uploads, got %v", uploader.uploaded())
	}
	if len(repo.created)+len(repo.updated) != 0 {
		t.Fatalf("expected no persistence calls")
	}
}

func TestProductSubmitter_UploadFailureSettlesBatchAndLeavesMatrixPending(t *testing.T) {
	uploader := &stubUploader{
		fail:  map[string]error{"second.png": errors.New("quota exceeded")},
		delay: 5 * time.Millisecond,
	}
	repo := &stubProductRepository{}
	submitter := newTestSubmitter(t, uploader, repo, nil)

	_, store := submittableMatrix()
	store.MainImages().Select(pendingImage("first.png"), pendingImage("second.png"))
	variantID := store.Snapshot().Variants[0].ID
	store.VariantImages(variantID).Select(pendingImage("red.png"))
	matrix := store.Snapshot()

	_, err := submitter.Submit(context.Background(), SubmissionRequest{Matrix: matrix})

	if !errors.Is(err, ErrSubmissionUploadFailed) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	var uploadErr *UploadFailedError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadFailedError, got %T", err)
	}
	if len(uploadErr.Failures) != 1 {
		t.Fatalf("expected one failure, got %#v", uploadErr.Failures)
	}
	failure := uploadErr.Failures[0]
	if failure.SetKey != "main" || failure.Position != 1 {
		t.Fatalf("expected failure at main position 1, got %#v", failure)
	}
	if !strings.Contains(failure.Message(), "main image 1") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("unexpected failure message %q / %q", failure.Message(), err.Error())
	}

	if got := len(uploader.uploaded()); got != 3 {
		t.Fatalf("expected every sibling upload to run to completion, got %d calls", got)
	}
	if len(repo.created)+len(repo.updated) != 0 {
		t.Fatalf("expected no persistence after a failed batch")
	}

	current := store.Snapshot()
	if current.MainImages.PendingCount() != 2 {
		t.Fatalf("expected both main slots still pending, got %d", current.MainImages.PendingCount())
	}
	if current.Variants[0].Images.PendingCount() != 1 {
		t.Fatalf("expected variant slot still pending")
	}
	if !reflect.DeepEqual(current, matrix) {
		t.Fatalf("expected matrix untouched by failed submission")
	}
}

func TestProductSubmitter_UploadFailureNamesVariant(t *testing.T) {
	uploader := &stubUploader{fail: map[string]error{"b.png": errors.New("timeout")}}
	submitter := newTestSubmitter(t, uploader, &stubProductRepository{}, nil)

	_, store := submittableMatrix()
	variantID := store.Snapshot().Variants[0].ID
	store.VariantImages(variantID).Select(domain.UploadedSlot("https://cdn.example.com/kept.png"), pendingImage("b.png"))

	_, err := submitter.Submit(context.Background(), SubmissionRequest{Matrix: store.Snapshot()})
	var uploadErr *UploadFailedError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadFailedError, got %v", err)
	}
	failure := uploadErr.Failures[0]
	if failure.SetKey != variantID || failure.Color != "Red" || failure.Position != 1 {
		t.Fatalf("unexpected failure %#v", failure)
	}
	if failure.Message() != "Red image 1: timeout" {
		t.Fatalf("unexpected message %q", failure.Message())
	}
}

func TestProductSubmitter_CreatesProductWithResolvedImages(t *testing.T) {
	uploader := &stubUploader{}
	repo := &stubProductRepository{}
	events := &stubEventPublisher{}
	submitter := newTestSubmitter(t, uploader, repo, events)

	_, store := submittableMatrix()
	store.MainImages().Select(
		domain.UploadedSlot("https://cdn.example.com/existing.png"),
		pendingImage("a.png"),
		pendingImage("b.png"),
	)
	store.MainImages().SetPrimary(2)
	variantID := store.Snapshot().Variants[0].ID
	store.VariantImages(variantID).Select(pendingImage("red.png"))

	record, err := submitter.Submit(context.Background(), SubmissionRequest{Matrix: store.Snapshot()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID != "prod-new" {
		t.Fatalf("expected created record, got %#v", record)
	}
	if len(repo.created) != 1 || len(repo.updated) != 0 {
		t.Fatalf("expected a single create call")
	}

	payload := repo.created[0]
	wantMain := []string{
		"https://cdn.example.com/existing.png",
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/b.png",
	}
	if !reflect.DeepEqual(payload.MainImages.URLs, wantMain) {
		t.Fatalf("unexpected main images %v", payload.MainImages.URLs)
	}
	if payload.MainImages.PrimaryIndex != 2 {
		t.Fatalf("expected primary index preserved, got %d", payload.MainImages.PrimaryIndex)
	}
	if got := payload.Variants[0].Images.URLs; !reflect.DeepEqual(got, []string{"https://cdn.example.com/red.png"}) {
		t.Fatalf("unexpected variant images %v", got)
	}

	if len(events.events) != 1 {
		t.Fatalf("expected one saved event, got %d", len(events.events))
	}
	event := events.events[0]
	if !event.Created || event.ProductID != "prod-new" || event.VariantCount != 1 {
		t.Fatalf("unexpected event %#v", event)
	}
	if event.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC event time, got %s", event.OccurredAt.Location())
	}
}

func TestProductSubmitter_UpdatesExistingProduct(t *testing.T) {
	repo := &stubProductRepository{}
	events := &stubEventPublisher{err: errors.New("topic missing")}
	submitter := newTestSubmitter(t, &stubUploader{}, repo, events)

	matrix, _ := submittableMatrix()
	record, err := submitter.Submit(context.Background(), SubmissionRequest{ProductID: "prod-7", Matrix: matrix})
	if err != nil {
		t.Fatalf("publish failures must not fail the submission: %v", err)
	}
	if record.ID != "prod-7" || len(repo.updatedIDs) != 1 || repo.updatedIDs[0] != "prod-7" {
		t.Fatalf("expected update of prod-7, got %#v / %v", record, repo.updatedIDs)
	}
	if len(events.events) != 1 || events.events[0].Created {
		t.Fatalf("expected one update event, got %#v", events.events)
	}
}

func TestProductSubmitter_PersistenceFailure(t *testing.T) {
	repoErr := &stubRepositoryError{err: errors.New("deadline exceeded"), unavailable: true}
	repo := &stubProductRepository{
		createFn: func(context.Context, domain.ProductPayload) (domain.ProductRecord, error) {
			return domain.ProductRecord{}, repoErr
		},
	}
	events := &stubEventPublisher{}
	submitter := newTestSubmitter(t, &stubUploader{}, repo, events)

	matrix, _ := submittableMatrix()
	_, err := submitter.Submit(context.Background(), SubmissionRequest{Matrix: matrix})
	if !errors.Is(err, ErrSubmissionPersistenceFailed) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected repository error to stay inspectable, got %v", err)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no event on failure")
	}
}

func TestProductSubmitter_BoundsConcurrentUploads(t *testing.T) {
	uploader := &stubUploader{delay: 10 * time.Millisecond}
	submitter, err := NewProductSubmitter(ProductSubmissionDeps{
		Uploader:             uploader,
		Products:             &stubProductRepository{},
		MaxConcurrentUploads: 2,
	})
	if err != nil {
		t.Fatalf("new submitter: %v", err)
	}

	_, store := submittableMatrix()
	for i := 0; i < 6; i++ {
		store.MainImages().Select(pendingImage(fmt.Sprintf("img-%d.png", i)))
	}
	if _, err := submitter.Submit(context.Background(), SubmissionRequest{Matrix: store.Snapshot()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := uploader.maxSeen.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent uploads, saw %d", got)
	}
	if got := len(uploader.uploaded()); got != 6 {
		t.Fatalf("expected 6 uploads, got %d", got)
	}
}

func TestProductSubmitter_UploadsSurviveCallerCancellation(t *testing.T) {
	uploader := &stubUploader{delay: 5 * time.Millisecond}
	repo := &stubProductRepository{}
	submitter := newTestSubmitter(t, uploader, repo, nil)

	_, store := submittableMatrix()
	store.MainImages().Select(pendingImage("a.png"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := submitter.Submit(ctx, SubmissionRequest{Matrix: store.Snapshot()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(uploader.uploaded()) != 1 {
		t.Fatalf("expected upload to complete despite cancelled caller")
	}
}

func TestProductSubmitter_SanitisesDescription(t *testing.T) {
	repo := &stubProductRepository{}
	submitter := newTestSubmitter(t, &stubUploader{}, repo, nil)

	_, store := submittableMatrix()
	details := store.Snapshot().Product
	details.Description = `<p>Soft cotton</p><script>alert(1)</script>`
	store.SetProductDetails(details)

	if _, err := submitter.Submit(context.Background(), SubmissionRequest{Matrix: store.Snapshot()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.created[0].Description; got != "<p>Soft cotton</p>" {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestAssemblePayload_DropsStaleAttributes(t *testing.T) {
	schema := []domain.AttributeSchema{
		{Name: "Material", Kind: domain.AttributeKindText, Required: true},
		{Name: "Notes", Kind: domain.AttributeKindText},
	}
	_, store := submittableMatrix()
	variant := store.Snapshot().Variants[0]
	sizeID := variant.Sizes[0].ID
	store.SetSizeAttribute(variant.ID, sizeID, "OldAttr", domain.TextValue("x"))
	store.SetSizeAttribute(variant.ID, sizeID, "Material", domain.TextValue("Cotton"))
	store.SetSizeAttribute(variant.ID, sizeID, "Notes", domain.TextValue(""))
	store.UpdateSizeField(variant.ID, sizeID, SizeFieldsPatch{Stock: "4", PriceModifier: "1.5", SKU: ptr("TEE-RED-M")})

	payload := AssemblePayload(store.Snapshot(), schema, ResolvedImageSets{})

	size := payload.Variants[0].Sizes[0]
	if _, ok := size.Attributes["OldAttr"]; ok {
		t.Fatalf("expected stale attribute dropped, got %#v", size.Attributes)
	}
	if !reflect.DeepEqual(size.Attributes, map[string]any{"Material": "Cotton"}) {
		t.Fatalf("unexpected attributes %#v", size.Attributes)
	}
	if size.Stock != 4 || size.PriceModifier != 1.5 || size.SKU != "TEE-RED-M" || size.SizeLabel != "M" {
		t.Fatalf("unexpected size payload %#v", size)
	}
	if payload.Name != "Tee" || payload.Price != 25 || payload.CategoryID != "apparel" {
		t.Fatalf("unexpected product fields %#v", payload)
	}
	if payload.Variants[0].Color != "Red" {
		t.Fatalf("unexpected color %q", payload.Variants[0].Color)
	}
}
