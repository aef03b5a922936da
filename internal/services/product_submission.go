package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/catalog-console/api/internal/domain"
	"github.com/catalog-console/api/internal/repositories"
)

const (
	submissionInstrumentation = "github.com/catalog-console/api/internal/services/product_submission"
	mainImageSetKey           = "main"

	submissionOutcomeSuccess          = "success"
	submissionOutcomeInvalid          = "invalid"
	submissionOutcomeUploadFailed     = "upload_failed"
	submissionOutcomePersistenceError = "persistence_failed"
)

var (
	// ErrSubmissionValidationFailed indicates the matrix still has validation findings.
	ErrSubmissionValidationFailed = errors.New("product submission: validation failed")
	// ErrSubmissionUploadFailed indicates at least one pending image could not be uploaded.
	ErrSubmissionUploadFailed = errors.New("product submission: image upload failed")
	// ErrSubmissionPersistenceFailed indicates the catalog rejected the assembled product.
	ErrSubmissionPersistenceFailed = errors.New("product submission: persistence failed")
)

// ValidationFailedError carries every finding that blocked submission.
type ValidationFailedError struct {
	Findings []ValidationFinding
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%s: %d finding(s)", ErrSubmissionValidationFailed.Error(), len(e.Findings))
}

func (e *ValidationFailedError) Unwrap() error { return ErrSubmissionValidationFailed }

// UploadFailure identifies one image that failed to upload.
type UploadFailure struct {
	// SetKey is "main" for the product images or the color variant id.
	SetKey   string
	Color    string
	Position int
	Err      error
}

// Message renders the failure for operators.
func (f UploadFailure) Message() string {
	if f.SetKey == mainImageSetKey {
		return fmt.Sprintf("main image %d: %v", f.Position, f.Err)
	}
	return fmt.Sprintf("%s image %d: %v", describeColor(domain.ColorVariant{Color: f.Color}), f.Position, f.Err)
}

// UploadFailedError lists every failed upload of a settled batch.
type UploadFailedError struct {
	Failures []UploadFailure
}

func (e *UploadFailedError) Error() string {
	messages := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		messages = append(messages, failure.Message())
	}
	return fmt.Sprintf("%s: %s", ErrSubmissionUploadFailed.Error(), strings.Join(messages, "; "))
}

func (e *UploadFailedError) Unwrap() error { return ErrSubmissionUploadFailed }

// SubmissionRequest is one submit action. An empty ProductID creates a new product.
type SubmissionRequest struct {
	ProductID string
	Matrix    domain.VariantMatrix
	Schema    []domain.AttributeSchema
}

// ResolvedImageSets holds the materialized image sets of a matrix keyed by color variant id.
type ResolvedImageSets struct {
	Main     domain.ResolvedImages
	Variants map[string]domain.ResolvedImages
}

// ProductSubmissionDeps wires the submission pipeline collaborators.
type ProductSubmissionDeps struct {
	Uploader AssetUploader
	Products repositories.ProductRepository
	// Events is optional; nil skips publishing.
	Events ProductEventPublisher
	Logger *zap.Logger
	Clock  func() time.Time
	// MaxConcurrentUploads bounds in-flight uploads per submission; 0 means unbounded.
	MaxConcurrentUploads int
	Tracer               trace.Tracer
	Meter                metric.Meter
}

// ProductSubmitter validates a matrix, uploads its pending images, and persists the result.
type ProductSubmitter struct {
	uploader      AssetUploader
	products      repositories.ProductRepository
	events        ProductEventPublisher
	logger        *zap.Logger
	clock         func() time.Time
	maxConcurrent int
	tracer        trace.Tracer
	uploads       metric.Int64Counter
	submissions   metric.Int64Counter
	description   *bluemonday.Policy
}

var _ ProductSubmissionPipeline = (*ProductSubmitter)(nil)

// NewProductSubmitter constructs the submission pipeline.
func NewProductSubmitter(deps ProductSubmissionDeps) (*ProductSubmitter, error) {
	if deps.Uploader == nil {
		return nil, errors.New("product submission: uploader is required")
	}
	if deps.Products == nil {
		return nil, errors.New("product submission: product repository is required")
	}
	if deps.MaxConcurrentUploads < 0 {
		return nil, errors.New("product submission: max concurrent uploads must not be negative")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(submissionInstrumentation)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(submissionInstrumentation)
	}

	uploads, err := meter.Int64Counter(
		"product.image_uploads",
		metric.WithDescription("Count of product image uploads by outcome"),
	)
	if err != nil {
		logger.Warn("product submission: unable to register upload metric", zap.Error(err))
	}
	submissions, err := meter.Int64Counter(
		"product.submissions",
		metric.WithDescription("Count of product submissions by outcome"),
	)
	if err != nil {
		logger.Warn("product submission: unable to register submission metric", zap.Error(err))
	}

	return &ProductSubmitter{
		uploader:      deps.Uploader,
		products:      deps.Products,
		events:        deps.Events,
		logger:        logger,
		clock:         func() time.Time { return clock().UTC() },
		maxConcurrent: deps.MaxConcurrentUploads,
		tracer:        tracer,
		uploads:       uploads,
		submissions:   submissions,
		description:   newDescriptionPolicy(),
	}, nil
}

// Submit runs validate, upload, assemble, persist in order and stops at the first failing step.
// The request matrix is never modified, so a failed submission can be retried as is.
func (s *ProductSubmitter) Submit(ctx context.Context, req SubmissionRequest) (domain.ProductRecord, error) {
	ctx, span := s.tracer.Start(ctx, "product.submit", trace.WithAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.Int("product.variants", len(req.Matrix.Variants)),
	))
	defer span.End()

	if findings := ValidateVariantMatrix(req.Matrix, req.Schema); len(findings) > 0 {
		s.recordSubmission(ctx, submissionOutcomeInvalid)
		span.SetStatus(codes.Error, "validation failed")
		return domain.ProductRecord{}, &ValidationFailedError{Findings: findings}
	}

	resolved, failures := s.uploadImages(ctx, req.Matrix)
	if len(failures) > 0 {
		s.recordSubmission(ctx, submissionOutcomeUploadFailed)
		err := &UploadFailedError{Failures: failures}
		span.RecordError(err)
		span.SetStatus(codes.Error, "image upload failed")
		s.logger.Warn("product submission: image uploads failed",
			zap.String("productId", req.ProductID),
			zap.Int("failed", len(failures)),
		)
		return domain.ProductRecord{}, err
	}

	payload := AssemblePayload(req.Matrix, req.Schema, resolved)
	payload.Description = s.description.Sanitize(payload.Description)

	created := req.ProductID == ""
	var (
		record domain.ProductRecord
		err    error
	)
	if created {
		record, err = s.products.Create(ctx, payload)
	} else {
		record, err = s.products.Update(ctx, req.ProductID, payload)
	}
	if err != nil {
		s.recordSubmission(ctx, submissionOutcomePersistenceError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return domain.ProductRecord{}, fmt.Errorf("%w: %w", ErrSubmissionPersistenceFailed, err)
	}

	s.recordSubmission(ctx, submissionOutcomeSuccess)
	span.SetAttributes(attribute.String("product.id", record.ID))
	s.publishSaved(ctx, record, created)
	return record, nil
}

type imageSetJob struct {
	key   string
	color string
	set   domain.ImageSet
	urls  []string
	errs  []error
}

// uploadImages uploads every pending slot of the main set and every variant set at once and waits
// for the whole batch to settle. A failed upload never cancels its siblings.
func (s *ProductSubmitter) uploadImages(ctx context.Context, matrix domain.VariantMatrix) (ResolvedImageSets, []UploadFailure) {
	jobs := make([]*imageSetJob, 0, len(matrix.Variants)+1)
	jobs = append(jobs, newImageSetJob(mainImageSetKey, "", matrix.MainImages))
	for _, variant := range matrix.Variants {
		jobs = append(jobs, newImageSetJob(variant.ID, variant.Color, variant.Images))
	}

	batchCtx := context.WithoutCancel(ctx)
	var group errgroup.Group
	if s.maxConcurrent > 0 {
		group.SetLimit(s.maxConcurrent)
	}
	for _, job := range jobs {
		for position, slot := range job.set.Images {
			if !slot.IsPending() {
				job.urls[position] = slot.URL
				continue
			}
			group.Go(func() error {
				job.urls[position], job.errs[position] = s.uploadOne(batchCtx, job.key, position, *slot.Pending)
				return nil
			})
		}
	}
	_ = group.Wait()

	resolved := ResolvedImageSets{Variants: make(map[string]domain.ResolvedImages, len(matrix.Variants))}
	var failures []UploadFailure
	for _, job := range jobs {
		for position, err := range job.errs {
			if err != nil {
				failures = append(failures, UploadFailure{SetKey: job.key, Color: job.color, Position: position, Err: err})
			}
		}
		images := domain.ResolvedImages{URLs: job.urls, PrimaryIndex: job.set.PrimaryIndex}
		if job.key == mainImageSetKey {
			resolved.Main = images
		} else {
			resolved.Variants[job.key] = images
		}
	}
	return resolved, failures
}

func newImageSetJob(key, color string, set domain.ImageSet) *imageSetJob {
	return &imageSetJob{
		key:   key,
		color: color,
		set:   set,
		urls:  make([]string, len(set.Images)),
		errs:  make([]error, len(set.Images)),
	}
}

func (s *ProductSubmitter) uploadOne(ctx context.Context, setKey string, position int, image domain.PendingImage) (string, error) {
	ctx, span := s.tracer.Start(ctx, "product.upload_image", trace.WithAttributes(
		attribute.String("image.set", setKey),
		attribute.Int("image.position", position),
		attribute.Int("image.bytes", len(image.Data)),
	))
	defer span.End()

	url, err := s.uploader.UploadImage(ctx, image)
	if err == nil && strings.TrimSpace(url) == "" {
		err = errors.New("asset store returned an empty url")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		s.recordUpload(ctx, "failure")
		return "", err
	}
	s.recordUpload(ctx, submissionOutcomeSuccess)
	return url, nil
}

func (s *ProductSubmitter) publishSaved(ctx context.Context, record domain.ProductRecord, created bool) {
	if s.events == nil {
		return
	}
	event := ProductSavedEvent{
		ProductID:    record.ID,
		Created:      created,
		VariantCount: len(record.Variants),
		OccurredAt:   s.clock(),
	}
	if err := s.events.PublishProductSaved(ctx, event); err != nil {
		s.logger.Warn("product submission: publish product saved event failed",
			zap.String("productId", record.ID),
			zap.Error(err),
		)
	}
}

func (s *ProductSubmitter) recordUpload(ctx context.Context, outcome string) {
	if s.uploads != nil {
		s.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (s *ProductSubmitter) recordSubmission(ctx context.Context, outcome string) {
	if s.submissions != nil {
		s.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// AssemblePayload builds the persisted product from a validated matrix and its resolved images.
// Attribute keys outside the schema and empty values are dropped; numeric size fields are
// re-coerced so the payload never carries NaN or negative stock.
func AssemblePayload(matrix domain.VariantMatrix, schema []domain.AttributeSchema, resolved ResolvedImageSets) domain.ProductPayload {
	payload := domain.ProductPayload{
		Name:        strings.TrimSpace(matrix.Product.Name),
		Description: matrix.Product.Description,
		CategoryID:  matrix.Product.CategoryID,
		Price:       matrix.Product.Price,
		MainImages:  copyResolved(resolved.Main),
		Variants:    make([]domain.VariantPayload, 0, len(matrix.Variants)),
	}
	if matrix.Product.CompareAtPrice != nil {
		compare := *matrix.Product.CompareAtPrice
		payload.CompareAtPrice = &compare
	}

	for _, variant := range matrix.Variants {
		images, ok := resolved.Variants[variant.ID]
		if !ok {
			images = materializedImages(variant.Images)
		}
		out := domain.VariantPayload{
			Color:  strings.TrimSpace(variant.Color),
			Images: copyResolved(images),
			Sizes:  make([]domain.SizePayload, 0, len(variant.Sizes)),
		}
		for _, size := range variant.Sizes {
			out.Sizes = append(out.Sizes, domain.SizePayload{
				SizeLabel:     size.SizeLabel,
				SKU:           size.SKU,
				Stock:         clampStock(float64(size.Stock)),
				PriceModifier: finiteOrZero(size.PriceModifier),
				Attributes:    collapseAttributes(size.Attributes, schema),
			})
		}
		payload.Variants = append(payload.Variants, out)
	}
	return payload
}

func collapseAttributes(values map[string]domain.AttributeValue, schema []domain.AttributeSchema) map[string]any {
	out := make(map[string]any, len(schema))
	for _, attr := range schema {
		value, ok := values[attr.Name]
		if !ok || value.IsEmpty() {
			continue
		}
		out[attr.Name] = value.Raw()
	}
	return out
}

func materializedImages(set domain.ImageSet) domain.ResolvedImages {
	urls := make([]string, 0, len(set.Images))
	for _, slot := range set.Images {
		urls = append(urls, slot.URL)
	}
	return domain.ResolvedImages{URLs: urls, PrimaryIndex: set.PrimaryIndex}
}

func copyResolved(images domain.ResolvedImages) domain.ResolvedImages {
	urls := make([]string, len(images.URLs))
	copy(urls, images.URLs)
	return domain.ResolvedImages{URLs: urls, PrimaryIndex: images.PrimaryIndex}
}

func finiteOrZero(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	return policy
}
