package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/catalog-console/api/internal/domain"
	"github.com/catalog-console/api/internal/repositories"
)

const defaultEditorSessionTTL = 2 * time.Hour

var (
	// ErrEditorSessionNotFound indicates the session id is unknown, closed, or expired.
	ErrEditorSessionNotFound = errors.New("product editor: session not found")
	// ErrEditorInvalidInput indicates the caller supplied an invalid argument.
	ErrEditorInvalidInput = errors.New("product editor: invalid input")
	// ErrEditorCategoryNotFound indicates the selected category does not exist.
	ErrEditorCategoryNotFound = errors.New("product editor: category not found")
	// ErrEditorProductNotFound indicates the product being edited does not exist.
	ErrEditorProductNotFound = errors.New("product editor: product not found")
	// ErrEditorRepositoryUnavailable indicates the catalog could not be reached.
	ErrEditorRepositoryUnavailable = errors.New("product editor: repository unavailable")
)

// ProductEditorServiceDeps wires dependencies for the editor session service.
type ProductEditorServiceDeps struct {
	Products   repositories.ProductRepository
	Categories repositories.CategoryRepository
	Submitter  ProductSubmissionPipeline
	Clock      func() time.Time
	// IDGenerator mints session, variant and size ids. Defaults to ULIDs.
	IDGenerator func() string
	SessionTTL  time.Duration
	Logger      *zap.Logger
}

// EditorSession is the context object of one product editor. It is only handed out under its lock.
type EditorSession struct {
	ID         string
	ProductID  string
	CategoryID string
	Schema     []domain.AttributeSchema
	Filters    []domain.AttributeSchema
	Store      *VariantMatrixStore

	mu        sync.Mutex
	updatedAt time.Time
}

// SchemaKind returns the kind the active schema declares for name.
func (s *EditorSession) SchemaKind(name string) (domain.AttributeKind, bool) {
	for _, attr := range s.Schema {
		if attr.Name == name {
			return attr.Kind, true
		}
	}
	return "", false
}

// CoerceValue converts raw operator input against the active schema.
func (s *EditorSession) CoerceValue(name string, raw any) domain.AttributeValue {
	if kind, ok := s.SchemaKind(name); ok {
		return domain.CoerceAttributeValue(raw, kind)
	}
	return domain.AttributeValueFromRaw(raw)
}

func (s *EditorSession) snapshot() EditorSnapshot {
	return EditorSnapshot{
		SessionID:  s.ID,
		ProductID:  s.ProductID,
		CategoryID: s.CategoryID,
		Schema:     cloneSchemas(s.Schema),
		Filters:    cloneSchemas(s.Filters),
		Matrix:     s.Store.Snapshot(),
		UpdatedAt:  s.updatedAt,
	}
}

type productEditorService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	submitter  ProductSubmissionPipeline
	clock      func() time.Time
	newID      func() string
	ttl        time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*EditorSession
}

// NewProductEditorService constructs the session service.
func NewProductEditorService(deps ProductEditorServiceDeps) (ProductEditorService, error) {
	if deps.Products == nil {
		return nil, errors.New("product editor: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("product editor: category repository is required")
	}
	if deps.Submitter == nil {
		return nil, errors.New("product editor: submitter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultEditorSessionTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &productEditorService{
		products:   deps.Products,
		categories: deps.Categories,
		submitter:  deps.Submitter,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    newID,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*EditorSession),
	}, nil
}

func (s *productEditorService) OpenSession(ctx context.Context, cmd OpenSessionCommand) (EditorSnapshot, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	categoryID := strings.TrimSpace(cmd.CategoryID)

	matrix := domain.VariantMatrix{}
	if productID != "" {
		record, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return EditorSnapshot{}, s.mapRepositoryError(err, ErrEditorProductNotFound)
		}
		matrix = MatrixFromRecord(record, s.newID)
		if categoryID == "" {
			categoryID = record.CategoryID
		}
	}

	session := &EditorSession{
		ID:        s.newID(),
		ProductID: productID,
		Schema:    []domain.AttributeSchema{},
		Filters:   []domain.AttributeSchema{},
		Store:     NewVariantMatrixStore(&matrix, s.newID),
		updatedAt: s.clock(),
	}
	if categoryID != "" {
		category, err := s.loadCategory(ctx, categoryID)
		if err != nil {
			return EditorSnapshot{}, err
		}
		session.applyCategory(category)
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("product editor: session opened",
		zap.String("sessionId", session.ID),
		zap.String("productId", productID),
		zap.String("categoryId", session.CategoryID),
	)
	return session.snapshot(), nil
}

func (s *productEditorService) Snapshot(sessionID string) (EditorSnapshot, error) {
	return s.Edit(sessionID, nil)
}

func (s *productEditorService) SelectCategory(ctx context.Context, sessionID, categoryID string) (EditorSnapshot, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return EditorSnapshot{}, fmt.Errorf("%w: category id is required", ErrEditorInvalidInput)
	}
	if _, err := s.lookup(sessionID); err != nil {
		return EditorSnapshot{}, err
	}
	category, err := s.loadCategory(ctx, categoryID)
	if err != nil {
		return EditorSnapshot{}, err
	}
	return s.Edit(sessionID, func(session *EditorSession) error {
		session.applyCategory(category)
		return nil
	})
}

func (s *productEditorService) Edit(sessionID string, fn func(*EditorSession) error) (EditorSnapshot, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return EditorSnapshot{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if fn != nil {
		if err := fn(session); err != nil {
			return EditorSnapshot{}, err
		}
		session.updatedAt = s.clock()
	}
	return session.snapshot(), nil
}

func (s *productEditorService) SetAttribute(sessionID, variantID, sizeID, name string, raw any) (EditorSnapshot, error) {
	if strings.TrimSpace(name) == "" {
		return EditorSnapshot{}, fmt.Errorf("%w: attribute name is required", ErrEditorInvalidInput)
	}
	return s.Edit(sessionID, func(session *EditorSession) error {
		session.Store.SetSizeAttribute(variantID, sizeID, name, session.CoerceValue(name, raw))
		return nil
	})
}

func (s *productEditorService) BroadcastAttribute(sessionID, name string, raw any) (EditorSnapshot, error) {
	if strings.TrimSpace(name) == "" {
		return EditorSnapshot{}, fmt.Errorf("%w: attribute name is required", ErrEditorInvalidInput)
	}
	return s.Edit(sessionID, func(session *EditorSession) error {
		session.Store.BroadcastAttribute(name, session.CoerceValue(name, raw))
		return nil
	})
}

func (s *productEditorService) Validate(sessionID string) ([]ValidationFinding, error) {
	var findings []ValidationFinding
	_, err := s.Edit(sessionID, func(session *EditorSession) error {
		findings = ValidateVariantMatrix(session.Store.Snapshot(), session.Schema)
		return nil
	})
	return findings, err
}

// Submit hands the session to the submission pipeline. The session is closed on success and kept
// untouched on any failure so the operator can fix and retry.
func (s *productEditorService) Submit(ctx context.Context, sessionID string) (domain.ProductRecord, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return domain.ProductRecord{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	record, err := s.submitter.Submit(ctx, SubmissionRequest{
		ProductID: session.ProductID,
		Matrix:    session.Store.Snapshot(),
		Schema:    cloneSchemas(session.Schema),
	})
	session.updatedAt = s.clock()
	if err != nil {
		return domain.ProductRecord{}, err
	}

	s.mu.Lock()
	delete(s.sessions, session.ID)
	s.mu.Unlock()

	s.logger.Info("product editor: session submitted",
		zap.String("sessionId", session.ID),
		zap.String("productId", record.ID),
	)
	return record, nil
}

func (s *productEditorService) Close(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrEditorSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// SweepExpired discards sessions idle for longer than the TTL. Sessions busy in an operation are skipped.
func (s *productEditorService) SweepExpired(now time.Time) int {
	cutoff := now.UTC().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if !session.mu.TryLock() {
			continue
		}
		expired := session.updatedAt.Before(cutoff)
		session.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("product editor: expired sessions removed", zap.Int("count", removed))
	}
	return removed
}

func (s *productEditorService) lookup(sessionID string) (*EditorSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrEditorInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrEditorSessionNotFound
	}
	return session, nil
}

func (s *productEditorService) loadCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return domain.Category{}, s.mapRepositoryError(err, ErrEditorCategoryNotFound)
	}
	if category.ID == "" {
		category.ID = categoryID
	}
	return category, nil
}

func (s *productEditorService) mapRepositoryError(err error, notFound error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrEditorRepositoryUnavailable, err)
		}
	}
	return fmt.Errorf("product editor: %w", err)
}

// applyCategory replaces the schema wholesale. Recorded attribute values stay in place and become
// inert when the new schema does not name them.
func (s *EditorSession) applyCategory(category domain.Category) {
	s.CategoryID = category.ID
	s.Schema = NormalizeAttributeSchemas(category.Attributes)
	s.Filters = NormalizeFilters(category.Filters)
	details := s.Store.Snapshot().Product
	details.CategoryID = category.ID
	s.Store.SetProductDetails(details)
}

func cloneSchemas(in []domain.AttributeSchema) []domain.AttributeSchema {
	out := make([]domain.AttributeSchema, len(in))
	for i, schema := range in {
		schema.Options = append([]string{}, schema.Options...)
		out[i] = schema
	}
	return out
}
