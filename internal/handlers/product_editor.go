package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/catalog-console/api/internal/domain"
	"github.com/catalog-console/api/internal/platform/httpx"
	"github.com/catalog-console/api/internal/platform/requestctx"
	"github.com/catalog-console/api/internal/services"
)

const (
	defaultMaxMultipartBytes = int64(64 * 1024 * 1024)
	multipartMemoryBytes     = int64(8 * 1024 * 1024)
	imagesFormField          = "images"
)

var (
	errVariantNotFound = errors.New("color variant not found")
	errImageIndex      = errors.New("image index out of range")
)

// ProductEditorHandlers exposes product editor sessions over HTTP.
type ProductEditorHandlers struct {
	editor            services.ProductEditorService
	maxMultipartBytes int64
}

// ProductEditorOption customises the handler set.
type ProductEditorOption func(*ProductEditorHandlers)

// WithMaxMultipartBytes caps the total size of an image selection request.
func WithMaxMultipartBytes(limit int64) ProductEditorOption {
	return func(h *ProductEditorHandlers) {
		if limit > 0 {
			h.maxMultipartBytes = limit
		}
	}
}

// NewProductEditorHandlers constructs the product editor handler set.
func NewProductEditorHandlers(editor services.ProductEditorService, opts ...ProductEditorOption) *ProductEditorHandlers {
	h := &ProductEditorHandlers{
		editor:            editor,
		maxMultipartBytes: defaultMaxMultipartBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the editor endpoints beneath /product-editor.
func (h *ProductEditorHandlers) Routes(r chi.Router) {
	r.Route("/product-editor", func(r chi.Router) {
		r.Post("/sessions", h.openSession)
		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Use(scopeEditorSession)
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)
			r.Put("/product", h.setProductDetails)
			r.Put("/category", h.selectCategory)
			r.Post("/size-options", h.addSizeOption)
			r.Post("/variants", h.addColorVariant)
			r.Patch("/variants/{variantId}", h.updateColorVariant)
			r.Delete("/variants/{variantId}", h.removeColorVariant)
			r.Post("/variants/{variantId}/sizes:toggle", h.toggleSize)
			r.Patch("/variants/{variantId}/sizes/{sizeId}", h.updateSizeFields)
			r.Put("/variants/{variantId}/sizes/{sizeId}/attributes/{name}", h.setSizeAttribute)
			r.Post("/attributes:broadcast", h.broadcastAttribute)
			r.Post("/images", h.selectImages)
			r.Delete("/images/{index}", h.removeImage)
			r.Post("/images/{index}:primary", h.setPrimaryImage)
			r.Get("/validation", h.validate)
		})
		r.With(scopeEditorSession).Post("/sessions/{sessionId}:submit", h.submit)
	})
}

func (h *ProductEditorHandlers) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	snapshot, err := h.editor.OpenSession(r.Context(), services.OpenSessionCommand{
		ProductID:  req.ProductID,
		CategoryID: req.CategoryID,
	})
	h.respondSession(w, r, http.StatusCreated, snapshot, err)
}

func (h *ProductEditorHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.editor.Snapshot(sessionIDParam(r))
	h.respondSession(w, r, http.StatusOK, snapshot, err)
}

func (h *ProductEditorHandlers) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.Close(sessionIDParam(r)); err != nil {
		writeEditorError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductEditorHandlers) setProductDetails(w http.ResponseWriter, r *http.Request) {
	var req productDetailsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	h.edit(w, r, func(session *services.EditorSession) error {
		session.Store.SetProductDetails(domain.ProductDetails{
			Name:           req.Name,
			Description:    req.Description,
			CategoryID:     session.CategoryID,
			Price:          req.Price,
			CompareAtPrice: req.CompareAtPrice,
		})
		return nil
	})
}

func (h *ProductEditorHandlers) selectCategory(w http.ResponseWriter, r *http.Request) {
	var req selectCategoryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	snapshot, err := h.editor.SelectCategory(r.Context(), sessionIDParam(r), req.CategoryID)
	h.respondSession(w, r, http.StatusOK, snapshot, err)
}

func (h *ProductEditorHandlers) addSizeOption(w http.ResponseWriter, r *http.Request) {
	var req sizeLabelRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	h.edit(w, r, func(session *services.EditorSession) error {
		session.Store.AddGlobalSizeOption(req.Label)
		return nil
	})
}

func (h *ProductEditorHandlers) addColorVariant(w http.ResponseWriter, r *http.Request) {
	var req colorVariantRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	snapshot, err := h.editor.Edit(sessionIDParam(r), func(session *services.EditorSession) error {
		id := session.Store.AddColorVariant()
		if req.Color != nil {
			session.Store.UpdateColorVariant(id, services.ColorVariantPatch{Color: req.Color})
		}
		return nil
	})
	h.respondSession(w, r, http.StatusCreated, snapshot, err)
}

func (h *ProductEditorHandlers) updateColorVariant(w http.ResponseWriter, r *http.Request) {
	var req colorVariantRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	variantID := chi.URLParam(r, "variantId")
	h.edit(w, r, func(session *services.EditorSession) error {
		session.Store.UpdateColorVariant(variantID, services.ColorVariantPatch{Color: req.Color})
		return nil
	})
}

func (h *ProductEditorHandlers) removeColorVariant(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantId")
	h.edit(w, r, func(session *services.EditorSession) error {
		session.Store.RemoveColorVariant(variantID)
		return nil
	})
}

func (h *ProductEditorHandlers) toggleSize(w http.ResponseWriter, r *http.Request) {
	var req sizeLabelRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	variantID := chi.URLParam(r, "variantId")
	h.edit(w, r, func(session *services.EditorSession) error {
		session.Store.ToggleSize(variantID, req.Label)
		return nil
	})
}

func (h *ProductEditorHandlers) updateSizeFields(w http.ResponseWriter, r *http.Request) {
	var req sizeFieldsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	variantID := chi.URLParam(r, "variantId")
	sizeID := chi.URLParam(r, "sizeId")
	h.edit(w, r, func(session *services.EditorSession) error {
		session.Store.UpdateSizeField(variantID, sizeID, services.SizeFieldsPatch{
			SKU:           req.SKU,
			Stock:         req.Stock,
			PriceModifier: req.PriceModifier,
		})
		return nil
	})
}

func (h *ProductEditorHandlers) setSizeAttribute(w http.ResponseWriter, r *http.Request) {
	var req attributeValueRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	snapshot, err := h.editor.SetAttribute(
		sessionIDParam(r),
		chi.URLParam(r, "variantId"),
		chi.URLParam(r, "sizeId"),
		attributeNameParam(r),
		req.Value,
	)
	h.respondSession(w, r, http.StatusOK, snapshot, err)
}

func (h *ProductEditorHandlers) broadcastAttribute(w http.ResponseWriter, r *http.Request) {
	var req broadcastAttributeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	snapshot, err := h.editor.BroadcastAttribute(sessionIDParam(r), req.Name, req.Value)
	h.respondSession(w, r, http.StatusOK, snapshot, err)
}

// selectImages appends uploaded files as pending slots of the main set, or of the variant
// named by the variantId query parameter.
func (h *ProductEditorHandlers) selectImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxMultipartBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "image selection exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form data is required", http.StatusBadRequest))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File[imagesFormField]
	if len(files) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one image is required", http.StatusBadRequest))
		return
	}
	slots := make([]domain.ImageSlot, 0, len(files))
	for _, header := range files {
		image, err := readPendingImage(header)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		slots = append(slots, domain.PendingSlot(image))
	}

	variantID := strings.TrimSpace(r.URL.Query().Get("variantId"))
	h.edit(w, r, func(session *services.EditorSession) error {
		set, err := imageSetFor(session, variantID)
		if err != nil {
			return err
		}
		set.Select(slots...)
		return nil
	})
}

func (h *ProductEditorHandlers) removeImage(w http.ResponseWriter, r *http.Request) {
	index, ok := imageIndexParam(w, r)
	if !ok {
		return
	}
	variantID := strings.TrimSpace(r.URL.Query().Get("variantId"))
	h.edit(w, r, func(session *services.EditorSession) error {
		set, err := imageSetFor(session, variantID)
		if err != nil {
			return err
		}
		if index >= set.Len() {
			return errImageIndex
		}
		set.Remove(index)
		return nil
	})
}

func (h *ProductEditorHandlers) setPrimaryImage(w http.ResponseWriter, r *http.Request) {
	index, ok := imageIndexParam(w, r)
	if !ok {
		return
	}
	variantID := strings.TrimSpace(r.URL.Query().Get("variantId"))
	h.edit(w, r, func(session *services.EditorSession) error {
		set, err := imageSetFor(session, variantID)
		if err != nil {
			return err
		}
		if index >= set.Len() {
			return errImageIndex
		}
		set.SetPrimary(index)
		return nil
	})
}

func (h *ProductEditorHandlers) validate(w http.ResponseWriter, r *http.Request) {
	findings, err := h.editor.Validate(sessionIDParam(r))
	if err != nil {
		writeEditorError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, validationResponse{
		Valid:    len(findings) == 0,
		Findings: buildFindingPayloads(findings),
	})
}

func (h *ProductEditorHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.editor.Submit(ctx, sessionIDParam(r))
	if err != nil {
		requestctx.Logger(ctx).Warn("product editor: submission rejected", zap.Error(err))
		writeEditorError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productRecordResponse{Product: buildProductRecordPayload(record)})
}

func (h *ProductEditorHandlers) edit(w http.ResponseWriter, r *http.Request, fn func(*services.EditorSession) error) {
	snapshot, err := h.editor.Edit(sessionIDParam(r), fn)
	h.respondSession(w, r, http.StatusOK, snapshot, err)
}

func (h *ProductEditorHandlers) respondSession(w http.ResponseWriter, r *http.Request, status int, snapshot services.EditorSnapshot, err error) {
	if err != nil {
		writeEditorError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, status, sessionResponse{Session: buildSessionPayload(snapshot)})
}

func imageSetFor(session *services.EditorSession, variantID string) (*domain.ImageSet, error) {
	if variantID == "" {
		return session.Store.MainImages(), nil
	}
	set := session.Store.VariantImages(variantID)
	if set == nil {
		return nil, errVariantNotFound
	}
	return set, nil
}

func readPendingImage(header *multipart.FileHeader) (domain.PendingImage, error) {
	file, err := header.Open()
	if err != nil {
		return domain.PendingImage{}, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.PendingImage{}, fmt.Errorf("read %s: %w", header.Filename, err)
	}
	return domain.PendingImage{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func imageIndexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "image index must be a non-negative integer", http.StatusBadRequest))
		return 0, false
	}
	return index, true
}

// scopeEditorSession binds the path session id to the request context and logger.
func scopeEditorSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "sessionId"))
		next.ServeHTTP(w, r.WithContext(requestctx.WithEditorSession(r.Context(), id)))
	})
}

func sessionIDParam(r *http.Request) string {
	if id := requestctx.EditorSession(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(chi.URLParam(r, "sessionId"))
}

func attributeNameParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

func writeEditorError(ctx context.Context, w http.ResponseWriter, err error) {
	var validationErr *services.ValidationFailedError
	var uploadErr *services.UploadFailedError
	switch {
	case errors.As(err, &validationErr):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "product has validation findings", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"findings": buildFindingPayloads(validationErr.Findings)}))
	case errors.As(err, &uploadErr):
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "one or more images failed to upload", http.StatusBadGateway).
			WithDetails(map[string]any{"failures": buildUploadFailurePayloads(uploadErr.Failures)}))
	case errors.Is(err, services.ErrSubmissionPersistenceFailed):
		httpx.WriteError(ctx, w, httpx.NewError("persistence_failed", "product could not be saved", http.StatusBadGateway))
	case errors.Is(err, services.ErrEditorSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "editor session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrEditorProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrEditorCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, errVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, errImageIndex):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrEditorInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrEditorRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog temporarily unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("product editor: unexpected error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
	}
}
