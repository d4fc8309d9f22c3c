package httpx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
	"github.com/ariefcatur/go-saga-commerce/internal/cache"
	"github.com/ariefcatur/go-saga-commerce/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CatalogService interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, cache.Source, error)
	GetProductBySlug(ctx context.Context, slug string) (catalog.Product, cache.Source, error)
	GetVariantBySKU(ctx context.Context, sku string) (catalog.Variant, cache.Source, error)
	ListProducts(ctx context.Context, q catalog.ListQuery) (catalog.ProductPage, cache.Source, error)
	GetCategory(ctx context.Context, id string) (catalog.Category, cache.Source, error)
	GetCategoryBySlug(ctx context.Context, slug string) (catalog.Category, cache.Source, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]catalog.Category, cache.Source, error)

	CreateProduct(ctx context.Context, in catalog.ProductInput) (catalog.Product, error)
	UpdateProduct(ctx context.Context, id string, patch catalog.ProductPatch) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) (catalog.Product, error)
	RestoreProduct(ctx context.Context, id string) (catalog.Product, error)
	BulkSetProductsActive(ctx context.Context, ids []string, active bool) ([]catalog.Product, error)
	CreateVariant(ctx context.Context, productID string, in catalog.VariantInput) (catalog.Variant, error)
	UpdateVariant(ctx context.Context, id string, patch catalog.VariantPatch) (catalog.Variant, error)
	CreateCategory(ctx context.Context, in catalog.CategoryInput) (catalog.Category, error)
	UpdateCategory(ctx context.Context, id string, patch catalog.CategoryPatch) (catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) (catalog.Category, error)
}

type CatalogHandler struct {
	Catalog CatalogService
	Log     *zap.Logger
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Post("/products/bulk-active", h.bulkActive)
	r.Get("/products/slug/{slug}", h.getProductBySlug)
	r.Get("/products/{id}", h.getProduct)
	r.Patch("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)
	r.Post("/products/{id}/restore", h.restoreProduct)
	r.Post("/products/{id}/variants", h.createVariant)
	r.Get("/variants/sku/{sku}", h.getVariant)
	r.Patch("/variants/{id}", h.updateVariant)

	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Get("/categories/slug/{slug}", h.getCategoryBySlug)
	r.Get("/categories/{id}", h.getCategory)
	r.Patch("/categories/{id}", h.updateCategory)
	r.Delete("/categories/{id}", h.deleteCategory)
}

func timeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 3*time.Second)
}

func intParam(v url.Values, name string) (int, error) {
	s := v.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", apperr.ErrValidation, name)
	}
	return n, nil
}

func boolParam(v url.Values, name string) (bool, error) {
	s := v.Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", apperr.ErrValidation, name)
	}
	return b, nil
}

func parseListQuery(v url.Values) (catalog.ListQuery, error) {
	q := catalog.ListQuery{
		Category: v.Get("category"),
		Search:   v.Get("search"),
		MinPrice: v.Get("minPrice"),
		MaxPrice: v.Get("maxPrice"),
		Sort:     v.Get("sort"),
	}
	var err error
	if q.Page, err = intParam(v, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(v, "pageSize"); err != nil {
		return q, err
	}
	if q.IncludeInactive, err = boolParam(v, "includeInactive"); err != nil {
		return q, err
	}
	return q, nil
}

// ---- reads ----

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	page, src, err := h.Catalog.ListProducts(ctx, q)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeCached(w, page, src)
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	p, src, err := h.Catalog.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeCached(w, p, src)
}

func (h *CatalogHandler) getProductBySlug(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	p, src, err := h.Catalog.GetProductBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeCached(w, p, src)
}

func (h *CatalogHandler) getVariant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	v, src, err := h.Catalog.GetVariantBySKU(ctx, chi.URLParam(r, "sku"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeCached(w, v, src)
}

func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	all, err := boolParam(r.URL.Query(), "includeInactive")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	list, src, err := h.Catalog.ListCategories(ctx, all)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeCached(w, list, src)
}

func (h *CatalogHandler) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	c, src, err := h.Catalog.GetCategory(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeCached(w, c, src)
}

func (h *CatalogHandler) getCategoryBySlug(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	c, src, err := h.Catalog.GetCategoryBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeCached(w, c, src)
}

// ---- writes ----

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	p, err := h.Catalog.CreateProduct(ctx, in)
	writeResult(w, h.Log, http.StatusCreated, p, err)
}

func (h *CatalogHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch catalog.ProductPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	p, err := h.Catalog.UpdateProduct(ctx, chi.URLParam(r, "id"), patch)
	writeResult(w, h.Log, http.StatusOK, p, err)
}

func (h *CatalogHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	p, err := h.Catalog.DeleteProduct(ctx, chi.URLParam(r, "id"))
	writeResult(w, h.Log, http.StatusOK, p, err)
}

func (h *CatalogHandler) restoreProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	p, err := h.Catalog.RestoreProduct(ctx, chi.URLParam(r, "id"))
	writeResult(w, h.Log, http.StatusOK, p, err)
}

func (h *CatalogHandler) bulkActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs    []string `json:"ids"`
		Active bool     `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	changed, err := h.Catalog.BulkSetProductsActive(ctx, req.IDs, req.Active)
	writeResult(w, h.Log, http.StatusOK, changed, err)
}

func (h *CatalogHandler) createVariant(w http.ResponseWriter, r *http.Request) {
	var in catalog.VariantInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	v, err := h.Catalog.CreateVariant(ctx, chi.URLParam(r, "id"), in)
	writeResult(w, h.Log, http.StatusCreated, v, err)
}

func (h *CatalogHandler) updateVariant(w http.ResponseWriter, r *http.Request) {
	var patch catalog.VariantPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	v, err := h.Catalog.UpdateVariant(ctx, chi.URLParam(r, "id"), patch)
	writeResult(w, h.Log, http.StatusOK, v, err)
}

func (h *CatalogHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	c, err := h.Catalog.CreateCategory(ctx, in)
	writeResult(w, h.Log, http.StatusCreated, c, err)
}

func (h *CatalogHandler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var patch catalog.CategoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := timeout(r)
	defer cancel()
	c, err := h.Catalog.UpdateCategory(ctx, chi.URLParam(r, "id"), patch)
	writeResult(w, h.Log, http.StatusOK, c, err)
}

func (h *CatalogHandler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r)
	defer cancel()
	c, err := h.Catalog.DeleteCategory(ctx, chi.URLParam(r, "id"))
	writeResult(w, h.Log, http.StatusOK, c, err)
}
