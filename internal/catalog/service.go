package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/cache"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/ariefcatur/go-saga-commerce/internal/redisx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service serves catalog reads through the cache and keeps the cache honest on writes:
// every write invalidates the entity's keys and list shapes after commit and before it
// returns.
type Service struct {
	store Store
	cache *cache.Cache
	pub   *events.Publisher
	log   *zap.Logger
	now   func() time.Time

	products   cache.Keys
	variants   cache.Keys
	categories cache.Keys
}

func NewService(store Store, c *cache.Cache, pub *events.Publisher, log *zap.Logger) *Service {
	return &Service{
		store:      store,
		cache:      c,
		pub:        pub,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		products:   cache.NewKeys(redisx.NamespaceProduct),
		variants:   cache.NewKeys(redisx.NamespaceVariant),
		categories: cache.NewKeys(redisx.NamespaceCategory),
	}
}

// ---- reads ----

func (s *Service) GetProduct(ctx context.Context, id string) (Product, cache.Source, error) {
	return cache.Fetch(ctx, s.cache, s.products.ID(id), s.cache.TTL().Long, func(ctx context.Context) (Product, error) {
		return s.store.GetProduct(ctx, id)
	}, func(p Product) string { return s.products.Alias("slug", p.Slug) })
}

func (s *Service) GetProductBySlug(ctx context.Context, slug string) (Product, cache.Source, error) {
	return cache.Fetch(ctx, s.cache, s.products.Alias("slug", slug), s.cache.TTL().Long, func(ctx context.Context) (Product, error) {
		return s.store.GetProductBySlug(ctx, slug)
	}, func(p Product) string { return s.products.ID(p.ID) })
}

func (s *Service) GetVariantBySKU(ctx context.Context, sku string) (Variant, cache.Source, error) {
	return cache.Fetch(ctx, s.cache, s.variants.Alias("sku", sku), s.cache.TTL().Long, func(ctx context.Context) (Variant, error) {
		return s.store.GetVariantBySKU(ctx, sku)
	})
}

func (s *Service) ListProducts(ctx context.Context, q ListQuery) (ProductPage, cache.Source, error) {
	q = q.normalize()
	if err := validatePriceFilter(q); err != nil {
		return ProductPage{}, cache.SourceStore, err
	}
	return cache.Fetch(ctx, s.cache, s.products.List(q.Values()), s.cache.TTL().Short, func(ctx context.Context) (ProductPage, error) {
		return s.store.ListProducts(ctx, q)
	})
}

func (s *Service) GetCategory(ctx context.Context, id string) (Category, cache.Source, error) {
	return cache.Fetch(ctx, s.cache, s.categories.ID(id), s.cache.TTL().Long, func(ctx context.Context) (Category, error) {
		return s.store.GetCategory(ctx, id)
	})
}

func (s *Service) GetCategoryBySlug(ctx context.Context, slug string) (Category, cache.Source, error) {
	return cache.Fetch(ctx, s.cache, s.categories.Alias("slug", slug), s.cache.TTL().Long, func(ctx context.Context) (Category, error) {
		return s.store.GetCategoryBySlug(ctx, slug)
	})
}

func (s *Service) ListCategories(ctx context.Context, includeInactive bool) ([]Category, cache.Source, error) {
	key := s.categories.List(url.Values{"includeInactive": {strconv.FormatBool(includeInactive)}})
	return cache.Fetch(ctx, s.cache, key, s.cache.TTL().Medium, func(ctx context.Context) ([]Category, error) {
		return s.store.ListCategories(ctx, includeInactive)
	})
}

// ---- product writes ----

type ProductInput struct {
	CategoryID  string          `json:"categoryId"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	SKU         string          `json:"sku"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// ProductPatch changes only the fields that are set.
type ProductPatch struct {
	CategoryID  *string          `json:"categoryId"`
	Name        *string          `json:"name"`
	Slug        *string          `json:"slug"`
	SKU         *string          `json:"sku"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	IsActive    *bool            `json:"isActive"`
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	now := s.now()
	p := Product{
		ID:          uuid.NewString(),
		CategoryID:  in.CategoryID,
		Name:        strings.TrimSpace(in.Name),
		Slug:        in.Slug,
		SKU:         strings.TrimSpace(in.SKU),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	if err := s.checkCategory(ctx, p.CategoryID); err != nil {
		return Product{}, err
	}
	p, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.invalidateProduct(ctx, p)
	return p, nil
}

// UpdateProduct applies patch. A price change is announced with PRODUCT_PRICE_CHANGED; if
// that fails the saved product is returned with an error wrapping events.ErrPublish.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	if patch.CategoryID != nil {
		if err := s.checkCategory(ctx, *patch.CategoryID); err != nil {
			return Product{}, err
		}
	}
	before, after, err := s.store.UpdateProduct(ctx, id, func(p *Product) error {
		patch.apply(p)
		p.UpdatedAt = s.now()
		return validateProduct(*p)
	})
	if err != nil {
		return Product{}, err
	}
	s.invalidateProduct(ctx, before, after)
	s.log.Info("product updated", zap.String("product_id", id))

	if !before.Price.Equal(after.Price) {
		err := s.pub.Publish(ctx, events.ProductPriceChanged, events.ProductPriceChangedData{
			ProductID:   after.ID,
			ProductSKU:  after.SKU,
			ProductName: after.Name,
			OldPrice:    before.Price,
			NewPrice:    after.Price,
		})
		return after, err
	}
	return after, nil
}

// DeleteProduct hides the product; the row and its history stay.
func (s *Service) DeleteProduct(ctx context.Context, id string) (Product, error) {
	inactive := false
	return s.UpdateProduct(ctx, id, ProductPatch{IsActive: &inactive})
}

func (s *Service) RestoreProduct(ctx context.Context, id string) (Product, error) {
	active := true
	return s.UpdateProduct(ctx, id, ProductPatch{IsActive: &active})
}

// BulkSetProductsActive toggles many products at once and reports the ones that changed.
func (s *Service) BulkSetProductsActive(ctx context.Context, ids []string, active bool) ([]Product, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no product ids", ErrInvalidProduct)
	}
	changed, err := s.store.SetProductsActive(ctx, ids, active)
	if err != nil {
		return nil, err
	}
	s.invalidateProduct(ctx, changed...)
	return changed, nil
}

func (p ProductPatch) apply(dst *Product) {
	if p.CategoryID != nil {
		dst.CategoryID = *p.CategoryID
	}
	if p.Name != nil {
		dst.Name = strings.TrimSpace(*p.Name)
	}
	if p.Slug != nil {
		dst.Slug = *p.Slug
	}
	if p.SKU != nil {
		dst.SKU = strings.TrimSpace(*p.SKU)
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
	if p.Stock != nil {
		dst.Stock = *p.Stock
	}
	if p.IsActive != nil {
		dst.IsActive = *p.IsActive
	}
}

func (s *Service) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return fmt.Errorf("%w: unknown category %s", ErrInvalidProduct, id)
		}
		return err
	}
	return nil
}

// invalidateProduct drops every key that can serve the given product states: id, every
// slug it had, its variants' SKU aliases, and all cached list shapes.
func (s *Service) invalidateProduct(ctx context.Context, states ...Product) {
	var keys []string
	seen := map[string]bool{}
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, p := range states {
		add(s.products.ID(p.ID))
		add(s.products.Alias("slug", p.Slug))
		for _, v := range p.Variants {
			add(s.variants.Alias("sku", v.SKU))
		}
	}
	s.cache.Invalidate(ctx, keys, s.products.ListPrefix())
}

// ---- variants ----

type VariantInput struct {
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type VariantPatch struct {
	SKU      *string          `json:"sku"`
	Name     *string          `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Stock    *int             `json:"stock"`
	IsActive *bool            `json:"isActive"`
}

func (s *Service) CreateVariant(ctx context.Context, productID string, in VariantInput) (Variant, error) {
	now := s.now()
	v := Variant{
		ID:        uuid.NewString(),
		ProductID: productID,
		SKU:       strings.TrimSpace(in.SKU),
		Name:      strings.TrimSpace(in.Name),
		Price:     in.Price,
		Stock:     in.Stock,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateVariant(v); err != nil {
		return Variant{}, err
	}
	v, err := s.store.CreateVariant(ctx, v)
	if err != nil {
		return Variant{}, err
	}
	s.invalidateVariant(ctx, v)
	return v, nil
}

func (s *Service) UpdateVariant(ctx context.Context, id string, patch VariantPatch) (Variant, error) {
	before, after, err := s.store.UpdateVariant(ctx, id, func(v *Variant) error {
		if patch.SKU != nil {
			v.SKU = strings.TrimSpace(*patch.SKU)
		}
		if patch.Name != nil {
			v.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Price != nil {
			v.Price = *patch.Price
		}
		if patch.Stock != nil {
			v.Stock = *patch.Stock
		}
		if patch.IsActive != nil {
			v.IsActive = *patch.IsActive
		}
		v.UpdatedAt = s.now()
		return validateVariant(*v)
	})
	if err != nil {
		return Variant{}, err
	}
	s.invalidateVariant(ctx, before, after)
	return after, nil
}

// invalidateVariant drops the variant's SKU aliases and the parent product's keys.
func (s *Service) invalidateVariant(ctx context.Context, states ...Variant) {
	if len(states) == 0 {
		return
	}
	keys := []string{s.products.ID(states[0].ProductID)}
	for _, v := range states {
		keys = append(keys, s.variants.Alias("sku", v.SKU))
	}
	if p, err := s.store.GetProduct(ctx, states[0].ProductID); err == nil {
		keys = append(keys, s.products.Alias("slug", p.Slug))
	} else {
		s.log.Warn("variant parent lookup failed", zap.String("product_id", states[0].ProductID), zap.Error(err))
	}
	s.cache.Invalidate(ctx, keys, s.products.ListPrefix())
}

// ---- categories ----

type CategoryInput struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type CategoryPatch struct {
	Name     *string `json:"name"`
	Slug     *string `json:"slug"`
	IsActive *bool   `json:"isActive"`
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	now := s.now()
	c := Category{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Slug:      in.Slug,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateCategory(c); err != nil {
		return Category{}, err
	}
	c, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return Category{}, err
	}
	s.invalidateCategory(ctx, c)
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (Category, error) {
	before, after, err := s.store.UpdateCategory(ctx, id, func(c *Category) error {
		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Slug != nil {
			c.Slug = *patch.Slug
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
		}
		c.UpdatedAt = s.now()
		return validateCategory(*c)
	})
	if err != nil {
		return Category{}, err
	}
	s.invalidateCategory(ctx, before, after)
	return after, nil
}

// DeleteCategory hides the category. Its products keep their category id.
func (s *Service) DeleteCategory(ctx context.Context, id string) (Category, error) {
	inactive := false
	return s.UpdateCategory(ctx, id, CategoryPatch{IsActive: &inactive})
}

// invalidateCategory also sweeps product lists, which filter by category slug.
func (s *Service) invalidateCategory(ctx context.Context, states ...Category) {
	var keys []string
	for _, c := range states {
		keys = append(keys, s.categories.ID(c.ID), s.categories.Alias("slug", c.Slug))
	}
	s.cache.Invalidate(ctx, keys, s.categories.ListPrefix(), s.products.ListPrefix())
}
