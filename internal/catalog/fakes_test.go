package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store. reads counts store reads so tests can tell cache hits apart.
type memStore struct {
	mu          sync.Mutex
	products    map[string]Product
	variants    map[string]Variant
	categories  map[string]Category
	adjustments map[string]bool
	reads       int
}

func newMemStore() *memStore {
	return &memStore{
		products:    map[string]Product{},
		variants:    map[string]Variant{},
		categories:  map[string]Category{},
		adjustments: map[string]bool{},
	}
}

func (m *memStore) withVariants(p Product) Product {
	p.Variants = nil
	for _, v := range m.variants {
		if v.ProductID == p.ID {
			p.Variants = append(p.Variants, v)
		}
	}
	sort.Slice(p.Variants, func(i, j int) bool { return p.Variants[i].SKU < p.Variants[j].SKU })
	return p
}

func (m *memStore) GetProduct(_ context.Context, id string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return m.withVariants(p), nil
}

func (m *memStore) GetProductBySlug(_ context.Context, slug string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	for _, p := range m.products {
		if p.Slug == slug {
			return m.withVariants(p), nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (m *memStore) ListProducts(_ context.Context, q ListQuery) (ProductPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	q = q.normalize()
	var all []Product
	for _, p := range m.products {
		if !p.IsActive && !q.IncludeInactive {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Search)) {
			continue
		}
		if q.Category != "" {
			c, ok := m.categories[p.CategoryID]
			if !ok || c.Slug != q.Category {
				continue
			}
		}
		if q.MinPrice != "" && p.Price.LessThan(decimal.RequireFromString(q.MinPrice)) {
			continue
		}
		if q.MaxPrice != "" && p.Price.GreaterThan(decimal.RequireFromString(q.MaxPrice)) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	page := ProductPage{Items: []Product{}, Total: len(all), Page: q.Page, PageSize: q.PageSize}
	start := (q.Page - 1) * q.PageSize
	for i := start; i < len(all) && i < start+q.PageSize; i++ {
		page.Items = append(page.Items, all[i])
	}
	return page, nil
}

func (m *memStore) CreateProduct(_ context.Context, p Product) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.products {
		if other.Slug == p.Slug {
			return Product{}, ErrSlugTaken
		}
		if other.SKU == p.SKU {
			return Product{}, ErrSKUTaken
		}
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *memStore) UpdateProduct(_ context.Context, id string, fn func(p *Product) error) (Product, Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.products[id]
	if !ok {
		return Product{}, Product{}, ErrProductNotFound
	}
	before := m.withVariants(cur)
	p := before
	if err := fn(&p); err != nil {
		return Product{}, Product{}, err
	}
	for _, other := range m.products {
		if other.ID != id && other.Slug == p.Slug {
			return Product{}, Product{}, ErrSlugTaken
		}
	}
	p.Variants = nil
	m.products[id] = p
	return before, m.withVariants(p), nil
}

func (m *memStore) SetProductsActive(_ context.Context, ids []string, active bool) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Product
	for _, id := range ids {
		p, ok := m.products[id]
		if !ok || p.IsActive == active {
			continue
		}
		p.IsActive = active
		m.products[id] = p
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) GetVariantBySKU(_ context.Context, sku string) (Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	for _, v := range m.variants {
		if v.SKU == sku {
			return v, nil
		}
	}
	return Variant{}, ErrVariantNotFound
}

func (m *memStore) CreateVariant(_ context.Context, v Variant) (Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[v.ProductID]; !ok {
		return Variant{}, ErrProductNotFound
	}
	for _, other := range m.variants {
		if other.SKU == v.SKU {
			return Variant{}, ErrSKUTaken
		}
	}
	m.variants[v.ID] = v
	return v, nil
}

func (m *memStore) UpdateVariant(_ context.Context, id string, fn func(v *Variant) error) (Variant, Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.variants[id]
	if !ok {
		return Variant{}, Variant{}, ErrVariantNotFound
	}
	v := before
	if err := fn(&v); err != nil {
		return Variant{}, Variant{}, err
	}
	m.variants[id] = v
	return before, v, nil
}

func (m *memStore) GetCategory(_ context.Context, id string) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	c, ok := m.categories[id]
	if !ok {
		return Category{}, ErrCategoryNotFound
	}
	return c, nil
}

func (m *memStore) GetCategoryBySlug(_ context.Context, slug string) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	for _, c := range m.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return Category{}, ErrCategoryNotFound
}

func (m *memStore) ListCategories(_ context.Context, includeInactive bool) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	out := []Category{}
	for _, c := range m.categories {
		if c.IsActive || includeInactive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateCategory(_ context.Context, c Category) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.categories {
		if other.Slug == c.Slug {
			return Category{}, ErrSlugTaken
		}
	}
	m.categories[c.ID] = c
	return c, nil
}

func (m *memStore) UpdateCategory(_ context.Context, id string, fn func(c *Category) error) (Category, Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.categories[id]
	if !ok {
		return Category{}, Category{}, ErrCategoryNotFound
	}
	c := before
	if err := fn(&c); err != nil {
		return Category{}, Category{}, err
	}
	m.categories[id] = c
	return before, c, nil
}

func (m *memStore) AdjustStock(_ context.Context, orderID, kind string, changes []StockChange) ([]StockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StockResult
	for _, c := range changes {
		res := StockResult{StockChange: c}
		key := orderID + "|" + c.target() + "|" + kind
		switch {
		case c.VariantID != "":
			v, ok := m.variants[c.VariantID]
			if !ok {
				res.Missing = true
				break
			}
			res.VariantSKU = v.SKU
			res.ProductSlug = m.products[v.ProductID].Slug
			if m.adjustments[key] {
				break
			}
			m.adjustments[key] = true
			v.Stock += c.Quantity
			m.variants[v.ID] = v
			res.Stock, res.Applied = v.Stock, true
		default:
			p, ok := m.products[c.ProductID]
			if !ok {
				res.Missing = true
				break
			}
			res.ProductSlug = p.Slug
			if m.adjustments[key] {
				break
			}
			m.adjustments[key] = true
			p.Stock += c.Quantity
			m.products[p.ID] = p
			res.Stock, res.Applied = p.Stock, true
		}
		out = append(out, res)
	}
	return out, nil
}
