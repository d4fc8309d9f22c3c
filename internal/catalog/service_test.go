package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
	"github.com/ariefcatur/go-saga-commerce/internal/cache"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/ariefcatur/go-saga-commerce/internal/events/eventstest"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc   *Service
	store *memStore
	mr    *miniredis.Miniredis
	rec   *eventstest.Recorder
}

func newFixture(t *testing.T) fixture {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, pub, rec := eventstest.NewBus(t, "catalog", events.ProductPriceChanged)
	store := newMemStore()
	c := cache.New(cache.NewRedisStore(rdb), cache.DefaultTTL, zap.NewNop())
	return fixture{svc: NewService(store, c, pub, zap.NewNop()), store: store, mr: mr, rec: rec}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f fixture) product(t *testing.T, name, sku, price string, stock int) Product {
	t.Helper()
	p, err := f.svc.CreateProduct(context.Background(), ProductInput{Name: name, SKU: sku, Price: dec(price), Stock: stock})
	require.NoError(t, err)
	return p
}

func TestGetProduct_ReadThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Blue Shirt", "SH-1", "20.00", 5)

	got, src, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.Equal(t, "blue-shirt", got.Slug)

	got, src, err = f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceCache, src)
	assert.Equal(t, p.ID, got.ID)

	// the id read also fills the slug alias
	_, src, err = f.svc.GetProductBySlug(ctx, "blue-shirt")
	require.NoError(t, err)
	assert.Equal(t, cache.SourceCache, src)
	assert.Equal(t, 1, f.store.reads)
}

func TestGetProduct_NotFoundIsNotCached(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.mr.Keys())
}

func TestUpdateProduct_InvalidatesEveryKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Blue Shirt", "SH-1", "20.00", 5)

	idKey := f.svc.products.ID(p.ID)
	slugKey := f.svc.products.Alias("slug", p.Slug)
	firstPage := f.svc.products.List(ListQuery{Page: 1}.normalize().Values())
	search := f.svc.products.List(ListQuery{Search: "shirt"}.normalize().Values())

	_, _, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	_, _, err = f.svc.ListProducts(ctx, ListQuery{Page: 1})
	require.NoError(t, err)
	_, _, err = f.svc.ListProducts(ctx, ListQuery{Search: "shirt"})
	require.NoError(t, err)
	for _, k := range []string{idKey, slugKey, firstPage, search} {
		require.True(t, f.mr.Exists(k), k)
	}

	price := dec("25.00")
	_, err = f.svc.UpdateProduct(ctx, p.ID, ProductPatch{Price: &price})
	require.NoError(t, err)
	for _, k := range []string{idKey, slugKey, firstPage, search} {
		assert.False(t, f.mr.Exists(k), k)
	}

	got, src, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.True(t, price.Equal(got.Price))
	assert.True(t, f.mr.Exists(idKey))

	page, src, err := f.svc.ListProducts(ctx, ListQuery{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	require.Len(t, page.Items, 1)
	assert.True(t, price.Equal(page.Items[0].Price))
	assert.True(t, f.mr.Exists(firstPage))

	bySlug, _, err := f.svc.GetProductBySlug(ctx, p.Slug)
	require.NoError(t, err)
	assert.True(t, price.Equal(bySlug.Price))
}

func TestUpdateProduct_PriceChangePublishes(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Mug", "MUG-1", "10.00", 1)

	price := dec("12.50")
	_, err := f.svc.UpdateProduct(context.Background(), p.ID, ProductPatch{Price: &price})
	require.NoError(t, err)

	changed := f.rec.OfType(events.ProductPriceChanged)
	require.Len(t, changed, 1)
	data, err := events.Decode[events.ProductPriceChangedData](changed[0])
	require.NoError(t, err)
	assert.Equal(t, p.ID, data.ProductID)
	assert.Equal(t, "MUG-1", data.ProductSKU)
	assert.True(t, dec("10").Equal(data.OldPrice))
	assert.True(t, price.Equal(data.NewPrice))

	name := "Big Mug"
	_, err = f.svc.UpdateProduct(context.Background(), p.ID, ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Len(t, f.rec.OfType(events.ProductPriceChanged), 1)
}

func TestUpdateProduct_RenameDropsOldSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Mug", "MUG-1", "10.00", 1)
	_, _, err := f.svc.GetProductBySlug(ctx, "mug")
	require.NoError(t, err)

	slug := "coffee-mug"
	_, err = f.svc.UpdateProduct(ctx, p.ID, ProductPatch{Slug: &slug})
	require.NoError(t, err)

	assert.False(t, f.mr.Exists(f.svc.products.Alias("slug", "mug")))
	_, _, err = f.svc.GetProductBySlug(ctx, "mug")
	assert.ErrorIs(t, err, ErrProductNotFound)
	got, _, err := f.svc.GetProductBySlug(ctx, "coffee-mug")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestCreateProduct_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   ProductInput
	}{
		{"no name", ProductInput{SKU: "X", Price: dec("1")}},
		{"no sku", ProductInput{Name: "X", Price: dec("1")}},
		{"negative price", ProductInput{Name: "X", SKU: "X", Price: dec("-1")}},
		{"bad slug", ProductInput{Name: "X", Slug: "Not A Slug", SKU: "X", Price: dec("1")}},
		{"unknown category", ProductInput{Name: "X", SKU: "X", Price: dec("1"), CategoryID: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateProduct(context.Background(), tt.in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestCreateProduct_DuplicateSlug(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Mug", "MUG-1", "10.00", 1)
	_, err := f.svc.CreateProduct(context.Background(), ProductInput{Name: "Mug", SKU: "MUG-2", Price: dec("1")})
	assert.ErrorIs(t, err, ErrSlugTaken)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteAndRestoreProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Mug", "MUG-1", "10.00", 1)

	deleted, err := f.svc.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, deleted.IsActive)
	page, _, err := f.svc.ListProducts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.svc.RestoreProduct(ctx, p.ID)
	require.NoError(t, err)
	page, src, err := f.svc.ListProducts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.Len(t, page.Items, 1)
}

func TestBulkSetProductsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Mug", "MUG-1", "10.00", 1)
	b := f.product(t, "Tee", "TEE-1", "15.00", 1)
	_, _, err := f.svc.GetProduct(ctx, a.ID)
	require.NoError(t, err)

	changed, err := f.svc.BulkSetProductsActive(ctx, []string{a.ID, b.ID, "missing"}, false)
	require.NoError(t, err)
	assert.Len(t, changed, 2)
	assert.False(t, f.mr.Exists(f.svc.products.ID(a.ID)))

	_, err = f.svc.BulkSetProductsActive(ctx, nil, false)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Tee", "TEE-1", "15.00", 0)

	v, err := f.svc.CreateVariant(ctx, p.ID, VariantInput{SKU: "TEE-1-M", Name: "Medium", Price: dec("15.00"), Stock: 3})
	require.NoError(t, err)

	got, src, err := f.svc.GetVariantBySKU(ctx, "TEE-1-M")
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.Equal(t, v.ID, got.ID)
	_, _, err = f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)

	stock := 7
	_, err = f.svc.UpdateVariant(ctx, v.ID, VariantPatch{Stock: &stock})
	require.NoError(t, err)
	assert.False(t, f.mr.Exists(f.svc.variants.Alias("sku", "TEE-1-M")))
	assert.False(t, f.mr.Exists(f.svc.products.ID(p.ID)))

	got, _, err = f.svc.GetVariantBySKU(ctx, "TEE-1-M")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock)

	_, err = f.svc.CreateVariant(ctx, "missing", VariantInput{SKU: "X", Name: "X"})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateCategory(ctx, CategoryInput{Name: "Shirts & Tops"})
	require.NoError(t, err)
	assert.Equal(t, "shirts-tops", c.Slug)

	p, err := f.svc.CreateProduct(ctx, ProductInput{Name: "Tee", SKU: "TEE-1", Price: dec("15"), CategoryID: c.ID})
	require.NoError(t, err)

	list, src, err := f.svc.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.Len(t, list, 1)
	page, _, err := f.svc.ListProducts(ctx, ListQuery{Category: "shirts-tops"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, p.ID, page.Items[0].ID)

	_, src, err = f.svc.GetCategoryBySlug(ctx, "shirts-tops")
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	_, src, err = f.svc.GetCategory(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)

	slug := "tops"
	_, err = f.svc.UpdateCategory(ctx, c.ID, CategoryPatch{Slug: &slug})
	require.NoError(t, err)
	page, src, err = f.svc.ListProducts(ctx, ListQuery{Category: "shirts-tops"})
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.Empty(t, page.Items)

	_, err = f.svc.DeleteCategory(ctx, c.ID)
	require.NoError(t, err)
	list, src, err = f.svc.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.Empty(t, list)
}

func TestListProducts_InvalidPriceFilter(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.ListProducts(context.Background(), ListQuery{MinPrice: "cheap"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateProduct_PublishFailureStillSaves(t *testing.T) {
	f := newFixture(t)
	f.svc.pub = events.NewPublisher(eventstest.FailingChannel{Err: errors.New("down")}, "catalog", zap.NewNop())
	p := f.product(t, "Mug", "MUG-1", "10.00", 1)

	price := dec("11")
	got, err := f.svc.UpdateProduct(context.Background(), p.ID, ProductPatch{Price: &price})
	assert.ErrorIs(t, err, events.ErrPublish)
	assert.True(t, price.Equal(got.Price))

	stored, err := f.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, price.Equal(stored.Price))
}

func TestCache_RedisDownServesFromStore(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Mug", "MUG-1", "10.00", 1)
	f.mr.Close()

	got, src, err := f.svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceStore, src)
	assert.Equal(t, p.ID, got.ID)

	price := dec("9")
	_, err = f.svc.UpdateProduct(context.Background(), p.ID, ProductPatch{Price: &price})
	assert.NoError(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "blue-shirt", Slugify("Blue Shirt"))
	assert.Equal(t, "shirts-tops", Slugify("  Shirts & Tops!! "))
	assert.Equal(t, "mug-2", Slugify("Mug #2"))
	assert.Equal(t, "", Slugify("!!!"))
}
