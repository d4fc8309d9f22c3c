package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/postgres/pgtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProduct(name, slug, sku, price string, stock int) Product {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return Product{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug,
		SKU:       sku,
		Price:     dec(price),
		Stock:     stock,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPgStore_ProductsAndStock(t *testing.T) {
	pool := pgtest.Start(t, Migrations, "migrations")
	store := &PgStore{DB: pool}
	ctx := context.Background()

	mug, err := store.CreateProduct(ctx, newProduct("Mug", "mug", "MUG-1", "10.00", 10))
	require.NoError(t, err)
	_, err = store.CreateProduct(ctx, newProduct("Tee", "tee", "TEE-1", "15.00", 4))
	require.NoError(t, err)

	_, err = store.CreateProduct(ctx, newProduct("Mug 2", "mug", "MUG-2", "1", 1))
	assert.ErrorIs(t, err, ErrSlugTaken)
	_, err = store.CreateProduct(ctx, newProduct("Mug 2", "mug-2", "MUG-1", "1", 1))
	assert.ErrorIs(t, err, ErrSKUTaken)

	page, err := store.ListProducts(ctx, ListQuery{Sort: SortPriceDesc, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "TEE-1", page.Items[0].SKU)

	page, err = store.ListProducts(ctx, ListQuery{MaxPrice: "12"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, mug.ID, page.Items[0].ID)

	page, err = store.ListProducts(ctx, ListQuery{Page: 5, PageSize: 1, MaxPrice: "20"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 5, page.Page)

	changes := []StockChange{
		{ProductID: mug.ID, Quantity: -2},
		{ProductID: uuid.NewString(), Quantity: -1},
		{ProductID: "not-a-uuid", Quantity: -1},
	}
	results, err := store.AdjustStock(ctx, "o1", "ORDER_PLACED", changes)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Applied)
	assert.Equal(t, 8, results[0].Stock)
	assert.Equal(t, "mug", results[0].ProductSlug)
	assert.True(t, results[1].Missing)
	assert.True(t, results[2].Missing)

	again, err := store.AdjustStock(ctx, "o1", "ORDER_PLACED", changes[:1])
	require.NoError(t, err)
	assert.False(t, again[0].Applied)

	got, err := store.GetProduct(ctx, mug.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)

	before, after, err := store.UpdateProduct(ctx, mug.ID, func(p *Product) error {
		p.Slug = "coffee-mug"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "mug", before.Slug)
	assert.Equal(t, "coffee-mug", after.Slug)

	changed, err := store.SetProductsActive(ctx, []string{mug.ID, "junk"}, false)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.False(t, changed[0].IsActive)
}

func TestPgStore_VariantsAndCategories(t *testing.T) {
	pool := pgtest.Start(t, Migrations, "migrations")
	store := &PgStore{DB: pool}
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := store.CreateCategory(ctx, Category{ID: uuid.NewString(), Name: "Tops", Slug: "tops", IsActive: true, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	p := newProduct("Tee", "tee", "TEE-1", "15", 0)
	p.CategoryID = c.ID
	_, err = store.CreateProduct(ctx, p)
	require.NoError(t, err)

	v, err := store.CreateVariant(ctx, Variant{ID: uuid.NewString(), ProductID: p.ID, SKU: "TEE-1-M", Name: "M", Price: dec("15"), Stock: 5, IsActive: true, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	res, err := store.AdjustStock(ctx, "o1", "ORDER_PLACED", []StockChange{{ProductID: p.ID, VariantID: v.ID, Quantity: -2}})
	require.NoError(t, err)
	assert.True(t, res[0].Applied)
	assert.Equal(t, "TEE-1-M", res[0].VariantSKU)
	assert.Equal(t, 3, res[0].Stock)

	got, err := store.GetProductBySlug(ctx, "tee")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.CategoryID)
	require.Len(t, got.Variants, 1)
	assert.Equal(t, 3, got.Variants[0].Stock)

	page, err := store.ListProducts(ctx, ListQuery{Category: "tops"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	list, err := store.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
