package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-saga-commerce/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the catalog's system of record.
type Store interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	ListProducts(ctx context.Context, q ListQuery) (ProductPage, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	// UpdateProduct locks the product, applies fn and saves it. It returns the row as it
	// was before fn and as saved.
	UpdateProduct(ctx context.Context, id string, fn func(p *Product) error) (before, after Product, err error)
	SetProductsActive(ctx context.Context, ids []string, active bool) ([]Product, error)

	GetVariantBySKU(ctx context.Context, sku string) (Variant, error)
	CreateVariant(ctx context.Context, v Variant) (Variant, error)
	UpdateVariant(ctx context.Context, id string, fn func(v *Variant) error) (before, after Variant, err error)

	GetCategory(ctx context.Context, id string) (Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (Category, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, id string, fn func(c *Category) error) (before, after Category, err error)

	// AdjustStock applies each change at most once per (orderID, target, kind).
	AdjustStock(ctx context.Context, orderID, kind string, changes []StockChange) ([]StockResult, error)
}

type PgStore struct{ DB *pgxpool.Pool }

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const productColumns = `p.id, COALESCE(p.category_id::text, ''), p.name, p.slug, p.sku, p.description,
	p.price, p.stock, p.is_active, p.created_at, p.updated_at`

const variantColumns = `id, product_id, sku, name, price, stock, is_active, created_at, updated_at`

const categoryColumns = `id, name, slug, is_active, created_at, updated_at`

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ---- products ----

func (s *PgStore) GetProduct(ctx context.Context, id string) (Product, error) {
	if !validID(id) {
		return Product{}, ErrProductNotFound
	}
	return s.getProduct(ctx, `p.id=$1`, id)
}

func (s *PgStore) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	return s.getProduct(ctx, `p.slug=$1`, slug)
}

func (s *PgStore) getProduct(ctx context.Context, where string, arg any) (Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	p.Variants, err = listVariants(ctx, s.DB, p.ID)
	return p, err
}

func (s *PgStore) ListProducts(ctx context.Context, q ListQuery) (ProductPage, error) {
	q = q.normalize()
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !q.IncludeInactive {
		where = append(where, `p.is_active`)
	}
	if q.Category != "" {
		where = append(where, `c.slug = `+arg(q.Category))
	}
	if q.Search != "" {
		like := arg("%" + q.Search + "%")
		where = append(where, `(p.name ILIKE `+like+` OR p.description ILIKE `+like+`)`)
	}
	if lo, err := decimal.NewFromString(q.MinPrice); err == nil {
		where = append(where, `p.price >= `+arg(lo))
	}
	if hi, err := decimal.NewFromString(q.MaxPrice); err == nil {
		where = append(where, `p.price <= `+arg(hi))
	}

	from := ` FROM products p LEFT JOIN categories c ON c.id = p.category_id`
	if len(where) > 0 {
		from += ` WHERE ` + strings.Join(where, ` AND `)
	}
	filterArgs := len(args)

	sql := `SELECT ` + productColumns + `, COUNT(*) OVER()` + from
	switch q.Sort {
	case SortPriceAsc:
		sql += ` ORDER BY p.price ASC, p.id`
	case SortPriceDesc:
		sql += ` ORDER BY p.price DESC, p.id`
	case SortName:
		sql += ` ORDER BY p.name ASC, p.id`
	default:
		sql += ` ORDER BY p.created_at DESC, p.id`
	}
	sql += ` LIMIT ` + arg(q.PageSize) + ` OFFSET ` + arg((q.Page-1)*q.PageSize)

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return ProductPage{}, err
	}
	defer rows.Close()

	page := ProductPage{Items: []Product{}, Page: q.Page, PageSize: q.PageSize}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.SKU, &p.Description,
			&p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &page.Total); err != nil {
			return ProductPage{}, err
		}
		page.Items = append(page.Items, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ProductPage{}, err
	}
	// the window count only rides on returned rows
	if len(page.Items) == 0 && q.Page > 1 {
		if err := s.DB.QueryRow(ctx, `SELECT COUNT(*)`+from, args[:filterArgs]...).Scan(&page.Total); err != nil {
			return ProductPage{}, err
		}
	}
	return page, nil
}

func (s *PgStore) CreateProduct(ctx context.Context, p Product) (Product, error) {
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := ensureFree(ctx, tx, `products`, `slug`, p.Slug, p.ID, ErrSlugTaken); err != nil {
			return err
		}
		if err := ensureFree(ctx, tx, `products`, `sku`, p.SKU, p.ID, ErrSKUTaken); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO products(id, category_id, name, slug, sku, description, price, stock, is_active, created_at, updated_at)
			VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.CategoryID, p.Name, p.Slug, p.SKU, p.Description, p.Price, p.Stock, p.IsActive, p.CreatedAt, p.UpdatedAt,
		)
		return mapWriteErr("insert product", err)
	})
	return p, err
}

func (s *PgStore) UpdateProduct(ctx context.Context, id string, fn func(p *Product) error) (Product, Product, error) {
	if !validID(id) {
		return Product{}, Product{}, ErrProductNotFound
	}
	var before, after Product
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id=$1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}
		before = p
		if err := fn(&p); err != nil {
			return err
		}
		if p.Slug != before.Slug {
			if err := ensureFree(ctx, tx, `products`, `slug`, p.Slug, id, ErrSlugTaken); err != nil {
				return err
			}
		}
		if p.SKU != before.SKU {
			if err := ensureFree(ctx, tx, `products`, `sku`, p.SKU, id, ErrSKUTaken); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE products SET category_id=NULLIF($2, '')::uuid, name=$3, slug=$4, sku=$5, description=$6,
				price=$7, stock=$8, is_active=$9, updated_at=$10
			WHERE id=$1`,
			id, p.CategoryID, p.Name, p.Slug, p.SKU, p.Description, p.Price, p.Stock, p.IsActive, p.UpdatedAt,
		)
		if err := mapWriteErr("update product", err); err != nil {
			return err
		}
		p.Variants, err = listVariants(ctx, tx, id)
		before.Variants = p.Variants
		after = p
		return err
	})
	return before, after, err
}

func (s *PgStore) SetProductsActive(ctx context.Context, ids []string, active bool) ([]Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	rows, err := s.DB.Query(ctx, `
		UPDATE products p SET is_active=$2, updated_at=now()
		WHERE p.id = ANY($1::uuid[]) AND p.is_active <> $2
		RETURNING `+productColumns, valid, active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.SKU, &p.Description,
		&p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ---- variants ----

func (s *PgStore) GetVariantBySKU(ctx context.Context, sku string) (Variant, error) {
	v, err := scanVariant(s.DB.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE sku=$1`, sku))
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, ErrVariantNotFound
	}
	return v, err
}

func (s *PgStore) CreateVariant(ctx context.Context, v Variant) (Variant, error) {
	if !validID(v.ProductID) {
		return Variant{}, ErrProductNotFound
	}
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, v.ProductID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrProductNotFound
		}
		if err := ensureFree(ctx, tx, `product_variants`, `sku`, v.SKU, v.ID, ErrSKUTaken); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO product_variants(id, product_id, sku, name, price, stock, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			v.ID, v.ProductID, v.SKU, v.Name, v.Price, v.Stock, v.IsActive, v.CreatedAt, v.UpdatedAt,
		)
		return mapWriteErr("insert variant", err)
	})
	return v, err
}

func (s *PgStore) UpdateVariant(ctx context.Context, id string, fn func(v *Variant) error) (Variant, Variant, error) {
	if !validID(id) {
		return Variant{}, Variant{}, ErrVariantNotFound
	}
	var before, after Variant
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		v, err := scanVariant(tx.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id=$1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVariantNotFound
		}
		if err != nil {
			return err
		}
		before = v
		if err := fn(&v); err != nil {
			return err
		}
		if v.SKU != before.SKU {
			if err := ensureFree(ctx, tx, `product_variants`, `sku`, v.SKU, id, ErrSKUTaken); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE product_variants SET sku=$2, name=$3, price=$4, stock=$5, is_active=$6, updated_at=$7
			WHERE id=$1`,
			id, v.SKU, v.Name, v.Price, v.Stock, v.IsActive, v.UpdatedAt,
		)
		if err := mapWriteErr("update variant", err); err != nil {
			return err
		}
		after = v
		return nil
	})
	return before, after, err
}

func listVariants(ctx context.Context, q querier, productID string) ([]Variant, error) {
	rows, err := q.Query(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE product_id=$1 ORDER BY sku`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.Stock, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// ---- categories ----

func (s *PgStore) GetCategory(ctx context.Context, id string) (Category, error) {
	if !validID(id) {
		return Category{}, ErrCategoryNotFound
	}
	return s.getCategory(ctx, `id=$1`, id)
}

func (s *PgStore) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	return s.getCategory(ctx, `slug=$1`, slug)
}

func (s *PgStore) getCategory(ctx context.Context, where string, arg any) (Category, error) {
	c, err := scanCategory(s.DB.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrCategoryNotFound
	}
	return c, err
}

func (s *PgStore) ListCategories(ctx context.Context, includeInactive bool) ([]Category, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE is_active OR $1 ORDER BY name`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PgStore) CreateCategory(ctx context.Context, c Category) (Category, error) {
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := ensureFree(ctx, tx, `categories`, `slug`, c.Slug, c.ID, ErrSlugTaken); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO categories(id, name, slug, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.Name, c.Slug, c.IsActive, c.CreatedAt, c.UpdatedAt,
		)
		return mapWriteErr("insert category", err)
	})
	return c, err
}

func (s *PgStore) UpdateCategory(ctx context.Context, id string, fn func(c *Category) error) (Category, Category, error) {
	if !validID(id) {
		return Category{}, Category{}, ErrCategoryNotFound
	}
	var before, after Category
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		c, err := scanCategory(tx.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=$1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		before = c
		if err := fn(&c); err != nil {
			return err
		}
		if c.Slug != before.Slug {
			if err := ensureFree(ctx, tx, `categories`, `slug`, c.Slug, id, ErrSlugTaken); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `UPDATE categories SET name=$2, slug=$3, is_active=$4, updated_at=$5 WHERE id=$1`,
			id, c.Name, c.Slug, c.IsActive, c.UpdatedAt)
		if err := mapWriteErr("update category", err); err != nil {
			return err
		}
		after = c
		return nil
	})
	return before, after, err
}

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ---- inventory ----

func (s *PgStore) AdjustStock(ctx context.Context, orderID, kind string, changes []StockChange) ([]StockResult, error) {
	results := make([]StockResult, 0, len(changes))
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		results = results[:0]
		for _, c := range changes {
			res, err := adjustOne(ctx, tx, orderID, kind, c)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	return results, err
}

func adjustOne(ctx context.Context, tx pgx.Tx, orderID, kind string, c StockChange) (StockResult, error) {
	res := StockResult{StockChange: c}

	if !validID(c.target()) {
		res.Missing = true
		return res, nil
	}

	// lock the target first so a missing product leaves no adjustment row behind
	var err error
	if c.VariantID != "" {
		err = tx.QueryRow(ctx, `
			SELECT v.sku, p.slug FROM product_variants v JOIN products p ON p.id = v.product_id
			WHERE v.id=$1 FOR UPDATE OF v`, c.VariantID).Scan(&res.VariantSKU, &res.ProductSlug)
	} else {
		err = tx.QueryRow(ctx, `SELECT slug FROM products WHERE id=$1 FOR UPDATE`, c.ProductID).Scan(&res.ProductSlug)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		res.Missing = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("lock stock target %s: %w", c.target(), err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO stock_adjustments(order_id, target_id, kind, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`, orderID, c.target(), kind, c.Quantity)
	if err != nil {
		return res, fmt.Errorf("record stock adjustment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return res, nil
	}

	if c.VariantID != "" {
		err = tx.QueryRow(ctx, `UPDATE product_variants SET stock = stock + $2, updated_at = now() WHERE id=$1 RETURNING stock`,
			c.VariantID, c.Quantity).Scan(&res.Stock)
	} else {
		err = tx.QueryRow(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1 RETURNING stock`,
			c.ProductID, c.Quantity).Scan(&res.Stock)
	}
	if err != nil {
		return res, fmt.Errorf("update stock %s: %w", c.target(), err)
	}
	res.Applied = true
	return res, nil
}

// ensureFree checks inside the write transaction that value is not used by another row.
// The unique constraint backs it up for concurrent writers.
func ensureFree(ctx context.Context, tx pgx.Tx, table, column, value, selfID string, taken error) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE `+column+`=$1 AND id::text <> $2)`, value, selfID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return taken
	}
	return nil
}

func mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if postgres.IsUniqueViolation(err) {
		switch c := postgres.ConstraintName(err); {
		case strings.HasSuffix(c, "_slug_key"):
			return ErrSlugTaken
		case strings.HasSuffix(c, "_sku_key"):
			return ErrSKUTaken
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
