package catalog

import (
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Product struct {
	ID          string          `json:"id"`
	CategoryID  string          `json:"categoryId,omitempty"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	SKU         string          `json:"sku"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Variants    []Variant       `json:"variants,omitempty"`
}

type Variant struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"

	defaultPageSize = 20
	maxPageSize     = 100
)

// ListQuery is one product list shape. Every field takes part in the cache key.
type ListQuery struct {
	Page            int
	PageSize        int
	Category        string // category slug
	Search          string
	MinPrice        string
	MaxPrice        string
	Sort            string
	IncludeInactive bool
}

func (q ListQuery) normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	switch q.Sort {
	case SortPriceAsc, SortPriceDesc, SortName:
	default:
		q.Sort = SortNewest
	}
	return q
}

// Values serializes the full parameter set, defaults included.
func (q ListQuery) Values() url.Values {
	return url.Values{
		"page":            {strconv.Itoa(q.Page)},
		"pageSize":        {strconv.Itoa(q.PageSize)},
		"category":        {q.Category},
		"search":          {q.Search},
		"minPrice":        {q.MinPrice},
		"maxPrice":        {q.MaxPrice},
		"sort":            {q.Sort},
		"includeInactive": {strconv.FormatBool(q.IncludeInactive)},
	}
}

type ProductPage struct {
	Items    []Product `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}

// StockChange is one inventory movement requested by an order event.
type StockChange struct {
	ProductID string
	VariantID string
	Quantity  int // negative takes stock out
}

func (c StockChange) target() string {
	if c.VariantID != "" {
		return c.VariantID
	}
	return c.ProductID
}

// StockResult reports what happened to one StockChange.
type StockResult struct {
	StockChange
	Applied     bool // false for duplicates and missing targets
	Missing     bool
	ProductSlug string
	VariantSKU  string
	Stock       int
}
