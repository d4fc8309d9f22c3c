package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-saga-commerce/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists orders, their item snapshots and status history.
type Store interface {
	// Create writes the order, its items and the first history row in one transaction.
	Create(ctx context.Context, o Order, first StatusHistory) error
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	History(ctx context.Context, orderID string) ([]StatusHistory, error)
	// Update locks the order row and hands the order to fn. When fn returns a Change, the
	// order's mutable fields and exactly one history row are written in the same
	// transaction. A nil Change writes nothing.
	Update(ctx context.Context, id string, fn func(o *Order) (*Change, error)) (Order, error)
}

type PgStore struct{ DB *pgxpool.Pool }

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const orderColumns = `id, user_id, email, payment_type, status, subtotal, shipping_cost, tax_amount,
	total_amount, COALESCE(payment_transaction_id, ''), awaiting_delivery, COALESCE(tracking_number, ''),
	shipping_address, created_at, updated_at`

func (s *PgStore) Create(ctx context.Context, o Order, first StatusHistory) error {
	return postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders(id, user_id, email, payment_type, status, subtotal, shipping_cost, tax_amount,
				total_amount, payment_transaction_id, awaiting_delivery, tracking_number, shipping_address,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, NULLIF($12, ''), $13, $14, $15)`,
			o.ID, o.UserID, o.Email, string(o.PaymentType), string(o.Status), o.Subtotal, o.ShippingCost,
			o.TaxAmount, o.TotalAmount, o.PaymentTransactionID, o.AwaitingDelivery, o.TrackingNumber,
			o.ShippingAddress, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, it := range o.Items {
			_, err = tx.Exec(ctx, `
				INSERT INTO order_items(id, order_id, product_id, variant_id, product_name, product_sku, quantity, unit_price)
				VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
				it.ID, o.ID, it.ProductID, it.VariantID, it.ProductName, it.ProductSKU, it.Quantity, it.UnitPrice,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return insertHistory(ctx, tx, first)
	})
}

func (s *PgStore) Get(ctx context.Context, id string) (Order, error) {
	o, err := getOrder(ctx, s.DB, id, false)
	if err != nil {
		return Order{}, err
	}
	items, err := listItems(ctx, s.DB, []string{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

func (s *PgStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := listItems(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (s *PgStore) History(ctx context.Context, orderID string) ([]StatusHistory, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, COALESCE(from_status, ''), to_status, note, changed_by, created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusHistory
	for rows.Next() {
		var h StatusHistory
		var from, to string
		if err := rows.Scan(&h.ID, &h.OrderID, &from, &to, &h.Note, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.FromStatus, h.ToStatus = Status(from), Status(to)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PgStore) Update(ctx context.Context, id string, fn func(o *Order) (*Change, error)) (Order, error) {
	var out Order
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		o, err := getOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		items, err := listItems(ctx, tx, []string{id})
		if err != nil {
			return err
		}
		o.Items = items[id]

		from := o.Status
		change, err := fn(&o)
		if err != nil {
			return err
		}
		if change == nil {
			out = o
			return nil
		}

		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status=$2, payment_transaction_id=NULLIF($3, ''), awaiting_delivery=$4,
				tracking_number=NULLIF($5, ''), updated_at=$6
			WHERE id=$1 AND status=$7`,
			id, string(change.To), o.PaymentTransactionID, o.AwaitingDelivery, o.TrackingNumber, o.UpdatedAt, string(from),
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInvalidTransition
		}

		err = insertHistory(ctx, tx, StatusHistory{
			ID:         uuid.NewString(),
			OrderID:    id,
			FromStatus: from,
			ToStatus:   change.To,
			Note:       change.Note,
			ChangedBy:  change.ChangedBy,
			CreatedAt:  o.UpdatedAt,
		})
		if err != nil {
			return err
		}
		o.Status = change.To
		out = o
		return nil
	})
	return out, err
}

func getOrder(ctx context.Context, q querier, id string, lock bool) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrOrderNotFound
	}
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var paymentType, status string
	err := row.Scan(&o.ID, &o.UserID, &o.Email, &paymentType, &status, &o.Subtotal, &o.ShippingCost,
		&o.TaxAmount, &o.TotalAmount, &o.PaymentTransactionID, &o.AwaitingDelivery, &o.TrackingNumber,
		&o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.PaymentType, o.Status = PaymentType(paymentType), Status(status)
	return o, nil
}

func listItems(ctx context.Context, q querier, orderIDs []string) (map[string][]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, COALESCE(variant_id, ''), product_name, product_sku, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY product_sku, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.ProductName,
			&it.ProductSKU, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, h StatusHistory) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history(id, order_id, from_status, to_status, note, changed_by, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		h.ID, h.OrderID, string(h.FromStatus), string(h.ToStatus), h.Note, h.ChangedBy, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}
