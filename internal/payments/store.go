package payments

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-saga-commerce/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct{ DB *pgxpool.Pool }

func (s *PgStore) Insert(ctx context.Context, t Transaction, unique bool) (bool, error) {
	sql := `
		INSERT INTO payment_transactions(id, order_id, user_id, kind, amount, reference, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if !unique {
		sql += ` ON CONFLICT (order_id, kind) DO NOTHING`
	}
	tag, err := s.DB.Exec(ctx, sql, t.ID, t.OrderID, t.UserID, string(t.Kind), t.Amount, t.Reference, t.Message, t.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return false, ErrAlreadyCharged
	}
	if err != nil {
		return false, fmt.Errorf("insert payment transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) ListByOrder(ctx context.Context, orderID string) ([]Transaction, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, user_id, kind, amount, reference, message, created_at
		FROM payment_transactions WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.UserID, &kind, &t.Amount, &t.Reference, &t.Message, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = Kind(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}
