// Package cart keeps shopping carts in Redis only, one hash per user. Checkout reads a
// snapshot and the cart is cleared when the order is announced.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/ariefcatur/go-saga-commerce/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrItemNotFound = fmt.Errorf("cart item %w", apperr.ErrNotFound)
	ErrInvalidItem  = fmt.Errorf("%w: cart item", apperr.ErrValidation)
)

const maxWatchRetries = 5

type Line struct {
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	ProductSKU  string          `json:"productSku"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// ItemID is the hash field a line is stored under.
func (l Line) ItemID() string {
	if l.VariantID != "" {
		return l.ProductID + ":" + l.VariantID
	}
	return l.ProductID
}

type Cart struct {
	UserID   string          `json:"userId"`
	Items    []Line          `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewStore(rdb *redis.Client, log *zap.Logger) *Store {
	return &Store{rdb: rdb, ttl: redisx.TTLCart, log: log}
}

func key(userID string) string { return fmt.Sprintf(redisx.KeyCart, userID) }

// AddItem puts l in the cart; adding an item that is already there adds to its quantity.
func (s *Store) AddItem(ctx context.Context, userID string, l Line) (Cart, error) {
	if userID == "" || l.ProductID == "" || l.Quantity <= 0 || l.Price.IsNegative() {
		return Cart{}, ErrInvalidItem
	}
	k, field := key(userID), l.ItemID()
	err := s.update(ctx, k, func(tx *redis.Tx) (func(redis.Pipeliner), error) {
		cur, err := getLine(ctx, tx, k, field)
		if err != nil && !errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		if err == nil {
			l.Quantity += cur.Quantity
		}
		b, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		return func(p redis.Pipeliner) { p.HSet(ctx, k, field, b) }, nil
	})
	if err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

// UpdateQuantity sets the quantity of an existing item; zero or less removes it.
func (s *Store) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}
	k := key(userID)
	err := s.update(ctx, k, func(tx *redis.Tx) (func(redis.Pipeliner), error) {
		l, err := getLine(ctx, tx, k, itemID)
		if err != nil {
			return nil, err
		}
		l.Quantity = quantity
		b, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		return func(p redis.Pipeliner) { p.HSet(ctx, k, itemID, b) }, nil
	})
	if err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

func (s *Store) RemoveItem(ctx context.Context, userID, itemID string) (Cart, error) {
	n, err := s.rdb.HDel(ctx, key(userID), itemID).Result()
	if err != nil {
		return Cart{}, fmt.Errorf("remove cart item: %w", err)
	}
	if n == 0 {
		return Cart{}, ErrItemNotFound
	}
	return s.Get(ctx, userID)
}

func (s *Store) Get(ctx context.Context, userID string) (Cart, error) {
	fields, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return Cart{}, fmt.Errorf("read cart: %w", err)
	}
	c := Cart{UserID: userID, Items: []Line{}, Subtotal: decimal.Zero}
	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var l Line
		if err := json.Unmarshal([]byte(fields[id]), &l); err != nil {
			s.log.Warn("dropping unreadable cart line", zap.String("user_id", userID), zap.String("item_id", id), zap.Error(err))
			continue
		}
		c.Items = append(c.Items, l)
		c.Subtotal = c.Subtotal.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return c, nil
}

// Snapshot returns the cart as the item snapshots an order is built from.
func (s *Store) Snapshot(ctx context.Context, userID string) ([]events.ItemSnapshot, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]events.ItemSnapshot, 0, len(c.Items))
	for _, l := range c.Items {
		out = append(out, events.ItemSnapshot{
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			ProductSKU:  l.ProductSKU,
			Quantity:    l.Quantity,
			UnitPrice:   l.Price,
		})
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// RemoveOrdered drops the lines an order was built from. Lines added after the snapshot
// stay in the cart.
func (s *Store) RemoveOrdered(ctx context.Context, userID string, items []events.ItemSnapshot) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	fields := make([]string, 0, len(items))
	for _, it := range items {
		fields = append(fields, Line{ProductID: it.ProductID, VariantID: it.VariantID}.ItemID())
	}
	n, err := s.rdb.HDel(ctx, key(userID), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("remove ordered items: %w", err)
	}
	return n, nil
}

// RegisterHandlers removes the ordered lines from the buyer's cart once the order is placed.
func (s *Store) RegisterHandlers(c *events.Consumer) error {
	return c.Handle(events.OrderPlaced, func(ctx context.Context, ev events.Event) error {
		d, err := events.Decode[events.OrderPlacedData](ev)
		if err != nil {
			return err
		}
		n, err := s.RemoveOrdered(ctx, d.UserID, d.Items)
		if err != nil {
			return err
		}
		s.log.Info("ordered items removed from cart",
			zap.String("user_id", d.UserID), zap.String("order_id", d.OrderID), zap.Int64("removed", n))
		return nil
	})
}

// update runs read-modify-write on one cart under WATCH, retrying when another writer
// got there first. fn returns the writes to queue; the cart TTL is refreshed with them.
func (s *Store) update(ctx context.Context, k string, fn func(tx *redis.Tx) (func(redis.Pipeliner), error)) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			write, err := fn(tx)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				write(p)
				p.Expire(ctx, k, s.ttl)
				return nil
			})
			return err
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update cart %s: too much contention", k)
}

func getLine(ctx context.Context, tx *redis.Tx, k, field string) (Line, error) {
	raw, err := tx.HGet(ctx, k, field).Result()
	if errors.Is(err, redis.Nil) {
		return Line{}, ErrItemNotFound
	}
	if err != nil {
		return Line{}, fmt.Errorf("read cart item: %w", err)
	}
	var l Line
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return Line{}, fmt.Errorf("decode cart item: %w", err)
	}
	return l, nil
}
