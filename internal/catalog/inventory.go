package catalog

import (
	"context"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"go.uber.org/zap"
)

const (
	adjustReserve = "ORDER_PLACED"
	adjustRestock = "ORDER_CANCELLED"
)

// RegisterInventoryHandlers keeps stock in step with orders: placing an order takes stock
// out, cancelling puts it back.
func (s *Service) RegisterInventoryHandlers(c *events.Consumer) error {
	if err := c.Handle(events.OrderPlaced, s.onOrderPlaced); err != nil {
		return err
	}
	return c.Handle(events.OrderCancelled, s.onOrderCancelled)
}

func (s *Service) onOrderPlaced(ctx context.Context, ev events.Event) error {
	d, err := events.Decode[events.OrderPlacedData](ev)
	if err != nil {
		return err
	}
	return s.adjust(ctx, d.OrderID, adjustReserve, d.Items, -1)
}

func (s *Service) onOrderCancelled(ctx context.Context, ev events.Event) error {
	d, err := events.Decode[events.OrderCancelledData](ev)
	if err != nil {
		return err
	}
	return s.adjust(ctx, d.OrderID, adjustRestock, d.Items, 1)
}

func (s *Service) adjust(ctx context.Context, orderID, kind string, items []events.ItemSnapshot, sign int) error {
	changes := make([]StockChange, 0, len(items))
	for _, it := range items {
		changes = append(changes, StockChange{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  sign * it.Quantity,
		})
	}

	results, err := s.store.AdjustStock(ctx, orderID, kind, changes)
	if err != nil {
		return err
	}

	var touched []Product
	var variantKeys []string
	for _, r := range results {
		switch {
		case r.Missing:
			s.log.Warn("stock target not found",
				zap.String("order_id", orderID),
				zap.String("product_id", r.ProductID),
				zap.String("variant_id", r.VariantID),
			)
		case !r.Applied:
			s.log.Info("stock adjustment already applied",
				zap.String("order_id", orderID),
				zap.String("kind", kind),
				zap.String("product_id", r.ProductID),
			)
		default:
			if r.Stock < 0 {
				s.log.Warn("stock below zero", zap.String("product_id", r.ProductID), zap.Int("stock", r.Stock))
			}
			touched = append(touched, Product{ID: r.ProductID, Slug: r.ProductSlug})
			if r.VariantSKU != "" {
				variantKeys = append(variantKeys, s.variants.Alias("sku", r.VariantSKU))
			}
		}
	}
	if len(touched) > 0 {
		s.invalidateProduct(ctx, touched...)
		if len(variantKeys) > 0 {
			s.cache.Invalidate(ctx, variantKeys)
		}
	}
	return nil
}
