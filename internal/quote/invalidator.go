package quote

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-tierprice/internal/events"
	"github.com/noah-isme/toko-tierprice/internal/obs"
)

// ProductInvalidator drops every cached quote of a product.
type ProductInvalidator interface {
	InvalidateProduct(ctx context.Context, productID int64) (int, error)
}

// SnapshotForgetter drops memoised product data. *catalog.CachedProducts satisfies it.
type SnapshotForgetter interface {
	Forget(ctx context.Context, productID int64) error
}

// Invalidator subscribes to product events and clears stale cache entries.
type Invalidator struct {
	Quotes    ProductInvalidator
	Snapshots SnapshotForgetter
	Logger    zerolog.Logger
}

// ProductChanged implements events.Subscriber.
func (i Invalidator) ProductChanged(ctx context.Context, ev events.ProductChanged) error {
	var joined error
	removed := 0
	if i.Snapshots != nil {
		if err := i.Snapshots.Forget(ctx, ev.ProductID); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	if i.Quotes != nil {
		n, err := i.Quotes.InvalidateProduct(ctx, ev.ProductID)
		removed = n
		if err != nil {
			joined = errors.Join(joined, err)
		}
	}
	obs.ObserveInvalidation(ev.Topic, removed)
	evt := i.Logger.Info()
	if joined != nil {
		evt = i.Logger.Error().Err(joined)
	}
	evt.Int64("product_id", ev.ProductID).
		Str("topic", ev.Topic).
		Int("removed", removed).
		Msg("quote cache invalidated")
	return joined
}
