package cache

import (
	"context"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

// CacheStore is the narrow capability Reader needs from Coordinator:
// read the advisory counter and overwrite it. Kept as an interface
// (rather than taking *Coordinator directly) so Reader's fallback
// logic is unit-testable without a Redis connection.
type CacheStore interface {
	GetAvailable(ctx context.Context, productID int64) (int, bool, error)
	Set(ctx context.Context, productID int64, available int) error
}

// StockSource is the Stock Calculator capability Reader falls back to
// on a cache miss.
type StockSource interface {
	Available(ctx context.Context, productID int64) (int, domain.Product, error)
}

// ProductSource fetches a product row on its own, without the hold
// aggregation queries StockSource.Available also runs. A cache hit
// needs only this, not the full Stock Calculator pass.
type ProductSource interface {
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
}

// Reader is the Cache Coordinator's caller-facing read path: the
// get_available(product_id) operation spec.md §4.2 and §2 describe
// ("a client queries product availability (Cache Coordinator → Stock
// Calculator on miss)"). GET /products/{id} talks to a Reader, never
// to Coordinator or the Stock Calculator directly.
type Reader struct {
	store    CacheStore
	calc     StockSource
	products ProductSource
}

// NewReader returns a Reader backed by store, falling back to calc on
// a miss and using products for the cache-hit product-row lookup.
func NewReader(store CacheStore, calc StockSource, products ProductSource) *Reader {
	return &Reader{store: store, calc: calc, products: products}
}

// GetAvailable returns the cached available-stock count for productID
// if present. On a miss it recomputes the count via the Stock
// Calculator, stores it, and returns it — the store-on-miss step the
// old direct-Redis-read implementation skipped. The product row
// itself is always read fresh (the cache holds only the derived
// count), but a cache hit skips the hold-aggregation queries that
// make the Stock Calculator's pass expensive.
func (r *Reader) GetAvailable(ctx context.Context, productID int64) (int, domain.Product, error) {
	product, err := r.products.GetProduct(ctx, productID)
	if err != nil {
		return 0, domain.Product{}, err
	}

	if cached, ok, err := r.store.GetAvailable(ctx, productID); err == nil && ok {
		return cached, product, nil
	}

	available, err := r.Refresh(ctx, productID)
	if err != nil {
		return 0, domain.Product{}, err
	}
	return available, product, nil
}

// Refresh is the refresh(product_id) operation spec.md §4.2 names: it
// bypasses any cached value, recomputes available stock via the Stock
// Calculator, stores the result, and returns it.
func (r *Reader) Refresh(ctx context.Context, productID int64) (int, error) {
	available, _, err := r.calc.Available(ctx, productID)
	if err != nil {
		return 0, err
	}
	if err := r.store.Set(ctx, productID, available); err != nil {
		return available, err
	}
	return available, nil
}
