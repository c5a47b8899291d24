package entitlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Catalog caches the product list loaded from the commerce gateway.
// The catalog is loaded at most once per process; a failed load leaves the
// cache unloaded so a later call can retry.
type Catalog struct {
	mu       sync.Mutex
	gw       Gateway
	ids      []string
	products []Product
	loaded   bool
}

// NewCatalog creates an unloaded catalog over the fixed product id set.
func NewCatalog(gw Gateway) *Catalog {
	return &Catalog{gw: gw, ids: ProductIDs}
}

// Load fetches the catalog from the gateway. Loading is idempotent: once a
// load has succeeded, later calls return immediately without a gateway call.
// The lock is held across the fetch, so concurrent first loads are
// serialized; the second caller waits and then observes the loaded catalog.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}

	products, err := c.gw.FetchProducts(ctx, c.ids)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogLoad, err)
	}

	c.products = products
	c.loaded = true
	log.Info().Int("products", len(products)).Msg("Product catalog loaded")
	return nil
}

// Product returns the cached product at the given logical index. Index-based
// lookup exists only for the UI boundary; entitlements are keyed by product id.
func (c *Catalog) Product(index int) (Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return Product{}, fmt.Errorf("%w: %w", ErrIndexOutOfRange, ErrCatalogNotLoaded)
	}
	if index < 0 || index >= len(c.products) {
		return Product{}, fmt.Errorf("%w: index %d, catalog size %d", ErrIndexOutOfRange, index, len(c.products))
	}
	return c.products[index], nil
}

// Products returns a copy of the cached product list, empty until loaded.
func (c *Catalog) Products() []Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Loaded reports whether a load has completed successfully.
func (c *Catalog) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}
