// Package mockgateway is an in-memory commerce gateway for development and
// tests. Purchase behavior is scripted per product and the live entitlement
// feed is fed by explicit pushes.
package mockgateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/boostly/entitlementd/internal/entitlement"
	gwerrors "github.com/boostly/entitlementd/internal/errors"
)

var defaultProducts = map[string]entitlement.Product{
	"beginner_01": {
		ID:          "beginner_01",
		DisplayName: "Beginner",
		Description: "Starter plan for new creators",
		Price:       "$4.99",
	},
	"Pro_01": {
		ID:          "Pro_01",
		DisplayName: "Pro",
		Description: "Advanced analytics and scheduling",
		Price:       "$14.99",
	},
	"Influencer_01": {
		ID:          "Influencer_01",
		DisplayName: "Influencer",
		Description: "Full toolkit for established creators",
		Price:       "$39.99",
	},
}

// Gateway implements entitlement.Gateway in memory.
type Gateway struct {
	mu           sync.Mutex
	products     map[string]entitlement.Product
	purchases    map[string]entitlement.PurchaseResult // scripted results per product id
	entitlements []entitlement.TransactionRecord
	feeds        map[string]chan entitlement.TransactionRecord
	ackCount     map[string]int

	// FetchErr, when set, fails FetchProducts with this error.
	FetchErr error
	// PurchaseErr, when set, fails Purchase with this error.
	PurchaseErr error
}

// New creates a gateway selling the app's default products. Purchases
// resolve to verified successes unless scripted otherwise.
func New() *Gateway {
	products := make(map[string]entitlement.Product, len(defaultProducts))
	for id, p := range defaultProducts {
		products[id] = p
	}
	return &Gateway{
		products:  products,
		purchases: make(map[string]entitlement.PurchaseResult),
		feeds:     make(map[string]chan entitlement.TransactionRecord),
		ackCount:  make(map[string]int),
	}
}

// FetchProducts resolves catalog entries for the given ids.
func (g *Gateway) FetchProducts(_ context.Context, ids []string) ([]entitlement.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FetchErr != nil {
		return nil, gwerrors.WrapConnectionError("fetch_products", g.FetchErr)
	}

	out := make([]entitlement.Product, 0, len(ids))
	for _, id := range ids {
		product, ok := g.products[id]
		if !ok {
			return nil, fmt.Errorf("unknown product %q", id)
		}
		out = append(out, product)
	}
	return out, nil
}

// ScriptPurchase fixes the result of the next purchases of the given product.
func (g *Gateway) ScriptPurchase(productID string, result entitlement.PurchaseResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.purchases[productID] = result
}

// Purchase resolves a scripted result, defaulting to a verified success with
// a fresh transaction.
func (g *Gateway) Purchase(ctx context.Context, product entitlement.Product) (entitlement.PurchaseResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.PurchaseErr != nil {
		return entitlement.PurchaseResult{}, gwerrors.NewGatewayError(gwerrors.ErrorTypeConnection, "purchase", g.PurchaseErr).WithProduct(product.ID)
	}
	if err := ctx.Err(); err != nil {
		return entitlement.PurchaseResult{}, err
	}

	if result, ok := g.purchases[product.ID]; ok {
		if result.State == entitlement.PurchaseVerified && result.Transaction != nil {
			g.entitlements = append(g.entitlements, *result.Transaction)
		}
		return result, nil
	}

	tx := entitlement.TransactionRecord{
		TransactionID: uuid.NewString(),
		ProductID:     product.ID,
		PurchaseDate:  time.Now(),
		Verification:  entitlement.Verified,
	}
	g.entitlements = append(g.entitlements, tx)
	log.Debug().Str("productId", product.ID).Str("transactionId", tx.TransactionID).Msg("Mock purchase resolved")
	return entitlement.PurchaseResult{State: entitlement.PurchaseVerified, Transaction: &tx}, nil
}

// SetEntitlements replaces the snapshot returned by CurrentEntitlements.
func (g *Gateway) SetEntitlements(records []entitlement.TransactionRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entitlements = append([]entitlement.TransactionRecord(nil), records...)
}

// CurrentEntitlements returns a copy of the entitlement snapshot.
func (g *Gateway) CurrentEntitlements(_ context.Context) ([]entitlement.TransactionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]entitlement.TransactionRecord, len(g.entitlements))
	copy(out, g.entitlements)
	return out, nil
}

// EntitlementUpdates returns a live feed closed when ctx is cancelled.
func (g *Gateway) EntitlementUpdates(ctx context.Context) (<-chan entitlement.TransactionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan entitlement.TransactionRecord, 64)
	g.feeds[id] = ch

	go func() {
		<-ctx.Done()
		g.mu.Lock()
		defer g.mu.Unlock()
		if feed, ok := g.feeds[id]; ok {
			close(feed)
			delete(g.feeds, id)
		}
	}()

	return ch, nil
}

// PushUpdate delivers a transaction to every live feed.
func (g *Gateway) PushUpdate(record entitlement.TransactionRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.feeds {
		select {
		case ch <- record:
		default:
			log.Warn().Str("transactionId", record.TransactionID).Msg("Mock feed full, dropping update")
		}
	}
}

// Acknowledge counts acknowledgments per transaction.
func (g *Gateway) Acknowledge(_ context.Context, tx entitlement.TransactionRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ackCount[tx.TransactionID]++
	return nil
}

// AckCount returns how many times the transaction was acknowledged.
func (g *Gateway) AckCount(transactionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ackCount[transactionID]
}
