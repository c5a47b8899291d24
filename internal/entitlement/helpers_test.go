package entitlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/boostly/entitlementd/internal/entitlement"
	"github.com/boostly/entitlementd/internal/ledger"
)

// fakeGateway implements entitlement.Gateway with overridable behavior.
type fakeGateway struct {
	fetchProducts       func(ctx context.Context, ids []string) ([]entitlement.Product, error)
	purchase            func(ctx context.Context, product entitlement.Product) (entitlement.PurchaseResult, error)
	currentEntitlements func(ctx context.Context) ([]entitlement.TransactionRecord, error)
	entitlementUpdates  func(ctx context.Context) (<-chan entitlement.TransactionRecord, error)
	acknowledge         func(ctx context.Context, tx entitlement.TransactionRecord) error
}

func (g *fakeGateway) FetchProducts(ctx context.Context, ids []string) ([]entitlement.Product, error) {
	if g.fetchProducts == nil {
		products := make([]entitlement.Product, 0, len(ids))
		for _, id := range ids {
			products = append(products, entitlement.Product{ID: id, DisplayName: id})
		}
		return products, nil
	}
	return g.fetchProducts(ctx, ids)
}

func (g *fakeGateway) Purchase(ctx context.Context, product entitlement.Product) (entitlement.PurchaseResult, error) {
	if g.purchase == nil {
		return entitlement.PurchaseResult{State: entitlement.PurchaseCancelled}, nil
	}
	return g.purchase(ctx, product)
}

func (g *fakeGateway) CurrentEntitlements(ctx context.Context) ([]entitlement.TransactionRecord, error) {
	if g.currentEntitlements == nil {
		return nil, nil
	}
	return g.currentEntitlements(ctx)
}

func (g *fakeGateway) EntitlementUpdates(ctx context.Context) (<-chan entitlement.TransactionRecord, error) {
	if g.entitlementUpdates == nil {
		ch := make(chan entitlement.TransactionRecord)
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch, nil
	}
	return g.entitlementUpdates(ctx)
}

func (g *fakeGateway) Acknowledge(ctx context.Context, tx entitlement.TransactionRecord) error {
	if g.acknowledge == nil {
		return nil
	}
	return g.acknowledge(ctx, tx)
}

func newTestManager(gw entitlement.Gateway) *entitlement.Manager {
	return entitlement.NewManager(gw, ledger.NewMemory(), entitlement.Options{SubscriberBuffer: 16})
}

func verifiedRecord(txID, productID string, purchased time.Time) entitlement.TransactionRecord {
	return entitlement.TransactionRecord{
		TransactionID: txID,
		ProductID:     productID,
		PurchaseDate:  purchased,
		Verification:  entitlement.Verified,
	}
}

func revokedRecord(txID, productID string, purchased, revoked time.Time) entitlement.TransactionRecord {
	record := verifiedRecord(txID, productID, purchased)
	record.RevocationDate = &revoked
	return record
}

func waitStatus(t *testing.T, ch <-chan entitlement.SubscriptionStatus) entitlement.SubscriptionStatus {
	t.Helper()
	select {
	case status := <-ch:
		return status
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status update")
		return entitlement.SubscriptionStatus{}
	}
}
