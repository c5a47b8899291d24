package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boostly/entitlementd/internal/entitlement"
	"github.com/boostly/entitlementd/internal/ledger"
	"github.com/boostly/entitlementd/internal/mockgateway"
)

func newMockManager(t *testing.T) (*entitlement.Manager, *mockgateway.Gateway) {
	t.Helper()
	gw := mockgateway.New()
	m := entitlement.NewManager(gw, ledger.NewMemory(), entitlement.Options{SubscriberBuffer: 16})
	t.Cleanup(m.Close)
	require.NoError(t, m.LoadCatalog(context.Background()))
	return m, gw
}

func TestPurchaseVerifiedSuccessActivatesAndAcknowledges(t *testing.T) {
	m, gw := newMockManager(t)

	date := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tx := entitlement.TransactionRecord{
		TransactionID: "tx-pro",
		ProductID:     "Pro_01",
		PurchaseDate:  date,
		Verification:  entitlement.Verified,
	}
	gw.ScriptPurchase("Pro_01", entitlement.PurchaseResult{
		State:       entitlement.PurchaseVerified,
		Transaction: &tx,
	})

	outcome, err := m.Purchase(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, entitlement.OutcomeSuccess, outcome)

	status := m.CurrentStatus()
	require.Equal(t, entitlement.StatusActive, status.Phase)
	require.NotNil(t, status.Subscription)
	require.Equal(t, entitlement.SubPro, status.Subscription.ID)
	require.Equal(t, date, status.Subscription.PurchaseDate)

	require.Equal(t, 1, gw.AckCount("tx-pro"))
}

func TestPurchaseRetryDoesNotDoubleAcknowledge(t *testing.T) {
	m, gw := newMockManager(t)

	tx := entitlement.TransactionRecord{
		TransactionID: "tx-repeat",
		ProductID:     "beginner_01",
		PurchaseDate:  time.Now(),
		Verification:  entitlement.Verified,
	}
	gw.ScriptPurchase("beginner_01", entitlement.PurchaseResult{
		State:       entitlement.PurchaseVerified,
		Transaction: &tx,
	})

	for i := 0; i < 3; i++ {
		outcome, err := m.Purchase(context.Background(), 0)
		require.NoError(t, err)
		require.Equal(t, entitlement.OutcomeSuccess, outcome)
	}

	require.Equal(t, 1, gw.AckCount("tx-repeat"), "retries must not re-acknowledge")
}

func TestPurchaseUnverifiedSuccessLeavesStatusAlone(t *testing.T) {
	m, gw := newMockManager(t)

	tx := entitlement.TransactionRecord{
		TransactionID: "tx-unverified",
		ProductID:     "Pro_01",
		PurchaseDate:  time.Now(),
		Verification:  entitlement.Unverified,
	}
	gw.ScriptPurchase("Pro_01", entitlement.PurchaseResult{
		State:       entitlement.PurchaseUnverified,
		Transaction: &tx,
	})

	outcome, err := m.Purchase(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, entitlement.OutcomeSuccess, outcome)

	require.Equal(t, entitlement.StatusNone, m.CurrentStatus().Phase)
	require.Equal(t, 0, gw.AckCount("tx-unverified"))
}

func TestPurchaseCancelledLeavesStatusUnchanged(t *testing.T) {
	m, gw := newMockManager(t)

	gw.ScriptPurchase("Influencer_01", entitlement.PurchaseResult{State: entitlement.PurchaseCancelled})

	before := m.CurrentStatus()
	outcome, err := m.Purchase(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, entitlement.OutcomeCancelled, outcome)
	require.Equal(t, before, m.CurrentStatus())
}

func TestPurchasePendingLeavesStatusUnchanged(t *testing.T) {
	m, gw := newMockManager(t)

	gw.ScriptPurchase("Pro_01", entitlement.PurchaseResult{State: entitlement.PurchasePending})

	outcome, err := m.Purchase(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, entitlement.OutcomePending, outcome)
	require.Equal(t, entitlement.StatusNone, m.CurrentStatus().Phase)
}

func TestPurchaseGatewayErrorSurfacesToCaller(t *testing.T) {
	m, gw := newMockManager(t)

	gw.PurchaseErr = errors.New("store unreachable")

	_, err := m.Purchase(context.Background(), 1)
	require.Error(t, err)
	require.Equal(t, entitlement.StatusNone, m.CurrentStatus().Phase)
}

func TestPurchaseInvalidIndex(t *testing.T) {
	m, _ := newMockManager(t)

	_, err := m.Purchase(context.Background(), 99)
	require.ErrorIs(t, err, entitlement.ErrIndexOutOfRange)
}
