// Package entitlement derives the app's current subscription entitlement
// from verified commerce transactions and publishes it to subscribers.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entitlement errors
var (
	ErrCatalogLoad      = errors.New("catalog load failed")
	ErrCatalogNotLoaded = errors.New("catalog not loaded")
	ErrIndexOutOfRange  = errors.New("product index out of range")
	ErrInvalidProductID = errors.New("unrecognized product id")
)

// InvalidProductIDError reports a verified transaction naming a product the
// app does not recognize. It unwraps to ErrInvalidProductID.
type InvalidProductIDError struct {
	ProductID string
}

func (e *InvalidProductIDError) Error() string {
	return fmt.Sprintf("unrecognized product id %q", e.ProductID)
}

func (e *InvalidProductIDError) Unwrap() error {
	return ErrInvalidProductID
}

// Product is an opaque catalog entry loaded from the commerce gateway.
// Immutable once loaded.
type Product struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
}

// Verification is the gateway's attestation result for a transaction.
type Verification string

const (
	Verified   Verification = "verified"
	Unverified Verification = "unverified"
)

// TransactionRecord is a single transaction as reported by the commerce
// gateway. The reconciler only interprets records, it never mutates them.
type TransactionRecord struct {
	TransactionID  string       `json:"transactionId"`
	ProductID      string       `json:"productId"`
	PurchaseDate   time.Time    `json:"purchaseDate"`
	RevocationDate *time.Time   `json:"revocationDate,omitempty"`
	Verification   Verification `json:"verification"`
}

// Revoked reports whether the gateway has revoked this transaction
// (refund, chargeback, family-sharing removal).
func (t TransactionRecord) Revoked() bool {
	return t.RevocationDate != nil
}

// SubscriptionID identifies a known recurring product.
type SubscriptionID string

const (
	SubBeginner   SubscriptionID = "beginner"
	SubPro        SubscriptionID = "pro"
	SubInfluencer SubscriptionID = "influencer"
)

// Raw store product identifiers, in catalog order.
const (
	productBeginner   = "beginner_01"
	productPro        = "Pro_01"
	productInfluencer = "Influencer_01"
)

// ProductIDs is the fixed set of store products the app sells.
var ProductIDs = []string{productBeginner, productPro, productInfluencer}

var subscriptionByProduct = map[string]SubscriptionID{
	productBeginner:   SubBeginner,
	productPro:        SubPro,
	productInfluencer: SubInfluencer,
}

// SubscriptionIDFor maps a raw store product id to its SubscriptionID.
// A miss is a data-integrity fault: the gateway reported a product this
// build does not sell.
func SubscriptionIDFor(productID string) (SubscriptionID, error) {
	id, ok := subscriptionByProduct[productID]
	if !ok {
		return "", &InvalidProductIDError{ProductID: productID}
	}
	return id, nil
}

// Subscription is a granted entitlement. Value type, immutable.
type Subscription struct {
	ID           SubscriptionID `json:"id"`
	PurchaseDate time.Time      `json:"purchaseDate"`
}

// StatusPhase is the discriminant of SubscriptionStatus.
type StatusPhase string

const (
	StatusNone       StatusPhase = "none"
	StatusActive     StatusPhase = "active"
	StatusExpired    StatusPhase = "expired" // reserved, never produced by reconciliation
	StatusUnverified StatusPhase = "unverified"
	StatusPending    StatusPhase = "pending"
	StatusAbolition  StatusPhase = "abolition"
)

// SubscriptionStatus is the single current entitlement state. Exactly one
// phase is active at a time; Subscription is set for active/expired/abolition
// and PendingID for pending.
type SubscriptionStatus struct {
	Phase        StatusPhase    `json:"phase"`
	Subscription *Subscription  `json:"subscription,omitempty"`
	PendingID    SubscriptionID `json:"pendingId,omitempty"`
}

// StatusNoEntitlement returns the zero entitlement state.
func StatusNoEntitlement() SubscriptionStatus {
	return SubscriptionStatus{Phase: StatusNone}
}

// StatusActiveFor returns an active status for the given subscription.
func StatusActiveFor(sub Subscription) SubscriptionStatus {
	return SubscriptionStatus{Phase: StatusActive, Subscription: &sub}
}

// PurchaseOutcome is the caller-visible result of a purchase attempt.
type PurchaseOutcome string

const (
	OutcomeSuccess   PurchaseOutcome = "success"
	OutcomeCancelled PurchaseOutcome = "cancelled"
	OutcomePending   PurchaseOutcome = "pending"
	// OutcomeFailed marks a purchase that errored; it accompanies a non-nil
	// error rather than replacing it.
	OutcomeFailed PurchaseOutcome = "failed"
)

// PurchaseState is the gateway's resolution of a purchase call.
type PurchaseState string

const (
	PurchaseVerified   PurchaseState = "verified"
	PurchaseUnverified PurchaseState = "unverified"
	PurchaseCancelled  PurchaseState = "cancelled"
	PurchasePending    PurchaseState = "pending"
)

// PurchaseResult is what the gateway resolves a purchase call to.
// Transaction is set for verified and unverified states.
type PurchaseResult struct {
	State       PurchaseState
	Transaction *TransactionRecord
}

// Gateway is the contract this package requires from the platform commerce
// service. It is consumed, never implemented, by the entitlement core.
type Gateway interface {
	// FetchProducts resolves the catalog entries for the given product ids.
	FetchProducts(ctx context.Context, ids []string) ([]Product, error)

	// Purchase initiates a purchase and blocks until the gateway resolves
	// an outcome. User cancellation is a resolution, not an error.
	Purchase(ctx context.Context, product Product) (PurchaseResult, error)

	// CurrentEntitlements returns a snapshot of the transactions that back
	// the user's current entitlements.
	CurrentEntitlements(ctx context.Context) ([]TransactionRecord, error)

	// EntitlementUpdates returns a live feed of newly observed transactions.
	// The feed is closed when ctx is cancelled.
	EntitlementUpdates(ctx context.Context) (<-chan TransactionRecord, error)

	// Acknowledge finalizes a transaction so the gateway stops redelivering it.
	Acknowledge(ctx context.Context, tx TransactionRecord) error
}

// AckLedger records which transactions have already been acknowledged so
// purchase retries never double-acknowledge.
type AckLedger interface {
	Acknowledged(ctx context.Context, transactionID string) (bool, error)
	MarkAcknowledged(ctx context.Context, transactionID string) error
}
