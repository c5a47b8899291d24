package entitlement

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Purchase drives a purchase attempt for the product at the given catalog
// index. The call blocks until the gateway resolves an outcome; user
// cancellation and a pending (e.g. parental approval) state are outcomes,
// not errors.
//
// Only a verified success changes the current status: the transaction is
// acknowledged exactly once (the ledger absorbs retries) and a snapshot
// reconciliation recomputes the entitlement. An unverified success is a
// deliberate no-op left to the next reconciliation pass.
func (m *Manager) Purchase(ctx context.Context, index int) (PurchaseOutcome, error) {
	product, err := m.catalog.Product(index)
	if err != nil {
		return "", err
	}
	return m.PurchaseProduct(ctx, product)
}

// PurchaseProduct is Purchase keyed by product instead of catalog index.
func (m *Manager) PurchaseProduct(ctx context.Context, product Product) (PurchaseOutcome, error) {
	result, err := m.gw.Purchase(ctx, product)
	if err != nil {
		recordPurchaseOutcome(OutcomeFailed)
		return "", fmt.Errorf("purchase %s: %w", product.ID, err)
	}

	outcome, err := m.resolvePurchase(ctx, product, result)
	if err != nil {
		recordPurchaseOutcome(OutcomeFailed)
		return "", err
	}
	recordPurchaseOutcome(outcome)
	return outcome, nil
}

func (m *Manager) resolvePurchase(ctx context.Context, product Product, result PurchaseResult) (PurchaseOutcome, error) {
	switch result.State {
	case PurchaseVerified:
		if result.Transaction == nil {
			return "", fmt.Errorf("purchase %s: gateway reported verified success without a transaction", product.ID)
		}
		if err := m.finalize(ctx, *result.Transaction); err != nil {
			return "", err
		}
		if err := m.Refresh(ctx); err != nil {
			return "", err
		}
		log.Info().
			Str("productId", product.ID).
			Str("transactionId", result.Transaction.TransactionID).
			Msg("Purchase completed")
		return OutcomeSuccess, nil

	case PurchaseUnverified:
		// Success, but unverifiable right now. Status is left for the
		// next reconciliation pass to pick up.
		log.Warn().Str("productId", product.ID).Msg("Purchase succeeded but could not be verified")
		return OutcomeSuccess, nil

	case PurchaseCancelled:
		log.Debug().Str("productId", product.ID).Msg("Purchase cancelled by user")
		return OutcomeCancelled, nil

	case PurchasePending:
		log.Info().Str("productId", product.ID).Msg("Purchase pending external approval")
		return OutcomePending, nil

	default:
		return "", fmt.Errorf("purchase %s: unknown gateway purchase state %q", product.ID, result.State)
	}
}

// finalize acknowledges a verified transaction to the gateway at most once.
// The ledger is consulted first so a retried purchase call cannot
// double-acknowledge.
func (m *Manager) finalize(ctx context.Context, tx TransactionRecord) error {
	acked, err := m.ledger.Acknowledged(ctx, tx.TransactionID)
	if err != nil {
		return fmt.Errorf("check acknowledgment for %s: %w", tx.TransactionID, err)
	}
	if acked {
		log.Debug().Str("transactionId", tx.TransactionID).Msg("Transaction already acknowledged")
		return nil
	}

	if err := m.gw.Acknowledge(ctx, tx); err != nil {
		return fmt.Errorf("acknowledge %s: %w", tx.TransactionID, err)
	}
	if err := m.ledger.MarkAcknowledged(ctx, tx.TransactionID); err != nil {
		// The ack went through; a ledger write failure only risks one
		// redundant ack on retry, which the gateway tolerates.
		log.Error().Err(err).Str("transactionId", tx.TransactionID).Msg("Failed to record acknowledgment")
	}
	return nil
}
