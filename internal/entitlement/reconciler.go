package entitlement

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Reconcile derives the current status from a snapshot of transaction
// records and commits it. The last verified, non-revoked record wins; a
// verified revoked record resets the status to none. Unverified records are
// skipped, not errors. A verified record naming an unknown product fails the
// whole pass with InvalidProductIDError and leaves the status untouched.
//
// Reconciliation holds no history: each call derives purely from the records
// it is given.
func (m *Manager) Reconcile(ctx context.Context, records []TransactionRecord) error {
	status, err := deriveStatus(records)
	recordReconcile(err)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.commit(status)
	return nil
}

// deriveStatus folds a record sequence into a status. With no verified
// record present the entitlement is none.
func deriveStatus(records []TransactionRecord) (SubscriptionStatus, error) {
	status := StatusNoEntitlement()
	for _, record := range records {
		if record.Verification != Verified {
			continue
		}

		if record.Revoked() {
			status = StatusNoEntitlement()
			continue
		}

		id, err := SubscriptionIDFor(record.ProductID)
		if err != nil {
			return SubscriptionStatus{}, err
		}
		status = StatusActiveFor(Subscription{ID: id, PurchaseDate: record.PurchaseDate})
	}
	return status, nil
}

// Refresh reconciles against the gateway's full entitlement snapshot.
func (m *Manager) Refresh(ctx context.Context) error {
	records, err := m.gw.CurrentEntitlements(ctx)
	if err != nil {
		return err
	}
	return m.Reconcile(ctx, records)
}

// Run consumes the gateway's live transaction feed until ctx is cancelled,
// reconciling each newly observed record as it arrives. A failure on one
// record is logged and dropped; the feed keeps being consumed.
func (m *Manager) Run(ctx context.Context) error {
	updates, err := m.gw.EntitlementUpdates(ctx)
	if err != nil {
		return err
	}

	log.Info().Msg("Entitlement update listener started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Entitlement update listener stopped")
			return ctx.Err()
		case record, ok := <-updates:
			if !ok {
				log.Info().Msg("Entitlement update feed closed")
				return nil
			}
			// Unverified updates carry no entitlement information; skip
			// them so they cannot wipe a committed status.
			if record.Verification != Verified {
				log.Debug().
					Str("transactionId", record.TransactionID).
					Msg("Skipping unverified entitlement update")
				continue
			}
			if err := m.Reconcile(ctx, []TransactionRecord{record}); err != nil {
				log.Error().Err(err).
					Str("transactionId", record.TransactionID).
					Str("productId", record.ProductID).
					Msg("Failed to reconcile entitlement update, continuing")
			}
		}
	}
}
