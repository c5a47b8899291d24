package entitlement

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/boostly/entitlementd/internal/broadcast"
)

// Metric hooks, wired by the composition root. Nil hooks are skipped.
var (
	metricsMu         sync.RWMutex
	onReconcile       func(err error)
	onPurchaseOutcome func(outcome PurchaseOutcome)
	onStatusChange    func(phase StatusPhase)
)

// SetMetricHooks registers callbacks for reconcile passes, purchase outcomes
// and committed status changes.
func SetMetricHooks(reconcile func(error), purchase func(PurchaseOutcome), status func(StatusPhase)) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	onReconcile = reconcile
	onPurchaseOutcome = purchase
	onStatusChange = status
}

func recordReconcile(err error) {
	metricsMu.RLock()
	hook := onReconcile
	metricsMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

func recordPurchaseOutcome(outcome PurchaseOutcome) {
	metricsMu.RLock()
	hook := onPurchaseOutcome
	metricsMu.RUnlock()
	if hook != nil {
		hook(outcome)
	}
}

func recordStatusChange(phase StatusPhase) {
	metricsMu.RLock()
	hook := onStatusChange
	metricsMu.RUnlock()
	if hook != nil {
		hook(phase)
	}
}

// Manager owns the current subscription status and every path that may
// change it. It is constructed once by the composition root and passed to
// consumers; there is no package-level instance.
type Manager struct {
	gw      Gateway
	ledger  AckLedger
	catalog *Catalog

	// mu guards current. Reconciliation commits and reads both go through
	// it, so two passes can never interleave their writes.
	mu      sync.RWMutex
	current SubscriptionStatus

	bc *broadcast.Broadcaster[SubscriptionStatus]

	closeOnce sync.Once
}

// Options tune manager construction.
type Options struct {
	// SubscriberBuffer is the per-subscriber status channel capacity.
	SubscriberBuffer int
}

// NewManager creates a manager over the given gateway and acknowledgment
// ledger. The initial status is none.
func NewManager(gw Gateway, ledger AckLedger, opts Options) *Manager {
	m := &Manager{
		gw:      gw,
		ledger:  ledger,
		catalog: NewCatalog(gw),
		current: StatusNoEntitlement(),
		bc:      broadcast.New[SubscriptionStatus](opts.SubscriberBuffer),
	}
	// Seed the broadcaster so the first subscriber sees "none", not nothing.
	m.bc.Publish(m.current)
	return m
}

// Catalog exposes the product catalog cache.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// LoadCatalog loads the product catalog, at most once per process.
func (m *Manager) LoadCatalog(ctx context.Context) error {
	return m.catalog.Load(ctx)
}

// CurrentStatus returns the latest committed status. Never blocks on the
// gateway.
func (m *Manager) CurrentStatus() SubscriptionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers a status subscriber. The first value delivered is the
// current status; every later committed status follows in commit order.
// Release the subscription with Unsubscribe(id).
func (m *Manager) Subscribe() (string, <-chan SubscriptionStatus) {
	return m.bc.Subscribe()
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(id string) {
	m.bc.Unsubscribe(id)
}

// SubscriberCount returns the number of live status subscribers.
func (m *Manager) SubscriberCount() int {
	return m.bc.SubscriberCount()
}

// commit is the single write point for the current status. Publication
// happens here and nowhere else, so the write path stays auditable.
func (m *Manager) commit(status SubscriptionStatus) {
	m.mu.Lock()
	m.current = status
	// Publish inside the critical section so subscribers observe statuses
	// in commit order. Publish never blocks (drop-oldest policy).
	m.bc.Publish(status)
	m.mu.Unlock()

	recordStatusChange(status.Phase)
	log.Debug().Str("phase", string(status.Phase)).Msg("Subscription status committed")
}

// Close tears the manager down, closing all subscriber channels. Safe to
// call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.bc.Close()
	})
}
