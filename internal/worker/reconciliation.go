package worker

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/config"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
)

type OrderStore interface {
	FindStalePendingOrders(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
}

type SessionSource interface {
	GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
}

// Settler applies the processor's view of a session to the ledger. *order.Reconciler
// implements it.
type Settler interface {
	ConfirmSession(ctx context.Context, session *models.CheckoutSession) error
	ExpireSession(ctx context.Context, session *models.CheckoutSession) error
}

// LockChecker reports whether another instance is confirming an order right now.
type LockChecker interface {
	IsLocked(ctx context.Context, orderID string) (bool, error)
}

// ReconciliationWorker finds orders left PENDING after their checkout session was
// handed to the processor and settles them from the processor's state. It covers
// webhooks that never arrived.
type ReconciliationWorker struct {
	orders    OrderStore
	sessions  SessionSource
	settler   Settler
	lock      LockChecker
	logger    *logger.Logger
	interval  time.Duration
	staleAge  time.Duration
	batchSize int
	now       func() time.Time
}

func NewReconciliationWorker(orders OrderStore, sessions SessionSource, settler Settler, lock LockChecker, cfg config.ReconcileConfig, log *logger.Logger) *ReconciliationWorker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &ReconciliationWorker{
		orders:    orders,
		sessions:  sessions,
		settler:   settler,
		lock:      lock,
		logger:    log,
		interval:  cfg.Interval,
		staleAge:  cfg.StaleAfter,
		batchSize: batch,
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (w *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("RECONCILE", fmt.Sprintf("Reconciliation worker started (every %s, stale after %s)", w.interval, w.staleAge))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("RECONCILE", "Reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("RECONCILE", fmt.Sprintf("Sweep failed: %v", err))
			}
		}
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked   int
	Confirmed int
	Expired   int
	Skipped   int
	Failed    int
}

// Sweep settles one batch of stale orders. Errors on a single order are logged and
// the order is retried on the next sweep.
func (w *ReconciliationWorker) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	stale, err := w.orders.FindStalePendingOrders(ctx, w.now().Add(-w.staleAge), w.batchSize)
	if err != nil {
		return res, fmt.Errorf("find stale orders: %w", err)
	}
	if len(stale) == 0 {
		return res, nil
	}

	w.logger.Info("RECONCILE", fmt.Sprintf("Found %d stale pending orders", len(stale)))

	for i := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		o := &stale[i]
		res.Checked++

		outcome, err := w.settle(ctx, o)
		if err != nil {
			res.Failed++
			w.logger.Error("RECONCILE", fmt.Sprintf("Order %s: %v", o.OrderNumber, err))
			continue
		}
		switch outcome {
		case outcomeConfirmed:
			res.Confirmed++
		case outcomeExpired:
			res.Expired++
		default:
			res.Skipped++
		}
	}

	w.logger.Info("RECONCILE", fmt.Sprintf("Sweep done: %d checked, %d confirmed, %d expired, %d skipped, %d failed",
		res.Checked, res.Confirmed, res.Expired, res.Skipped, res.Failed))
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeConfirmed
	outcomeExpired
)

func (w *ReconciliationWorker) settle(ctx context.Context, o *models.Order) (outcome, error) {
	if w.lock != nil {
		locked, err := w.lock.IsLocked(ctx, o.ID)
		if err != nil {
			w.logger.Warn("RECONCILE", fmt.Sprintf("Lock check for %s failed: %v", o.OrderNumber, err))
		} else if locked {
			return outcomeSkipped, nil
		}
	}

	session, err := w.sessions.GetSession(ctx, o.ExternalReference)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("get session %s: %w", o.ExternalReference, err)
	}

	switch {
	case session.Status == models.SessionComplete &&
		(session.PaymentStatus == models.SessionPaid || session.PaymentStatus == models.SessionNoPaymentRequired):
		w.logger.LogOrder("RECONCILE", o.OrderNumber, "paid at the processor but still pending, confirming")
		if err := w.settler.ConfirmSession(ctx, session); err != nil {
			return outcomeSkipped, fmt.Errorf("confirm: %w", err)
		}
		return outcomeConfirmed, nil
	case session.Status == models.SessionExpired:
		w.logger.LogOrder("RECONCILE", o.OrderNumber, "session expired, failing order")
		if err := w.settler.ExpireSession(ctx, session); err != nil {
			return outcomeSkipped, fmt.Errorf("expire: %w", err)
		}
		return outcomeExpired, nil
	default:
		w.logger.Debug("RECONCILE", fmt.Sprintf("Order %s session %s is %s/%s, leaving it", o.OrderNumber, session.ID, session.Status, session.PaymentStatus))
		return outcomeSkipped, nil
	}
}
