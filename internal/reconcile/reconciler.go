package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/telemetry"
)

// Catalog lists the stream URLs of every persisted record.
type Catalog interface {
	StreamURLs(ctx context.Context) ([]string, error)
}

// ActiveTransfers lists the stream URLs of transfers still registered in memory.
type ActiveTransfers interface {
	ActiveStreamURLs() []string
}

// Reconciler runs reconciliation passes against the catalog and the live transfers.
type Reconciler struct {
	root      string
	catalog   Catalog
	active    ActiveTransfers
	guard     *Guard
	telemetry *telemetry.Telemetry
}

func NewReconciler(root string, catalog Catalog, active ActiveTransfers, guard *Guard, tel *telemetry.Telemetry) *Reconciler {
	return &Reconciler{
		root:      root,
		catalog:   catalog,
		active:    active,
		guard:     guard,
		telemetry: tel,
	}
}

// Run performs a single pass while holding the exclusive side of the guard.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	release := r.guard.Exclusive()
	defer release()

	expected, err := r.catalog.StreamURLs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load catalog stream urls: %w", err)
	}

	expected = append(expected, r.active.ActiveStreamURLs()...)

	res, err := Reconcile(ctx, r.root, expected)
	if err != nil {
		return Result{}, err
	}

	r.telemetry.RecordReconcile(ctx, len(res.Deleted), res.Failed)

	return res, nil
}

// Watch runs a pass immediately and then on every tick until ctx is done.
func (r *Reconciler) Watch(ctx context.Context, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "watching media dir for orphan files", "interval", interval)

	r.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "shutting down reconciler")

			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Reconciler) runLogged(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	res, err := r.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to reconcile media dir", "err", err)

		r.telemetry.RecordSystemError("reconciler", "reconcile_failed")

		return
	}

	logger.DebugContext(ctx, "reconciled media dir",
		"scanned", res.Scanned, "deleted", len(res.Deleted), "failed", res.Failed)
}
