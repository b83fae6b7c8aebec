/*

This file contains the engine: one object wiring the assembler, calculator, and
aggregator into the single query the callers see: compute the current
position/reward snapshot of the pool.

Each invocation is a fresh pull with all intermediate state local to the call, so a
caller can abandon an in-flight computation via its context without corrupting
anything shared. Staleness policy (how often to recompute) belongs to the caller;
RunLoop below is the reporting deployment's policy, not the pipeline's.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stakesight/stakesight/internal/aggregator"
	"github.com/stakesight/stakesight/internal/assembler"
	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/logger"
	"github.com/stakesight/stakesight/internal/reward"
	"github.com/stakesight/stakesight/internal/types"
)

// Engine computes pool snapshots on demand.
type Engine struct {
	logger    zerolog.Logger
	client    chain.ObjectClient
	assembler *assembler.Assembler
	agg       *aggregator.Aggregator
	poolID    types.ObjectID

	// SnapshotSink, when set, receives every successfully computed snapshot
	// (the reporting deployment persists them; a UI caller may not care).
	sink SnapshotSink
}

// SnapshotSink consumes computed snapshots.
type SnapshotSink interface {
	SaveSnapshot(snapshot *types.PoolSnapshot) error
}

// Config holds the dependencies for creating an Engine.
type Config struct {
	Client              chain.ObjectClient
	PoolID              types.ObjectID
	PageSize            int
	FetchConcurrency    int
	FallbackBPSPerEpoch int64
	Sink                SnapshotSink // optional
}

// New validates the configuration and wires up an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Client == nil {
		return nil, errors.New("object client is required")
	}
	if cfg.PoolID == "" {
		return nil, errors.New("pool object ID is required")
	}

	asm, err := assembler.New(cfg.Client, cfg.PageSize, cfg.FetchConcurrency)
	if err != nil {
		return nil, fmt.Errorf("assembler construction failed: %w", err)
	}

	calc, err := reward.NewCalculator(cfg.FallbackBPSPerEpoch)
	if err != nil {
		return nil, fmt.Errorf("calculator construction failed: %w", err)
	}

	agg, err := aggregator.New(cfg.Client, calc, cfg.FetchConcurrency)
	if err != nil {
		return nil, fmt.Errorf("aggregator construction failed: %w", err)
	}

	return &Engine{
		logger:    logger.GetForComponent("engine"),
		client:    cfg.Client,
		assembler: asm,
		agg:       agg,
		poolID:    cfg.PoolID,
		sink:      cfg.Sink,
	}, nil
}

// ComputeSnapshot runs one full aggregation: assemble the position tree,
// resolve rates, fold, reconcile. Returns (nil, nil) when the pool root cannot
// be resolved; "no data yet" is a normal state for a new pool, and no partial
// result is meaningful without the root.
func (e *Engine) ComputeSnapshot(ctx context.Context) (*types.PoolSnapshot, error) {
	runID := uuid.NewString()
	runLogger := e.logger.With().Str("runID", runID).Logger()
	started := time.Now()

	tree, err := e.assembler.Build(ctx, e.poolID)
	if err != nil {
		if errors.Is(err, assembler.ErrPoolUnavailable) {
			runLogger.Warn().Err(err).Msg("Pool root unavailable, reporting no data")
			return nil, nil
		}
		return nil, fmt.Errorf("tree assembly failed: %w", err)
	}

	snapshot, err := e.agg.Aggregate(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}
	snapshot.RunID = runID

	runLogger.Info().
		Dur("elapsed", time.Since(started)).
		Uint64("epoch", snapshot.Epoch).
		Bool("needsUpdate", snapshot.Reconciliation.NeedsUpdate).
		Msg("Snapshot computed")

	if e.sink != nil {
		if err := e.sink.SaveSnapshot(snapshot); err != nil {
			// Persistence is best-effort; the computed snapshot is still valid.
			runLogger.Error().Err(err).Msg("Failed to persist snapshot")
		}
	}

	return snapshot, nil
}

// RunLoop recomputes a snapshot every interval until ctx is cancelled. This is
// the reporting deployment's recompute policy.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Str("interval", interval.String()).Msg("Starting aggregation loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.ComputeSnapshot(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Snapshot computation failed")
		}

		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Aggregation loop stopping")
			return
		case <-ticker.C:
		}
	}
}
