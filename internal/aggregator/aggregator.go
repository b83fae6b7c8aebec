/*

This file contains the aggregator/reconciler: it folds an assembled position tree into
per-validator and protocol-wide totals and compares the computed reward total against
the operator-reported figure to decide whether an on-chain update is due.

A negative reconciliation delta (reported exceeds computed) is surfaced as a distinct
anomaly status, never clamped away: an inflated report must be visible.

*/

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/stakesight/stakesight/internal/assembler"
	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/logger"
	"github.com/stakesight/stakesight/internal/reward"
	"github.com/stakesight/stakesight/internal/types"
)

var (
	ErrNilClient = errors.New("object client cannot be nil")
	ErrNilTree   = errors.New("position tree cannot be nil")
)

// Aggregator folds position trees into pool snapshots.
type Aggregator struct {
	client      chain.ObjectClient
	calc        reward.Calculator
	concurrency int
	logger      zerolog.Logger
}

// New validates the inputs and constructs an Aggregator.
func New(client chain.ObjectClient, calc reward.Calculator, concurrency int) (*Aggregator, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	return &Aggregator{
		client:      client,
		calc:        calc,
		concurrency: concurrency,
		logger:      logger.GetForComponent("aggregator"),
	}, nil
}

// Aggregate resolves the exchange rates the tree needs, computes every
// position's reward, and folds the results into a PoolSnapshot.
func (ag *Aggregator) Aggregate(ctx context.Context, tree *assembler.Tree) (*types.PoolSnapshot, error) {
	if tree == nil {
		return nil, ErrNilTree
	}

	rates, err := ag.resolveRates(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("rate resolution failed: %w", err)
	}

	snapshot := &types.PoolSnapshot{
		PoolID:         tree.Pool.ID,
		Epoch:          tree.Epoch,
		Paused:         tree.Pool.Paused,
		TotalPrincipal: sdkmath.ZeroInt(),
		PendingStake:   orZero(tree.Pool.PendingStake),
		TotalRewards:   sdkmath.ZeroInt(),
		TotalValue:     sdkmath.ZeroInt(),
		SkippedEntries: tree.Skipped + rates.skipped,
		Validators:     make([]types.ValidatorSummary, 0, len(tree.Vaults)),
		ComputedAt:     time.Now().UTC(),
	}

	vaultStakedTotal := sdkmath.ZeroInt()

	for _, vault := range tree.Vaults {
		summary := ag.summarizeVault(vault, tree.Epoch, rates)
		snapshot.Validators = append(snapshot.Validators, summary)

		snapshot.TotalPrincipal = snapshot.TotalPrincipal.Add(summary.Principal)
		snapshot.TotalRewards = snapshot.TotalRewards.Add(summary.Rewards)
		snapshot.TotalValue = snapshot.TotalValue.Add(summary.CurrentValue)
		snapshot.ActivePositions += summary.ActivePositions
		snapshot.PendingPositions += summary.PendingPositions
		snapshot.EstimatedPositions += summary.EstimatedPositions

		if !vault.Synthetic {
			vaultStakedTotal = vaultStakedTotal.Add(orZero(vault.TotalStaked))
		}
	}

	// Cross-check, not an enforcement: the vault aggregates should sum to the
	// pool's tracked principal. Drift means a stale or partially failed read.
	if !tree.Pool.TotalStaked.IsNil() && !vaultStakedTotal.Equal(tree.Pool.TotalStaked) {
		ag.logger.Warn().
			Str("vaultTotal", vaultStakedTotal.String()).
			Str("poolTotal", tree.Pool.TotalStaked.String()).
			Int("skippedEntries", snapshot.SkippedEntries).
			Msg("Vault principal sum does not match pool-tracked principal")
	}

	snapshot.Reconciliation = Reconcile(snapshot.TotalRewards, tree.Pool.ReportedRewards)

	ag.logger.Info().
		Uint64("epoch", snapshot.Epoch).
		Str("totalPrincipal", snapshot.TotalPrincipal.String()).
		Str("totalRewards", snapshot.TotalRewards.String()).
		Int("activePositions", snapshot.ActivePositions).
		Int("pendingPositions", snapshot.PendingPositions).
		Int("estimatedPositions", snapshot.EstimatedPositions).
		Int("skippedEntries", snapshot.SkippedEntries).
		Str("reconcileStatus", string(snapshot.Reconciliation.Status)).
		Msg("Pool snapshot aggregated")

	return snapshot, nil
}

// summarizeVault folds one vault's positions into a validator summary.
func (ag *Aggregator) summarizeVault(vault types.Vault, currentEpoch uint64, rates *rateSet) types.ValidatorSummary {
	summary := types.ValidatorSummary{
		Validator:    vault.Validator,
		Principal:    sdkmath.ZeroInt(),
		Rewards:      sdkmath.ZeroInt(),
		CurrentValue: sdkmath.ZeroInt(),
		Synthetic:    vault.Synthetic,
	}

	currentRate := rates.currentRate(vault.Validator, currentEpoch)

	for _, pos := range vault.Positions {
		principal := orZero(pos.Principal)
		summary.Principal = summary.Principal.Add(principal)

		if summary.EarliestActivationEpoch == 0 || pos.ActivationEpoch < summary.EarliestActivationEpoch {
			summary.EarliestActivationEpoch = pos.ActivationEpoch
		}

		if !pos.IsActive(currentEpoch) {
			// Pending positions contribute principal only.
			summary.PendingPositions++
			summary.CurrentValue = summary.CurrentValue.Add(principal)
			continue
		}
		summary.ActivePositions++

		rwd := ag.calc.ForPosition(pos, currentEpoch, currentRate, rates.depositRate(vault.Validator, pos.ActivationEpoch))
		if rwd.Kind == types.RewardEstimated {
			summary.EstimatedPositions++
		}

		summary.Rewards = summary.Rewards.Add(rwd.Amount)
		summary.CurrentValue = summary.CurrentValue.Add(principal).Add(rwd.Amount)
	}

	return summary
}

// Reconcile compares the computed reward total against the operator-reported
// figure. The delta keeps its sign; needsUpdate fires only on positive drift.
func Reconcile(computed, reported sdkmath.Int) types.Reconciliation {
	computed = orZero(computed)
	reported = orZero(reported)
	delta := computed.Sub(reported)

	status := types.StatusUpToDate
	switch {
	case delta.IsPositive():
		status = types.StatusUpdateDue
	case delta.IsNegative():
		status = types.StatusOverReported
	}

	return types.Reconciliation{
		ComputedRewards: computed,
		ReportedRewards: reported,
		Delta:           delta,
		NeedsUpdate:     delta.IsPositive(),
		Status:          status,
	}
}

func orZero(amount sdkmath.Int) sdkmath.Int {
	if amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount
}
