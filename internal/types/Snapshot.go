/*

This file contains the aggregated output types: per-validator summaries, the
protocol-wide snapshot, and the reconciliation result against the operator-reported
reward figure.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// ValidatorSummary folds one vault's positions into totals.
type ValidatorSummary struct {
	Validator               Address     `json:"validator"`
	Principal               sdkmath.Int `json:"principal"`
	Rewards                 sdkmath.Int `json:"rewards"`
	CurrentValue            sdkmath.Int `json:"current_value"`
	ActivePositions         int         `json:"active_positions"`
	PendingPositions        int         `json:"pending_positions"`
	EstimatedPositions      int         `json:"estimated_positions"` // positions whose reward is fallback-estimated
	EarliestActivationEpoch uint64      `json:"earliest_activation_epoch,omitempty"`
	Synthetic               bool        `json:"synthetic"`
}

// ReconcileStatus classifies the outcome of comparing computed rewards against
// the operator-reported figure.
type ReconcileStatus string

const (
	// StatusUpToDate means computed and reported rewards match.
	StatusUpToDate ReconcileStatus = "UP_TO_DATE"
	// StatusUpdateDue means rewards have accrued beyond the reported figure and
	// an on-chain update is due.
	StatusUpdateDue ReconcileStatus = "UPDATE_DUE"
	// StatusOverReported means the reported figure exceeds the computed total.
	// This is an anomaly, not a normal up-to-date state, and is surfaced with
	// the negative delta intact.
	StatusOverReported ReconcileStatus = "OVER_REPORTED"
)

// Reconciliation compares the freshly computed reward total against the figure
// last reported by the operator.
type Reconciliation struct {
	ComputedRewards sdkmath.Int     `json:"computed_rewards"`
	ReportedRewards sdkmath.Int     `json:"reported_rewards"`
	Delta           sdkmath.Int     `json:"delta"` // computed - reported, sign preserved
	NeedsUpdate     bool            `json:"needs_update"`
	Status          ReconcileStatus `json:"status"`
}

// PoolSnapshot is the full output of one aggregation run. It is an
// eventually-consistent view: the underlying reads happen at slightly
// different wall-clock moments.
type PoolSnapshot struct {
	RunID  string   `json:"run_id"`
	PoolID ObjectID `json:"pool_id"`
	Epoch  uint64   `json:"epoch"`
	Paused bool     `json:"paused"`

	TotalPrincipal sdkmath.Int `json:"total_principal"`
	PendingStake   sdkmath.Int `json:"pending_stake"`
	TotalRewards   sdkmath.Int `json:"total_rewards"`
	TotalValue     sdkmath.Int `json:"total_value"`

	ActivePositions    int `json:"active_positions"`
	PendingPositions   int `json:"pending_positions"`
	EstimatedPositions int `json:"estimated_positions"`
	// SkippedEntries counts vaults, positions, and rate lookups excluded by
	// partial failures. Non-zero means the totals are a documented under-count.
	SkippedEntries int `json:"skipped_entries"`

	Validators     []ValidatorSummary `json:"validators"`
	Reconciliation Reconciliation     `json:"reconciliation"`
	ComputedAt     time.Time          `json:"computed_at"`
}
