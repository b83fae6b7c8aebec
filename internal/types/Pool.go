/*

This file contains the core domain types for the position aggregation engine: the pool root,
the per-validator vaults and their stake positions, and the epoch-indexed exchange rates.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// ObjectID is an opaque on-chain object identifier (0x-prefixed hex).
type ObjectID string

// Address is an opaque validator account address (0x-prefixed hex).
type Address string

// Pool is the read-only snapshot of the liquid-staking pool root object.
type Pool struct {
	ID              ObjectID    `json:"id"`
	TotalStaked     sdkmath.Int `json:"total_staked"`     // principal under management across all vaults
	PendingStake    sdkmath.Int `json:"pending_stake"`    // deposited but not yet deployed to a validator
	ReportedRewards sdkmath.Int `json:"reported_rewards"` // cumulative reward figure last reported by the operator
	LastReportAt    time.Time   `json:"last_report_at"`
	Paused          bool        `json:"paused"`
	VaultsTableID   ObjectID    `json:"vaults_table_id"`
}

// ValidatorRecord is one validator registered with the network, as seen in the
// latest system state. Created and updated outside this engine; read-only here.
type ValidatorRecord struct {
	Address         Address  `json:"address"`
	Weight          uint64   `json:"weight"`       // operator-assigned priority weight
	VotingPower     uint64   `json:"voting_power"` // network voting-power share, basis points
	StakingPoolID   ObjectID `json:"staking_pool_id"`
	ExchangeRatesID ObjectID `json:"exchange_rates_id"` // epoch-keyed rate history table
}

// Vault is the pool's aggregate holding at one validator.
type Vault struct {
	Validator        Address         `json:"validator"`
	Weight           uint64          `json:"weight"` // operator-assigned priority weight
	TotalStaked      sdkmath.Int     `json:"total_staked"`
	LastDepositEpoch uint64          `json:"last_deposit_epoch"`
	EpochDeposit     sdkmath.Int     `json:"epoch_deposit"` // amount deposited during LastDepositEpoch
	StakesTableID    ObjectID        `json:"stakes_table_id"`
	Positions        []StakePosition `json:"positions"`
	Synthetic        bool            `json:"synthetic"` // roster placeholder, validator has never held a deposit
}

// StakePosition is one discrete deposit inside a vault. Immutable once created;
// it disappears from the next snapshot on withdrawal.
type StakePosition struct {
	ID              ObjectID    `json:"id"`
	Principal       sdkmath.Int `json:"principal"`
	ActivationEpoch uint64      `json:"activation_epoch"` // epoch after which the position is eligible to earn
}

// IsActive reports whether the position has reached its activation epoch.
func (p StakePosition) IsActive(currentEpoch uint64) bool {
	return currentEpoch >= p.ActivationEpoch
}

// IsEarning reports whether reward computation applies. The activation epoch
// itself accrues zero reward by contract design.
func (p StakePosition) IsEarning(currentEpoch uint64) bool {
	return currentEpoch > p.ActivationEpoch
}

// NewZeroVault returns the synthetic vault used to represent a validator that
// is in the active set but has never held a deposit, so downstream consumers
// see a complete roster instead of a sparse one.
func NewZeroVault(validator Address) Vault {
	return Vault{
		Validator:    validator,
		TotalStaked:  sdkmath.ZeroInt(),
		EpochDeposit: sdkmath.ZeroInt(),
		Synthetic:    true,
	}
}
