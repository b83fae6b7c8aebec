/*

This file contains the exchange-rate snapshot type and the tagged reward value.

The exchange rate at an epoch is the ratio native/pool-token of the recorded amount pair.
Rewards computed from two real snapshots are Exact; rewards produced by the fallback
estimator for positions whose deposit-epoch snapshot is not yet recorded are Estimated
and must stay distinguishable all the way to the caller.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// RateSnapshot is the amount pair recorded for one validator at one epoch.
type RateSnapshot struct {
	Epoch        uint64      `json:"epoch"`
	NativeAmount sdkmath.Int `json:"native_amount"` // rate numerator
	TokenAmount  sdkmath.Int `json:"token_amount"`  // rate denominator
}

// IsDegenerate reports whether the rate is unusable as a divisor. A zero
// pool-token amount makes the rate undefined; computations must short-circuit
// to zero reward instead of dividing.
func (r RateSnapshot) IsDegenerate() bool {
	return r.TokenAmount.IsNil() || r.TokenAmount.IsZero()
}

// IdentityRate returns the 1:1 rate used when no usable snapshot exists for an
// epoch. Valuing against it contributes zero reward.
func IdentityRate(epoch uint64) RateSnapshot {
	return RateSnapshot{
		Epoch:        epoch,
		NativeAmount: sdkmath.OneInt(),
		TokenAmount:  sdkmath.OneInt(),
	}
}

// RewardKind tags how a reward figure was obtained.
type RewardKind string

const (
	// RewardExact was computed from two recorded exchange-rate snapshots.
	RewardExact RewardKind = "EXACT"
	// RewardEstimated was produced by the conservative linear fallback because
	// the deposit-epoch snapshot is not recorded yet.
	RewardEstimated RewardKind = "ESTIMATED"
	// RewardUnavailable means no trustworthy figure exists yet; the amount is zero.
	RewardUnavailable RewardKind = "UNAVAILABLE"
)

// Reward is a tagged reward amount. Never negative.
type Reward struct {
	Kind   RewardKind  `json:"kind"`
	Amount sdkmath.Int `json:"amount"`
}

// ExactReward builds an exact reward, clamping negatives to zero. A negative
// computed value indicates a stale or invalid rate pair, not a loss.
func ExactReward(amount sdkmath.Int) Reward {
	if amount.IsNil() || amount.IsNegative() {
		amount = sdkmath.ZeroInt()
	}
	return Reward{Kind: RewardExact, Amount: amount}
}

// EstimatedReward builds a fallback-estimated reward.
func EstimatedReward(amount sdkmath.Int) Reward {
	if amount.IsNil() || amount.IsNegative() {
		amount = sdkmath.ZeroInt()
	}
	return Reward{Kind: RewardEstimated, Amount: amount}
}

// UnavailableReward is the zero reward reported when neither an exact figure
// nor a defensible estimate exists.
func UnavailableReward() Reward {
	return Reward{Kind: RewardUnavailable, Amount: sdkmath.ZeroInt()}
}
