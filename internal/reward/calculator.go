/*

This file contains the reward calculator: pure integer arithmetic deriving the accrued
reward of one stake position from its principal and two exchange-rate snapshots.

The multiply-before-divide order in valueAtRates is a correctness requirement. Dividing
first truncates proportionally to position size; all numerators must be multiplied
through before the single division.

*/

package reward

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/stakesight/stakesight/internal/types"
)

var ErrNegativeFallbackRate = errors.New("fallback accrual rate cannot be negative")

const bpsDenominator = 10_000

// minEstimableEpochs is the earning span below which a missing deposit-epoch
// snapshot yields zero instead of an estimate. One epoch of accrual is too
// small to defend a guess.
const minEstimableEpochs = 2

// Calculator computes position rewards. FallbackBPSPerEpoch is the
// basis-point-per-epoch accrual assumed by the conservative estimator when a
// deposit-epoch snapshot has not been recorded yet.
type Calculator struct {
	FallbackBPSPerEpoch int64
}

// NewCalculator validates the fallback rate and constructs a Calculator.
func NewCalculator(fallbackBPSPerEpoch int64) (Calculator, error) {
	if fallbackBPSPerEpoch < 0 {
		return Calculator{}, fmt.Errorf("%w: %d", ErrNegativeFallbackRate, fallbackBPSPerEpoch)
	}
	return Calculator{FallbackBPSPerEpoch: fallbackBPSPerEpoch}, nil
}

// Compute derives the exact reward of principal between depositRate and
// currentRate. Degenerate inputs (zero denominator anywhere, zero deposit
// numerator) yield zero reward: insufficient information, not an error.
func (c Calculator) Compute(principal sdkmath.Int, currentRate, depositRate types.RateSnapshot) types.Reward {
	if principal.IsNil() || !principal.IsPositive() {
		return types.ExactReward(sdkmath.ZeroInt())
	}
	if depositRate.IsDegenerate() || currentRate.IsDegenerate() {
		return types.ExactReward(sdkmath.ZeroInt())
	}
	if depositRate.NativeAmount.IsNil() || depositRate.NativeAmount.IsZero() {
		return types.ExactReward(sdkmath.ZeroInt())
	}
	if currentRate.NativeAmount.IsNil() {
		return types.ExactReward(sdkmath.ZeroInt())
	}

	currentValue := valueAtRates(principal, currentRate, depositRate)
	return types.ExactReward(currentValue.Sub(principal))
}

// valueAtRates converts principal (denominated at the deposit rate) to its
// current native value: principal * cur.native * dep.token / (cur.token * dep.native).
func valueAtRates(principal sdkmath.Int, currentRate, depositRate types.RateSnapshot) sdkmath.Int {
	numerator := principal.
		Mul(currentRate.NativeAmount).
		Mul(depositRate.TokenAmount)
	denominator := currentRate.TokenAmount.Mul(depositRate.NativeAmount)
	return numerator.Quo(denominator)
}

// Estimate applies the conservative linear fallback over elapsedEpochs of
// earning: principal * bps * epochs / 10000.
func (c Calculator) Estimate(principal sdkmath.Int, elapsedEpochs uint64) types.Reward {
	if principal.IsNil() || !principal.IsPositive() || elapsedEpochs == 0 {
		return types.EstimatedReward(sdkmath.ZeroInt())
	}
	amount := principal.
		MulRaw(c.FallbackBPSPerEpoch).
		MulRaw(int64(elapsedEpochs)).
		QuoRaw(bpsDenominator)
	return types.EstimatedReward(amount)
}

// ForPosition computes the reward of one position at currentEpoch.
// depositRate is nil when no snapshot exists for the position's activation
// epoch; the dual fallback policy then applies:
//   - earning for at least two epochs: conservative estimate, tagged Estimated
//   - earning for less than two epochs: zero, tagged Unavailable (no guessing)
//
// Pending positions and positions inside their activation epoch earn zero by
// contract design.
func (c Calculator) ForPosition(pos types.StakePosition, currentEpoch uint64, currentRate types.RateSnapshot, depositRate *types.RateSnapshot) types.Reward {
	if !pos.IsEarning(currentEpoch) {
		return types.ExactReward(sdkmath.ZeroInt())
	}

	if depositRate == nil {
		elapsed := currentEpoch - pos.ActivationEpoch
		if elapsed < minEstimableEpochs {
			return types.UnavailableReward()
		}
		return c.Estimate(pos.Principal, elapsed)
	}

	return c.Compute(pos.Principal, currentRate, *depositRate)
}
