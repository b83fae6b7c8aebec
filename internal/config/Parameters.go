/*

This file contains the default tunables for the aggregation engine.

*/

package config

const (
	// DefaultPageSize is the dynamic-field page limit per request. The public
	// endpoints cap this at 50 entries.
	DefaultPageSize = 50

	// DefaultFetchConcurrency bounds parallel object fetches within one tier.
	DefaultFetchConcurrency = 8

	// DefaultRPCRateLimit is the client-side request budget, requests/second.
	DefaultRPCRateLimit = 20.0

	// DefaultFallbackBPSPerEpoch is the conservative per-epoch accrual, in basis
	// points, assumed for positions whose deposit-epoch rate snapshot has not
	// been recorded yet. 4 bps/epoch corresponds to roughly 15% APY on a
	// one-epoch-per-day chain, below the historical validator average, so the
	// estimate understates rather than overstates.
	DefaultFallbackBPSPerEpoch = 4

	// DefaultLoopIntervalMinutes is the reporting loop recomputation interval.
	DefaultLoopIntervalMinutes = 10

	// CurrentRateMaxStepBack is how many epochs the current-rate lookup may step
	// back when the rate for the live epoch has not been recorded yet (epoch
	// rollover race). Beyond this the identity rate is used.
	CurrentRateMaxStepBack = 2
)
