/*

This file contains the batched exchange-rate resolution used by the aggregator.

Rate tables are epoch-keyed dynamic-field tables, one per validator. Deposit rates are
resolved once per distinct (validator, epoch) pair observed in the tree, never once per
position. The current rate may step back a bounded number of epochs when the live
epoch's snapshot has not been recorded yet (epoch rollover race).

A missing snapshot is legitimate absence, not a failure; only transport-level lookup
failures count toward the skipped-entry total.

*/

package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"golang.org/x/sync/errgroup"

	"github.com/stakesight/stakesight/internal/assembler"
	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/config"
	"github.com/stakesight/stakesight/internal/types"
)

// rateKey identifies one exchange-rate snapshot to resolve.
type rateKey struct {
	Validator types.Address
	Epoch     uint64
}

// rateFields is the wire payload of one recorded rate snapshot.
type rateFields struct {
	NativeAmount sdkmath.Int `json:"sui_amount"`
	TokenAmount  sdkmath.Int `json:"pool_token_amount"`
}

// rateSet is the outcome of one batched resolution pass.
type rateSet struct {
	deposit map[rateKey]types.RateSnapshot
	current map[types.Address]types.RateSnapshot
	skipped int
}

func (rs *rateSet) depositRate(validator types.Address, epoch uint64) *types.RateSnapshot {
	if rate, ok := rs.deposit[rateKey{Validator: validator, Epoch: epoch}]; ok {
		return &rate
	}
	return nil
}

func (rs *rateSet) currentRate(validator types.Address, epoch uint64) types.RateSnapshot {
	if rate, ok := rs.current[validator]; ok {
		return rate
	}
	return types.IdentityRate(epoch)
}

// fetchRate point-looks-up the rate recorded for one epoch in one validator's
// rate table. Returns chain.ErrNotFound when the epoch has no snapshot.
func (ag *Aggregator) fetchRate(ctx context.Context, ratesID types.ObjectID, epoch uint64) (types.RateSnapshot, error) {
	obj, err := ag.client.GetDynamicFieldObject(ctx, ratesID, chain.U64Key(epoch))
	if err != nil {
		return types.RateSnapshot{}, err
	}

	payload := obj.Fields
	var wrapper struct {
		Value struct {
			Fields json.RawMessage `json:"fields"`
		} `json:"value"`
	}
	if err := json.Unmarshal(obj.Fields, &wrapper); err == nil && len(wrapper.Value.Fields) > 0 {
		payload = wrapper.Value.Fields
	}

	var fields rateFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return types.RateSnapshot{}, fmt.Errorf("malformed rate snapshot for epoch %d: %w", epoch, err)
	}
	if fields.NativeAmount.IsNil() || fields.TokenAmount.IsNil() {
		return types.RateSnapshot{}, fmt.Errorf("malformed rate snapshot for epoch %d: missing amounts", epoch)
	}

	return types.RateSnapshot{
		Epoch:        epoch,
		NativeAmount: fields.NativeAmount,
		TokenAmount:  fields.TokenAmount,
	}, nil
}

// fetchCurrentRate resolves the rate valuing positions right now, stepping
// back at most CurrentRateMaxStepBack epochs past an unrecorded live epoch.
func (ag *Aggregator) fetchCurrentRate(ctx context.Context, ratesID types.ObjectID, currentEpoch uint64) (types.RateSnapshot, error) {
	for back := uint64(0); back <= config.CurrentRateMaxStepBack && back <= currentEpoch; back++ {
		rate, err := ag.fetchRate(ctx, ratesID, currentEpoch-back)
		if err == nil {
			return rate, nil
		}
		if !errors.Is(err, chain.ErrNotFound) {
			return types.RateSnapshot{}, err
		}
	}
	return types.RateSnapshot{}, chain.ErrNotFound
}

// resolveRates batches all rate lookups the tree needs: the current rate per
// validator with earning positions, and one deposit rate per distinct
// (validator, activation epoch) pair.
func (ag *Aggregator) resolveRates(ctx context.Context, tree *assembler.Tree) (*rateSet, error) {
	ratesIDs := make(map[types.Address]types.ObjectID, len(tree.Validators))
	for _, record := range tree.Validators {
		if record.ExchangeRatesID != "" {
			ratesIDs[record.Address] = record.ExchangeRatesID
		}
	}

	depositKeys := make(map[rateKey]struct{})
	currentValidators := make(map[types.Address]struct{})
	for _, vault := range tree.Vaults {
		if _, ok := ratesIDs[vault.Validator]; !ok {
			continue
		}
		for _, pos := range vault.Positions {
			if !pos.IsEarning(tree.Epoch) {
				continue
			}
			depositKeys[rateKey{Validator: vault.Validator, Epoch: pos.ActivationEpoch}] = struct{}{}
			currentValidators[vault.Validator] = struct{}{}
		}
	}

	rs := &rateSet{
		deposit: make(map[rateKey]types.RateSnapshot, len(depositKeys)),
		current: make(map[types.Address]types.RateSnapshot, len(currentValidators)),
	}

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ag.concurrency)

	for key := range depositKeys {
		key := key
		group.Go(func() error {
			rate, err := ag.fetchRate(groupCtx, ratesIDs[key.Validator], key.Epoch)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				rs.deposit[key] = rate
			case errors.Is(err, chain.ErrNotFound):
				// Legitimate transient absence for recent epochs; the fallback
				// policy decides what the position reports.
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				rs.skipped++
				ag.logger.Warn().
					Err(err).
					Str("validator", string(key.Validator)).
					Uint64("epoch", key.Epoch).
					Msg("Skipping deposit rate lookup that failed")
			}
			return nil
		})
	}

	for validator := range currentValidators {
		validator := validator
		group.Go(func() error {
			rate, err := ag.fetchCurrentRate(groupCtx, ratesIDs[validator], tree.Epoch)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				rs.current[validator] = rate
			case errors.Is(err, chain.ErrNotFound):
				// No usable snapshot within the step-back window; positions at
				// this validator value at the identity rate this run.
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				rs.skipped++
				ag.logger.Warn().
					Err(err).
					Str("validator", string(validator)).
					Msg("Skipping current rate lookup that failed")
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return rs, nil
}
