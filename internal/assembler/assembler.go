/*

This file contains the position tree assembler. Given the pool root object it
reconstructs the complete (validator -> vault -> stake position) tree for one
aggregation run: system state and roster first, then the vaults table, then each
vault's stakes table, with bounded-concurrency fan-out inside each tier.

Validators in the active set without a vault entry are represented as synthetic
zero vaults so consumers always see the full roster. Failures below the pool root
are contained per entry and surface only as a skipped-entry count.

*/

package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/logger"
	"github.com/stakesight/stakesight/internal/types"
	"github.com/stakesight/stakesight/internal/walker"
)

var (
	ErrNilClient       = errors.New("object client cannot be nil")
	ErrPoolUnavailable = errors.New("pool object could not be resolved")
)

// Tree is the reconstructed logical ledger of one pool at one moment. It is an
// eventually-consistent view assembled from many independent reads.
type Tree struct {
	Pool       types.Pool
	Epoch      uint64
	Validators []types.ValidatorRecord
	Vaults     []types.Vault // one per roster validator, synthetic zeros included
	Skipped    int           // vault and position entries excluded by partial failures
}

// Assembler reconstructs position trees through an ObjectClient.
type Assembler struct {
	client      chain.ObjectClient
	pageSize    int
	concurrency int
	logger      zerolog.Logger
}

// New validates the inputs and constructs an Assembler.
func New(client chain.ObjectClient, pageSize, concurrency int) (*Assembler, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	return &Assembler{
		client:      client,
		pageSize:    pageSize,
		concurrency: concurrency,
		logger:      logger.GetForComponent("tree_assembler"),
	}, nil
}

// Build reconstructs the full position tree for poolID. Only failures to
// resolve the system state or the pool root are fatal; everything below is
// contained per entry and reported through Tree.Skipped.
func (a *Assembler) Build(ctx context.Context, poolID types.ObjectID) (*Tree, error) {
	state, err := a.client.GetLatestSystemState(ctx)
	if err != nil {
		return nil, fmt.Errorf("system state fetch failed: %w", err)
	}

	validators := make([]types.ValidatorRecord, 0, len(state.Validators))
	for _, meta := range state.Validators {
		validators = append(validators, types.ValidatorRecord{
			Address:         meta.Address,
			VotingPower:     meta.VotingPower,
			StakingPoolID:   meta.StakingPoolID,
			ExchangeRatesID: meta.ExchangeRatesID,
		})
	}

	pool, err := a.resolvePool(ctx, poolID)
	if err != nil {
		return nil, errors.Join(ErrPoolUnavailable, err)
	}

	tree := &Tree{
		Pool:       pool,
		Epoch:      state.Epoch,
		Validators: validators,
	}

	if pool.VaultsTableID == "" {
		// Malformed or freshly created pool: a missing vaults table is a
		// normal no-data-yet state, not an error.
		a.logger.Warn().
			Str("poolID", string(poolID)).
			Msg("Pool object carries no vaults table, returning empty roster tree")
		tree.Vaults = syntheticRoster(validators)
		return tree, nil
	}

	var skippedPositions atomic.Int64

	vaultResult, err := walker.Collect(ctx, a.client, pool.VaultsTableID, a.pageSize, a.concurrency,
		func(ctx context.Context, entry chain.DynamicFieldEntry) (types.Vault, error) {
			return a.resolveVault(ctx, entry, &skippedPositions)
		})
	if err != nil {
		// The vaults listing itself failed; an empty ledger would misstate
		// every figure downstream.
		return nil, fmt.Errorf("vaults table walk failed: %w", err)
	}

	tree.Vaults = mergeRoster(validators, vaultResult.Items)
	tree.Skipped = vaultResult.Skipped + int(skippedPositions.Load())

	// Vault weights are stored with the vault entries; fold them back onto the
	// roster records.
	weights := make(map[types.Address]uint64, len(tree.Vaults))
	for _, vault := range tree.Vaults {
		if !vault.Synthetic {
			weights[vault.Validator] = vault.Weight
		}
	}
	for i := range tree.Validators {
		tree.Validators[i].Weight = weights[tree.Validators[i].Address]
	}

	a.logger.Info().
		Str("poolID", string(poolID)).
		Uint64("epoch", tree.Epoch).
		Int("validators", len(tree.Validators)).
		Int("vaults", len(vaultResult.Items)).
		Int("skipped", tree.Skipped).
		Msg("Position tree assembled")

	return tree, nil
}

// resolvePool fetches and decodes the pool root object.
func (a *Assembler) resolvePool(ctx context.Context, poolID types.ObjectID) (types.Pool, error) {
	obj, err := a.client.GetObject(ctx, poolID)
	if err != nil {
		return types.Pool{}, err
	}

	var fields poolFields
	if err := json.Unmarshal(obj.Fields, &fields); err != nil {
		return types.Pool{}, fmt.Errorf("%w: pool %s: %w", ErrMalformedObject, poolID, err)
	}

	pool := types.Pool{
		ID:              poolID,
		TotalStaked:     orZero(fields.TotalStaked),
		PendingStake:    orZero(fields.PendingStake),
		ReportedRewards: orZero(fields.CollectedRewards),
		Paused:          fields.Paused,
		VaultsTableID:   fields.Vaults.id(),
	}
	if fields.LastReportTimestampMS > 0 {
		pool.LastReportAt = time.UnixMilli(int64(fields.LastReportTimestampMS)).UTC()
	}
	return pool, nil
}

// resolveVault fetches one vault entry and drains its stakes table.
func (a *Assembler) resolveVault(ctx context.Context, entry chain.DynamicFieldEntry, skippedPositions *atomic.Int64) (types.Vault, error) {
	obj, err := a.client.GetObject(ctx, entry.ObjectID)
	if err != nil {
		return types.Vault{}, fmt.Errorf("vault fetch failed: %w", err)
	}

	payload, err := unwrapField(obj.Fields)
	if err != nil {
		return types.Vault{}, fmt.Errorf("%w: vault %s", ErrMalformedObject, entry.ObjectID)
	}

	var fields vaultFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return types.Vault{}, fmt.Errorf("%w: vault %s: %w", ErrMalformedObject, entry.ObjectID, err)
	}
	if fields.Validator == "" {
		return types.Vault{}, fmt.Errorf("%w: vault %s has no validator address", ErrMalformedObject, entry.ObjectID)
	}

	vault := types.Vault{
		Validator:        fields.Validator,
		TotalStaked:      orZero(fields.TotalStaked),
		LastDepositEpoch: fields.LastDepositEpoch,
		EpochDeposit:     orZero(fields.EpochDepositAmount),
		StakesTableID:    fields.Stakes.id(),
		Weight:           fields.Weight,
	}

	if vault.StakesTableID == "" {
		return vault, nil
	}

	stakeResult, err := walker.Collect(ctx, a.client, vault.StakesTableID, a.pageSize, a.concurrency, a.resolvePosition)
	if err != nil {
		// The stakes listing failed wholesale; drop the whole vault rather
		// than report a vault with silently missing positions.
		return types.Vault{}, fmt.Errorf("stakes table walk failed for validator %s: %w", fields.Validator, err)
	}
	skippedPositions.Add(int64(stakeResult.Skipped))

	sort.SliceStable(stakeResult.Items, func(i, j int) bool {
		return stakeResult.Items[i].ActivationEpoch < stakeResult.Items[j].ActivationEpoch
	})
	vault.Positions = stakeResult.Items

	return vault, nil
}

// resolvePosition fetches and decodes one stake position object.
func (a *Assembler) resolvePosition(ctx context.Context, entry chain.DynamicFieldEntry) (types.StakePosition, error) {
	obj, err := a.client.GetObject(ctx, entry.ObjectID)
	if err != nil {
		return types.StakePosition{}, fmt.Errorf("position fetch failed: %w", err)
	}

	payload, err := unwrapField(obj.Fields)
	if err != nil {
		// Some deployments store the stake object directly instead of behind a
		// field wrapper; fall back to the raw fields.
		payload = obj.Fields
	}

	var fields stakeFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return types.StakePosition{}, fmt.Errorf("%w: position %s: %w", ErrMalformedObject, entry.ObjectID, err)
	}
	if fields.Principal.IsNil() {
		return types.StakePosition{}, fmt.Errorf("%w: position %s has no principal", ErrMalformedObject, entry.ObjectID)
	}

	id := fields.ID.ID
	if id == "" {
		id = entry.ObjectID
	}

	return types.StakePosition{
		ID:              id,
		Principal:       fields.Principal,
		ActivationEpoch: fields.StakeActivationEpoch,
	}, nil
}

// mergeRoster orders vaults by the validator roster and fills the gaps with
// synthetic zero vaults.
func mergeRoster(validators []types.ValidatorRecord, vaults []types.Vault) []types.Vault {
	byValidator := make(map[types.Address]types.Vault, len(vaults))
	for _, vault := range vaults {
		byValidator[vault.Validator] = vault
	}

	merged := make([]types.Vault, 0, len(validators))
	seen := make(map[types.Address]bool, len(validators))
	for _, record := range validators {
		seen[record.Address] = true
		if vault, ok := byValidator[record.Address]; ok {
			merged = append(merged, vault)
			continue
		}
		merged = append(merged, types.NewZeroVault(record.Address))
	}

	// Vaults for validators that have left the active set still hold principal
	// and must stay visible.
	for _, vault := range vaults {
		if !seen[vault.Validator] {
			merged = append(merged, vault)
		}
	}

	return merged
}

func syntheticRoster(validators []types.ValidatorRecord) []types.Vault {
	vaults := make([]types.Vault, 0, len(validators))
	for _, record := range validators {
		vaults = append(vaults, types.NewZeroVault(record.Address))
	}
	return vaults
}

func orZero(amount sdkmath.Int) sdkmath.Int {
	if amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount
}
