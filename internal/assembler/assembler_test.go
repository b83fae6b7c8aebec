package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/types"
)

// fakeClient serves a canned object graph.
type fakeClient struct {
	state      *chain.SystemState
	stateErr   error
	objects    map[types.ObjectID]*chain.Object
	objectErrs map[types.ObjectID]error
	tables     map[types.ObjectID][]chain.DynamicFieldEntry
}

func (c *fakeClient) GetObject(ctx context.Context, id types.ObjectID) (*chain.Object, error) {
	if err, ok := c.objectErrs[id]; ok {
		return nil, err
	}
	obj, ok := c.objects[id]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return obj, nil
}

func (c *fakeClient) GetDynamicFields(ctx context.Context, parent types.ObjectID, cursor *string, limit int) (*chain.DynamicFieldPage, error) {
	entries, ok := c.tables[parent]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return &chain.DynamicFieldPage{Entries: entries}, nil
}

func (c *fakeClient) GetDynamicFieldObject(ctx context.Context, parent types.ObjectID, name chain.DynamicFieldName) (*chain.Object, error) {
	return nil, chain.ErrNotFound
}

func (c *fakeClient) GetLatestSystemState(ctx context.Context) (*chain.SystemState, error) {
	if c.stateErr != nil {
		return nil, c.stateErr
	}
	return c.state, nil
}

func obj(id types.ObjectID, fields string) *chain.Object {
	return &chain.Object{ID: id, Fields: json.RawMessage(fields)}
}

func poolObject(vaultsID string) *chain.Object {
	return obj("0xpool", `{
		"total_staked": "3000",
		"pending_stake": "50",
		"collected_rewards": "120",
		"last_report_timestamp_ms": "1700000000000",
		"paused": false,
		"vaults": {"fields": {"id": {"id": "`+vaultsID+`"}, "size": "2"}}
	}`)
}

func vaultObject(id types.ObjectID, validator, stakesID string, staked int64) *chain.Object {
	return obj(id, `{
		"name": "`+validator+`",
		"value": {"type": "vault", "fields": {
			"validator_address": "`+validator+`",
			"weight": "100",
			"total_staked": "`+sdkmath.NewInt(staked).String()+`",
			"last_deposit_epoch": "10",
			"epoch_deposit_amount": "0",
			"stakes": {"fields": {"id": {"id": "`+stakesID+`"}, "size": "2"}}
		}}
	}`)
}

func stakeObject(id types.ObjectID, principal int64, activation uint64) *chain.Object {
	return obj(id, `{
		"id": {"id": "`+string(id)+`"},
		"principal": "`+sdkmath.NewInt(principal).String()+`",
		"stake_activation_epoch": "`+sdkmath.NewIntFromUint64(activation).String()+`"
	}`)
}

func systemState() *chain.SystemState {
	return &chain.SystemState{
		Epoch: 12,
		Validators: []chain.ValidatorMeta{
			{Address: "0xval1", VotingPower: 500, StakingPoolID: "0xsp1", ExchangeRatesID: "0xrates1"},
			{Address: "0xval2", VotingPower: 300, StakingPoolID: "0xsp2", ExchangeRatesID: "0xrates2"},
			{Address: "0xval3", VotingPower: 200, StakingPoolID: "0xsp3", ExchangeRatesID: "0xrates3"},
		},
	}
}

func fullGraph() *fakeClient {
	return &fakeClient{
		state: systemState(),
		objects: map[types.ObjectID]*chain.Object{
			"0xpool":   poolObject("0xvaults"),
			"0xvault1": vaultObject("0xvault1", "0xval1", "0xstakes1", 2000),
			"0xvault2": vaultObject("0xvault2", "0xval2", "0xstakes2", 1000),
			"0xstake1": stakeObject("0xstake1", 1500, 9),
			"0xstake2": stakeObject("0xstake2", 500, 7),
			"0xstake3": stakeObject("0xstake3", 1000, 11),
		},
		tables: map[types.ObjectID][]chain.DynamicFieldEntry{
			"0xvaults": {
				{ObjectID: "0xvault1"},
				{ObjectID: "0xvault2"},
			},
			"0xstakes1": {
				{ObjectID: "0xstake1"},
				{ObjectID: "0xstake2"},
			},
			"0xstakes2": {
				{ObjectID: "0xstake3"},
			},
		},
	}
}

func TestBuildFullTree(t *testing.T) {
	asm, err := New(fullGraph(), 50, 4)
	require.NoError(t, err)

	tree, err := asm.Build(context.Background(), "0xpool")
	require.NoError(t, err)
	require.NotNil(t, tree)

	assert.Equal(t, uint64(12), tree.Epoch)
	assert.Equal(t, sdkmath.NewInt(3000), tree.Pool.TotalStaked)
	assert.Equal(t, sdkmath.NewInt(120), tree.Pool.ReportedRewards)
	assert.Zero(t, tree.Skipped)

	// Complete roster: two real vaults plus a synthetic zero vault for 0xval3.
	require.Len(t, tree.Vaults, 3)
	byValidator := make(map[types.Address]types.Vault)
	for _, vault := range tree.Vaults {
		byValidator[vault.Validator] = vault
	}

	val1 := byValidator["0xval1"]
	assert.False(t, val1.Synthetic)
	require.Len(t, val1.Positions, 2)
	// Positions ordered by activation epoch.
	assert.Equal(t, uint64(7), val1.Positions[0].ActivationEpoch)
	assert.Equal(t, uint64(9), val1.Positions[1].ActivationEpoch)

	val3 := byValidator["0xval3"]
	assert.True(t, val3.Synthetic)
	assert.True(t, val3.TotalStaked.IsZero())
	assert.Empty(t, val3.Positions)

	// Vault weights folded back onto the roster records.
	for _, record := range tree.Validators {
		if record.Address == "0xval1" {
			assert.Equal(t, uint64(100), record.Weight)
		}
	}
}

func TestBuildMalformedPoolReturnsEmptyRoster(t *testing.T) {
	client := fullGraph()
	client.objects["0xpool"] = obj("0xpool", `{"total_staked": "0", "pending_stake": "0"}`)

	asm, err := New(client, 50, 4)
	require.NoError(t, err)

	tree, err := asm.Build(context.Background(), "0xpool")
	require.NoError(t, err)
	require.NotNil(t, tree)

	// No vaults table resolvable: new-pool state, full synthetic roster.
	require.Len(t, tree.Vaults, 3)
	for _, vault := range tree.Vaults {
		assert.True(t, vault.Synthetic)
	}
}

func TestBuildPoolFetchFailureIsFatal(t *testing.T) {
	client := fullGraph()
	client.objectErrs = map[types.ObjectID]error{"0xpool": errors.New("rpc unreachable")}

	asm, err := New(client, 50, 4)
	require.NoError(t, err)

	tree, err := asm.Build(context.Background(), "0xpool")
	require.ErrorIs(t, err, ErrPoolUnavailable)
	assert.Nil(t, tree)
}

func TestBuildSystemStateFailureIsFatal(t *testing.T) {
	client := fullGraph()
	client.stateErr = errors.New("rpc unreachable")

	asm, err := New(client, 50, 4)
	require.NoError(t, err)

	_, err = asm.Build(context.Background(), "0xpool")
	require.Error(t, err)
}

func TestBuildSkipsFailedVault(t *testing.T) {
	client := fullGraph()
	client.objectErrs = map[types.ObjectID]error{"0xvault2": errors.New("rpc timeout")}

	asm, err := New(client, 50, 4)
	require.NoError(t, err)

	tree, err := asm.Build(context.Background(), "0xpool")
	require.NoError(t, err)

	assert.Equal(t, 1, tree.Skipped)

	// 0xval2's vault failed to resolve; the roster still shows it, as a
	// synthetic zero entry.
	byValidator := make(map[types.Address]types.Vault)
	for _, vault := range tree.Vaults {
		byValidator[vault.Validator] = vault
	}
	assert.False(t, byValidator["0xval1"].Synthetic)
	assert.True(t, byValidator["0xval2"].Synthetic)
}

func TestBuildSkipsMalformedPosition(t *testing.T) {
	client := fullGraph()
	client.objects["0xstake2"] = obj("0xstake2", `{"garbage": true}`)

	asm, err := New(client, 50, 4)
	require.NoError(t, err)

	tree, err := asm.Build(context.Background(), "0xpool")
	require.NoError(t, err)

	assert.Equal(t, 1, tree.Skipped)

	byValidator := make(map[types.Address]types.Vault)
	for _, vault := range tree.Vaults {
		byValidator[vault.Validator] = vault
	}
	assert.Len(t, byValidator["0xval1"].Positions, 1)
}

func TestBuildVaultForDepartedValidatorKept(t *testing.T) {
	client := fullGraph()
	// Shrink the active set so 0xval2 has left but still holds a vault.
	client.state.Validators = client.state.Validators[:1]

	asm, err := New(client, 50, 4)
	require.NoError(t, err)

	tree, err := asm.Build(context.Background(), "0xpool")
	require.NoError(t, err)

	byValidator := make(map[types.Address]types.Vault)
	for _, vault := range tree.Vaults {
		byValidator[vault.Validator] = vault
	}
	require.Contains(t, byValidator, types.Address("0xval2"))
	assert.False(t, byValidator["0xval2"].Synthetic)
}
