package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/types"
)

type stubClient struct {
	state    *chain.SystemState
	objects  map[types.ObjectID]*chain.Object
	tables   map[types.ObjectID][]chain.DynamicFieldEntry
	rates    map[string]*chain.Object
	poolErr  error
	stateErr error
}

func (c *stubClient) GetObject(ctx context.Context, id types.ObjectID) (*chain.Object, error) {
	if id == "0xpool" && c.poolErr != nil {
		return nil, c.poolErr
	}
	obj, ok := c.objects[id]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return obj, nil
}

func (c *stubClient) GetDynamicFields(ctx context.Context, parent types.ObjectID, cursor *string, limit int) (*chain.DynamicFieldPage, error) {
	return &chain.DynamicFieldPage{Entries: c.tables[parent]}, nil
}

func (c *stubClient) GetDynamicFieldObject(ctx context.Context, parent types.ObjectID, name chain.DynamicFieldName) (*chain.Object, error) {
	var epoch string
	_ = json.Unmarshal(name.Value, &epoch)
	if obj, ok := c.rates[string(parent)+":"+epoch]; ok {
		return obj, nil
	}
	return nil, chain.ErrNotFound
}

func (c *stubClient) GetLatestSystemState(ctx context.Context) (*chain.SystemState, error) {
	if c.stateErr != nil {
		return nil, c.stateErr
	}
	return c.state, nil
}

type captureSink struct {
	saved []*types.PoolSnapshot
}

func (s *captureSink) SaveSnapshot(snapshot *types.PoolSnapshot) error {
	s.saved = append(s.saved, snapshot)
	return nil
}

func newStub() *stubClient {
	return &stubClient{
		state: &chain.SystemState{
			Epoch: 12,
			Validators: []chain.ValidatorMeta{
				{Address: "0xval1", StakingPoolID: "0xsp1", ExchangeRatesID: "0xrates1"},
			},
		},
		objects: map[types.ObjectID]*chain.Object{
			"0xpool": {ID: "0xpool", Fields: json.RawMessage(`{
				"total_staked": "1000000",
				"pending_stake": "0",
				"collected_rewards": "40000",
				"paused": false,
				"vaults": {"fields": {"id": {"id": "0xvaults"}, "size": "1"}}
			}`)},
			"0xvault1": {ID: "0xvault1", Fields: json.RawMessage(`{
				"name": "0xval1",
				"value": {"type": "vault", "fields": {
					"validator_address": "0xval1",
					"weight": "100",
					"total_staked": "1000000",
					"last_deposit_epoch": "5",
					"epoch_deposit_amount": "0",
					"stakes": {"fields": {"id": {"id": "0xstakes1"}, "size": "1"}}
				}}
			}`)},
			"0xstake1": {ID: "0xstake1", Fields: json.RawMessage(`{
				"id": {"id": "0xstake1"},
				"principal": "1000000",
				"stake_activation_epoch": "5"
			}`)},
		},
		tables: map[types.ObjectID][]chain.DynamicFieldEntry{
			"0xvaults":  {{ObjectID: "0xvault1"}},
			"0xstakes1": {{ObjectID: "0xstake1"}},
		},
		rates: map[string]*chain.Object{
			"0xrates1:12": {ID: "0xrates1", Fields: json.RawMessage(`{"sui_amount": "110", "pool_token_amount": "100"}`)},
			"0xrates1:5":  {ID: "0xrates1", Fields: json.RawMessage(`{"sui_amount": "100", "pool_token_amount": "100"}`)},
		},
	}
}

func newEngine(t *testing.T, client chain.ObjectClient, sink SnapshotSink) *Engine {
	t.Helper()
	eng, err := New(Config{
		Client:              client,
		PoolID:              "0xpool",
		PageSize:            50,
		FetchConcurrency:    4,
		FallbackBPSPerEpoch: 4,
		Sink:                sink,
	})
	require.NoError(t, err)
	return eng
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{PoolID: "0xpool", PageSize: 50, FetchConcurrency: 4})
	require.Error(t, err)

	_, err = New(Config{Client: newStub(), PageSize: 50, FetchConcurrency: 4})
	require.Error(t, err)
}

func TestComputeSnapshotEndToEnd(t *testing.T) {
	sink := &captureSink{}
	eng := newEngine(t, newStub(), sink)

	snapshot, err := eng.ComputeSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.NotEmpty(t, snapshot.RunID)
	assert.Equal(t, uint64(12), snapshot.Epoch)
	assert.Equal(t, "1000000", snapshot.TotalPrincipal.String())
	assert.Equal(t, "100000", snapshot.TotalRewards.String())

	// Reported 40_000 against computed 100_000: an update is due.
	assert.True(t, snapshot.Reconciliation.NeedsUpdate)
	assert.Equal(t, "60000", snapshot.Reconciliation.Delta.String())

	// The sink received the same snapshot.
	require.Len(t, sink.saved, 1)
	assert.Equal(t, snapshot.RunID, sink.saved[0].RunID)
}

func TestComputeSnapshotPoolUnavailableReturnsNoData(t *testing.T) {
	client := newStub()
	client.poolErr = errors.New("rpc unreachable")

	eng := newEngine(t, client, nil)
	snapshot, err := eng.ComputeSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestComputeSnapshotSystemStateFailureIsError(t *testing.T) {
	client := newStub()
	client.stateErr = errors.New("rpc unreachable")

	eng := newEngine(t, client, nil)
	_, err := eng.ComputeSnapshot(context.Background())
	require.Error(t, err)
}

func TestComputeSnapshotFreshRunIDs(t *testing.T) {
	eng := newEngine(t, newStub(), nil)

	first, err := eng.ComputeSnapshot(context.Background())
	require.NoError(t, err)
	second, err := eng.ComputeSnapshot(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
}
