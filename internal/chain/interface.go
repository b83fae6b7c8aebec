/*

This file contains the read-only client contract for the remote object graph and the
wire-level shapes shared by its implementations.

The engine treats the node purely through this interface: fetch an object by ID, page
through a table's dynamic fields, point-look-up a dynamic field by key, and fetch the
latest system state. All state the engine works with is either behind this interface
(remote) or local to one computation.

*/

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/stakesight/stakesight/internal/types"
)

// ErrNotFound is returned when the node reports the requested object or
// dynamic field does not exist.
var ErrNotFound = errors.New("object not found")

// Object is a fetched on-chain object with its raw field payload. Callers
// decode Fields into their own shapes; a decode failure on one object is a
// malformed-object condition scoped to that object alone.
type Object struct {
	ID      types.ObjectID  `json:"objectId"`
	Type    string          `json:"type"`
	Version uint64          `json:"version,string"`
	Fields  json.RawMessage `json:"fields"`
}

// DynamicFieldName is the typed key of one dynamic-field table entry.
type DynamicFieldName struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// U64Key builds the dynamic-field name for an epoch-keyed table entry.
func U64Key(epoch uint64) DynamicFieldName {
	value, _ := json.Marshal(strconv.FormatUint(epoch, 10))
	return DynamicFieldName{Type: "u64", Value: value}
}

// DynamicFieldEntry is one child listed by a paginated table scan. The entry
// carries the key and the ID of the wrapping field object; the value itself is
// fetched separately.
type DynamicFieldEntry struct {
	ObjectID types.ObjectID   `json:"objectId"`
	Name     DynamicFieldName `json:"name"`
}

// DynamicFieldPage is one page of a table scan.
type DynamicFieldPage struct {
	Entries    []DynamicFieldEntry `json:"data"`
	NextCursor *string             `json:"nextCursor"`
	HasMore    bool                `json:"hasMore"`
}

// ValidatorMeta is the per-validator slice of the system state that the engine
// needs: identity, weighting, and the IDs of its staking sub-pool and its
// epoch-keyed exchange-rate table.
type ValidatorMeta struct {
	Address         types.Address  `json:"suiAddress"`
	VotingPower     uint64         `json:"votingPower,string"`
	StakingPoolID   types.ObjectID `json:"stakingPoolId"`
	ExchangeRatesID types.ObjectID `json:"exchangeRatesId"`
}

// SystemState is the latest validator-set state.
type SystemState struct {
	Epoch      uint64          `json:"epoch,string"`
	Validators []ValidatorMeta `json:"activeValidators"`
}

// ObjectClient is the read-only access contract to the remote object graph.
// Implementations own transport concerns (retries, TLS, throttling); the
// engine owns sequencing and failure containment.
type ObjectClient interface {
	// GetObject fetches one object by ID. Returns ErrNotFound when the object
	// does not exist or has been deleted.
	GetObject(ctx context.Context, id types.ObjectID) (*Object, error)

	// GetDynamicFields lists one page of a table's children starting at cursor
	// (nil for the first page).
	GetDynamicFields(ctx context.Context, parent types.ObjectID, cursor *string, limit int) (*DynamicFieldPage, error)

	// GetDynamicFieldObject point-looks-up a table entry by its typed key,
	// avoiding a full table drain. Returns ErrNotFound for absent keys.
	GetDynamicFieldObject(ctx context.Context, parent types.ObjectID, name DynamicFieldName) (*Object, error)

	// GetLatestSystemState fetches the current epoch and active validator set.
	GetLatestSystemState(ctx context.Context) (*SystemState, error)
}
