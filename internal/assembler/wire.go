/*

This file contains the wire-level field shapes the assembler decodes fetched objects
into. Amount fields arrive as decimal strings and decode straight into sdkmath.Int;
table references arrive as {fields: {id: {id: ...}, size: ...}} envelopes.

*/

package assembler

import (
	"encoding/json"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/stakesight/stakesight/internal/types"
)

var ErrMalformedObject = errors.New("object fields have unexpected shape")

// tableRef is the on-chain handle of a nested dynamic-field table.
type tableRef struct {
	Fields struct {
		ID struct {
			ID types.ObjectID `json:"id"`
		} `json:"id"`
		Size uint64 `json:"size,string"`
	} `json:"fields"`
}

func (t tableRef) id() types.ObjectID {
	return t.Fields.ID.ID
}

// poolFields is the pool root object payload.
type poolFields struct {
	TotalStaked           sdkmath.Int `json:"total_staked"`
	PendingStake          sdkmath.Int `json:"pending_stake"`
	CollectedRewards      sdkmath.Int `json:"collected_rewards"`
	LastReportTimestampMS uint64      `json:"last_report_timestamp_ms,string"`
	Paused                bool        `json:"paused"`
	Vaults                tableRef    `json:"vaults"`
}

// fieldWrapper is the envelope a dynamic-field value object wraps its payload
// in: the table key under "name", the stored value under "value".
type fieldWrapper struct {
	Name  json.RawMessage `json:"name"`
	Value struct {
		Type   string          `json:"type"`
		Fields json.RawMessage `json:"fields"`
	} `json:"value"`
}

// unwrapField decodes a dynamic-field value object down to its payload fields.
func unwrapField(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, ErrMalformedObject
	}
	var wrapper fieldWrapper
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	if len(wrapper.Value.Fields) == 0 {
		return nil, ErrMalformedObject
	}
	return wrapper.Value.Fields, nil
}

// vaultFields is the per-validator vault payload stored in the vaults table.
type vaultFields struct {
	Validator          types.Address `json:"validator_address"`
	Weight             uint64        `json:"weight,string"`
	TotalStaked        sdkmath.Int   `json:"total_staked"`
	LastDepositEpoch   uint64        `json:"last_deposit_epoch,string"`
	EpochDepositAmount sdkmath.Int   `json:"epoch_deposit_amount"`
	Stakes             tableRef      `json:"stakes"`
}

// stakeFields is one stake position object payload.
type stakeFields struct {
	ID struct {
		ID types.ObjectID `json:"id"`
	} `json:"id"`
	Principal            sdkmath.Int `json:"principal"`
	StakeActivationEpoch uint64      `json:"stake_activation_epoch,string"`
}
