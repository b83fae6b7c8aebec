package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer replies to each JSON-RPC method with a canned result.
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc": "2.0", "id": 1, "result": ` + result + `}`))
	}))
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(server.URL, 0)
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsEmptyEndpoint(t *testing.T) {
	_, err := NewClient("  ", 10)
	require.Error(t, err)
}

func TestGetObjectDecodesEnvelope(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"sui_getObject": `{
			"data": {
				"objectId": "0xabc",
				"version": "42",
				"content": {
					"dataType": "moveObject",
					"type": "0x3::staking_pool::StakedSui",
					"fields": {"principal": "1000"}
				}
			}
		}`,
	})
	defer server.Close()

	obj, err := newTestClient(t, server).GetObject(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", string(obj.ID))
	assert.Equal(t, uint64(42), obj.Version)
	assert.Equal(t, "0x3::staking_pool::StakedSui", obj.Type)
	assert.JSONEq(t, `{"principal": "1000"}`, string(obj.Fields))
}

func TestGetObjectNotFound(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"sui_getObject": `{"error": {"code": "notExists"}}`,
	})
	defer server.Close()

	_, err := newTestClient(t, server).GetObject(context.Background(), "0xmissing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetDynamicFieldsDecodesPage(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"suix_getDynamicFields": `{
			"data": [
				{"objectId": "0x1", "name": {"type": "address", "value": "0xval1"}},
				{"objectId": "0x2", "name": {"type": "address", "value": "0xval2"}}
			],
			"nextCursor": "0x2",
			"hasMore": true
		}`,
	})
	defer server.Close()

	page, err := newTestClient(t, server).GetDynamicFields(context.Background(), "0xtable", nil, 50)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "0x1", string(page.Entries[0].ObjectID))
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "0x2", *page.NextCursor)
}

func TestGetDynamicFieldObjectNotFoundKey(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"suix_getDynamicFieldObject": `{"error": {"code": "dynamicFieldNotFound"}}`,
	})
	defer server.Close()

	_, err := newTestClient(t, server).GetDynamicFieldObject(context.Background(), "0xrates", U64Key(7))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetLatestSystemState(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"suix_getLatestSuiSystemState": `{
			"epoch": "560",
			"activeValidators": [
				{
					"suiAddress": "0xval1",
					"votingPower": "500",
					"stakingPoolId": "0xsp1",
					"exchangeRatesId": "0xrates1"
				}
			]
		}`,
	})
	defer server.Close()

	state, err := newTestClient(t, server).GetLatestSystemState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(560), state.Epoch)
	require.Len(t, state.Validators, 1)
	assert.Equal(t, "0xval1", string(state.Validators[0].Address))
	assert.Equal(t, uint64(500), state.Validators[0].VotingPower)
	assert.Equal(t, "0xrates1", string(state.Validators[0].ExchangeRatesID))
}

func TestRPCErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc": "2.0", "id": 1, "error": {"code": -32602, "message": "invalid params"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).GetObject(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestU64Key(t *testing.T) {
	key := U64Key(560)
	assert.Equal(t, "u64", key.Type)
	assert.Equal(t, `"560"`, string(key.Value))
}
