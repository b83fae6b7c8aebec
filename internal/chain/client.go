/*

This file contains the JSON-RPC 2.0 implementation of the ObjectClient contract.

Every request passes through a client-side rate limiter so that a full aggregation
fan-out stays inside the request budget of a shared public endpoint. The client does
no retrying of its own; retry policy belongs to the layer driving the pipeline.

*/

package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/stakesight/stakesight/internal/logger"
	"github.com/stakesight/stakesight/internal/types"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	methodGetObject             = "sui_getObject"
	methodGetDynamicFields      = "suix_getDynamicFields"
	methodGetDynamicFieldObject = "suix_getDynamicFieldObject"
	methodGetLatestSystemState  = "suix_getLatestSuiSystemState"

	requestTimeout = 30 * time.Second
)

// Client is the production ObjectClient speaking JSON-RPC 2.0 over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	reqID    atomic.Int64
	logger   zerolog.Logger
}

var _ ObjectClient = (*Client)(nil)

// NewClient constructs a Client for the given node endpoint. ratePerSecond
// bounds outbound requests; zero or negative disables throttling.
func NewClient(endpoint string, ratePerSecond float64) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("node endpoint cannot be empty")
	}

	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: requestTimeout},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.GetForComponent("rpc_client"),
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		c.logger.Debug().Str("method", method).Int("code", rpcResp.Error.Code).Msg("Node returned RPC error")
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%s: empty result", method)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// objectEnvelope is the node's object-response wrapper. Absent objects come
// back as an error payload instead of data.
type objectEnvelope struct {
	Data *struct {
		ObjectID types.ObjectID `json:"objectId"`
		Version  uint64         `json:"version,string"`
		Content  *struct {
			DataType string          `json:"dataType"`
			Type     string          `json:"type"`
			Fields   json.RawMessage `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (env *objectEnvelope) toObject() (*Object, error) {
	if env.Error != nil || env.Data == nil {
		return nil, ErrNotFound
	}
	obj := &Object{
		ID:      env.Data.ObjectID,
		Version: env.Data.Version,
	}
	if env.Data.Content != nil {
		obj.Type = env.Data.Content.Type
		obj.Fields = env.Data.Content.Fields
	}
	return obj, nil
}

// GetObject implements ObjectClient.
func (c *Client) GetObject(ctx context.Context, id types.ObjectID) (*Object, error) {
	var env objectEnvelope
	params := []any{id, map[string]bool{"showContent": true}}
	if err := c.call(ctx, methodGetObject, params, &env); err != nil {
		return nil, err
	}
	return env.toObject()
}

// GetDynamicFields implements ObjectClient.
func (c *Client) GetDynamicFields(ctx context.Context, parent types.ObjectID, cursor *string, limit int) (*DynamicFieldPage, error) {
	var page DynamicFieldPage
	params := []any{parent, cursor, limit}
	if err := c.call(ctx, methodGetDynamicFields, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetDynamicFieldObject implements ObjectClient.
func (c *Client) GetDynamicFieldObject(ctx context.Context, parent types.ObjectID, name DynamicFieldName) (*Object, error) {
	var env objectEnvelope
	params := []any{parent, name}
	if err := c.call(ctx, methodGetDynamicFieldObject, params, &env); err != nil {
		return nil, err
	}
	return env.toObject()
}

// GetLatestSystemState implements ObjectClient.
func (c *Client) GetLatestSystemState(ctx context.Context) (*SystemState, error) {
	var state SystemState
	if err := c.call(ctx, methodGetLatestSystemState, []any{}, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
