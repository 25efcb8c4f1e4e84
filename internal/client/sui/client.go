package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ErrCursorPruned is returned by QueryEvents when the node no longer knows the cursor position.
var ErrCursorPruned = errors.New("sui: cursor references unknown transaction")

const prunedCursorMessage = "Could not find the referenced transaction"

type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	nextID     atomic.Uint64
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message)
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func NewClient(httpClient *http.Client, endpoint string, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = "https://fullnode.testnet.sui.io:443"
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: httpClient,
		limiter:    limiter,
	}
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// QueryEvents returns up to limit events matching filter strictly after cursor.
// A nil cursor starts from genesis.
func (c *Client) QueryEvents(ctx context.Context, filter EventFilter, cursor *EventID, limit int, descending bool) (EventPage, error) {
	if filter.MoveEventType == "" {
		return EventPage{}, fmt.Errorf("event type is required")
	}
	var cursorParam any
	if cursor != nil {
		cursorParam = cursor
	}
	var limitParam any
	if limit > 0 {
		limitParam = limit
	}
	var page EventPage
	err := c.call(ctx, "suix_queryEvents", []any{filter, cursorParam, limitParam, descending}, &page)
	if err != nil {
		if strings.Contains(err.Error(), prunedCursorMessage) {
			return EventPage{}, fmt.Errorf("%w: %v", ErrCursorPruned, err)
		}
		return EventPage{}, err
	}
	return page, nil
}

func (c *Client) GetObject(ctx context.Context, id string) (*ObjectData, error) {
	if id == "" {
		return nil, fmt.Errorf("object id is required")
	}
	options := map[string]bool{"showContent": true, "showType": true}
	var resp objectResponse
	if err := c.call(ctx, "sui_getObject", []any{id, options}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		if len(resp.Error) > 0 {
			return nil, fmt.Errorf("object %s: %s", id, string(resp.Error))
		}
		return nil, fmt.Errorf("object %s not found", id)
	}
	return resp.Data, nil
}

// MoveCall asks the node to build an unsigned transaction for a single Move call.
func (c *Client) MoveCall(ctx context.Context, sender string, req MoveCallRequest) ([]byte, error) {
	if req.PackageID == "" || req.Module == "" || req.Function == "" {
		return nil, fmt.Errorf("move call target is incomplete: %s", req.Target())
	}
	typeArgs := req.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := req.Arguments
	if args == nil {
		args = []any{}
	}
	params := []any{
		sender,
		req.PackageID,
		req.Module,
		req.Function,
		typeArgs,
		args,
		nil,
		strconv.FormatUint(req.GasBudget, 10),
	}
	var result moveCallResult
	if err := c.call(ctx, "unsafe_moveCall", params, &result); err != nil {
		return nil, err
	}
	if result.TxBytes == "" {
		return nil, fmt.Errorf("move call %s returned no tx bytes", req.Target())
	}
	return decodeBase64(result.TxBytes)
}

func (c *Client) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (*TransactionResponse, error) {
	options := map[string]bool{
		"showEffects":       true,
		"showEvents":        true,
		"showObjectChanges": true,
	}
	params := []any{encodeBase64(txBytes), signatures, options, "WaitForLocalExecution"}
	var resp TransactionResponse
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TxSender builds, signs and executes Move calls as one account.
type TxSender struct {
	Client    *Client
	Signer    *Signer
	GasBudget uint64
}

func (s *TxSender) SubmitMoveCall(ctx context.Context, req MoveCallRequest) (*TransactionResponse, error) {
	if s == nil || s.Client == nil || s.Signer == nil {
		return nil, fmt.Errorf("transaction sender is not configured")
	}
	if req.GasBudget == 0 {
		req.GasBudget = s.GasBudget
	}
	txBytes, err := s.Client.MoveCall(ctx, s.Signer.Address(), req)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", req.Target(), err)
	}
	resp, err := s.Client.ExecuteTransaction(ctx, txBytes, []string{s.Signer.Sign(txBytes)})
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", req.Target(), err)
	}
	if !resp.Succeeded() {
		reason := "missing effects"
		if resp.Effects != nil {
			reason = resp.Effects.Status.Error
		}
		return resp, fmt.Errorf("transaction %s failed: %s", resp.Digest, reason)
	}
	return resp, nil
}
