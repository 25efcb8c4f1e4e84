package sui

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func rpcServer(t *testing.T, handle func(call recordedCall) (any, *RPCError)) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call recordedCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		calls = append(calls, call)
		result, rpcErr := handle(call)
		resp := map[string]any{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestQueryEvents_DecodesPage(t *testing.T) {
	srv, calls := rpcServer(t, func(call recordedCall) (any, *RPCError) {
		return map[string]any{
			"data": []map[string]any{{
				"id":          map[string]string{"txDigest": "D1", "eventSeq": "0"},
				"sender":      "0xabc",
				"type":        "0x1::prediction_market::BetPlaced",
				"parsedJson":  map[string]any{"bet_id": "7"},
				"timestampMs": "1700000000000",
			}},
			"nextCursor":  map[string]string{"txDigest": "D1", "eventSeq": "0"},
			"hasNextPage": true,
		}, nil
	})

	client := NewClient(srv.Client(), srv.URL, nil)
	page, err := client.QueryEvents(context.Background(), EventFilter{MoveEventType: "0x1::prediction_market::BetPlaced"}, &EventID{TxDigest: "D0", EventSeq: "3"}, 50, false)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, uint64(1700000000000), uint64(page.Data[0].TimestampMs))
	assert.True(t, page.HasNextPage)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "D1", page.NextCursor.TxDigest)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "suix_queryEvents", call.Method)
	require.Len(t, call.Params, 4)
	assert.JSONEq(t, `{"txDigest":"D0","eventSeq":"3"}`, string(call.Params[1]))
	assert.Equal(t, "false", string(call.Params[3]))
}

func TestQueryEvents_PrunedCursor(t *testing.T) {
	srv, _ := rpcServer(t, func(call recordedCall) (any, *RPCError) {
		return nil, &RPCError{Code: -32602, Message: "Could not find the referenced transaction [TransactionDigest(D0)]."}
	})
	client := NewClient(srv.Client(), srv.URL, nil)
	_, err := client.QueryEvents(context.Background(), EventFilter{MoveEventType: "x::y::Z"}, &EventID{TxDigest: "D0", EventSeq: "0"}, 10, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCursorPruned))
}

func TestQueryEvents_OtherRPCError(t *testing.T) {
	srv, _ := rpcServer(t, func(call recordedCall) (any, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: "overloaded"}
	})
	client := NewClient(srv.Client(), srv.URL, nil)
	_, err := client.QueryEvents(context.Background(), EventFilter{MoveEventType: "x::y::Z"}, nil, 10, false)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCursorPruned))
	var rpcErr *RPCError
	assert.True(t, errors.As(err, &rpcErr))
}

func TestGetObject_Fields(t *testing.T) {
	srv, _ := rpcServer(t, func(call recordedCall) (any, *RPCError) {
		return map[string]any{
			"data": map[string]any{
				"objectId": "0xm",
				"content": map[string]any{
					"dataType": "moveObject",
					"fields":   map[string]any{"market_id": "12"},
				},
			},
		}, nil
	})
	client := NewClient(srv.Client(), srv.URL, nil)
	obj, err := client.GetObject(context.Background(), "0xm")
	require.NoError(t, err)
	require.NotNil(t, obj.Content)
	assert.Equal(t, "12", obj.Content.Fields["market_id"])
}

func TestTxSender_SubmitMoveCall(t *testing.T) {
	txBytes := []byte("unsigned-tx")
	signer := NewSigner(ed25519.NewKeyFromSeed(testSeed()))
	srv, calls := rpcServer(t, func(call recordedCall) (any, *RPCError) {
		switch call.Method {
		case "unsafe_moveCall":
			return map[string]string{"txBytes": base64.StdEncoding.EncodeToString(txBytes)}, nil
		case "sui_executeTransactionBlock":
			return map[string]any{
				"digest":  "TX1",
				"effects": map[string]any{"status": map[string]string{"status": "success"}},
			}, nil
		}
		return nil, &RPCError{Code: -1, Message: "unexpected"}
	})

	sender := &TxSender{Client: NewClient(srv.Client(), srv.URL, nil), Signer: signer, GasBudget: 1000}
	resp, err := sender.SubmitMoveCall(context.Background(), MoveCallRequest{
		PackageID:     "0xpkg",
		Module:        "prediction_market",
		Function:      "resolve_market",
		TypeArguments: []string{"0x2::sui::SUI"},
		Arguments:     []any{"0xmarket", true},
	})
	require.NoError(t, err)
	assert.Equal(t, "TX1", resp.Digest)

	require.Len(t, *calls, 2)
	build := (*calls)[0]
	assert.Equal(t, `"`+signer.Address()+`"`, string(build.Params[0]))
	assert.Equal(t, `"1000"`, string(build.Params[7]))

	exec := (*calls)[1]
	assert.Equal(t, `"`+base64.StdEncoding.EncodeToString(txBytes)+`"`, string(exec.Params[0]))
}

func TestTxSender_FailedEffects(t *testing.T) {
	srv, _ := rpcServer(t, func(call recordedCall) (any, *RPCError) {
		if call.Method == "unsafe_moveCall" {
			return map[string]string{"txBytes": base64.StdEncoding.EncodeToString([]byte("x"))}, nil
		}
		return map[string]any{
			"digest":  "TX2",
			"effects": map[string]any{"status": map[string]string{"status": "failure", "error": "MoveAbort"}},
		}, nil
	})
	sender := &TxSender{Client: NewClient(srv.Client(), srv.URL, nil), Signer: NewSigner(ed25519.NewKeyFromSeed(testSeed()))}
	_, err := sender.SubmitMoveCall(context.Background(), MoveCallRequest{PackageID: "0x1", Module: "m", Function: "f"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MoveAbort")
}
