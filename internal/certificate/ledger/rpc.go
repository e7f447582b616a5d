package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// JSON-RPC 2.0 methods exposed by a ledger node.
const (
	MethodSubmit         = "ledger_submitCertificate"
	MethodGetReceipt     = "ledger_getReceipt"
	MethodGetCertificate = "ledger_getCertificate"
)

// JSON-RPC error codes. The -3200x range is implementation-defined.
const (
	rpcCodeParse          = -32700
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
	rpcCodeServer         = -32000
	rpcCodeRejected       = -32003
	rpcCodeNotFound       = -32004
)

const maxRPCBodySize = 1 << 20

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Node is what an RPC handler serves: a gateway that can also resolve
// receipts by transaction reference.
type Node interface {
	Gateway
	ReceiptByTxRef(ctx context.Context, txRef string) (*Receipt, error)
}

// RPCHandler exposes a Node over JSON-RPC 2.0 on HTTP POST.
type RPCHandler struct {
	node   Node
	logger *slog.Logger
}

// NewRPCHandler builds the handler served by the ledger-node command.
func NewRPCHandler(node Node, logger *slog.Logger) *RPCHandler {
	return &RPCHandler{node: node, logger: logger}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rpcRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRPCBodySize)).Decode(&req); err != nil {
		h.write(w, rpcResponse{Error: &rpcError{Code: rpcCodeParse, Message: "parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		h.write(w, rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcCodeInvalidRequest, Message: "invalid request"}})
		return
	}

	result, rpcErr := h.dispatch(r.Context(), req)
	resp := rpcResponse{ID: req.ID, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = &rpcError{Code: rpcCodeServer, Message: "failed to encode result"}
		} else {
			resp.Result = raw
		}
	}
	h.write(w, resp)
}

func (h *RPCHandler) dispatch(ctx context.Context, req rpcRequest) (any, *rpcError) {
	switch req.Method {
	case MethodSubmit:
		var sub Submission
		if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &sub) != nil {
			return nil, &rpcError{Code: rpcCodeInvalidParams, Message: "expected [submission]"}
		}
		receipt, err := h.node.Submit(ctx, sub)
		if err != nil {
			return nil, h.toRPCError(ctx, req.Method, err)
		}
		return receipt, nil

	case MethodGetReceipt:
		var ref string
		if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &ref) != nil {
			return nil, &rpcError{Code: rpcCodeInvalidParams, Message: "expected [txRef]"}
		}
		receipt, err := h.node.ReceiptByTxRef(ctx, ref)
		if err != nil {
			return nil, h.toRPCError(ctx, req.Method, err)
		}
		return receipt, nil

	case MethodGetCertificate:
		var holder, fp string
		if len(req.Params) != 2 ||
			json.Unmarshal(req.Params[0], &holder) != nil ||
			json.Unmarshal(req.Params[1], &fp) != nil {
			return nil, &rpcError{Code: rpcCodeInvalidParams, Message: "expected [holderId, fingerprint]"}
		}
		rec, err := h.node.QueryByFingerprint(ctx, holder, fp)
		if err != nil {
			return nil, h.toRPCError(ctx, req.Method, err)
		}
		return rec, nil
	}
	return nil, &rpcError{Code: rpcCodeMethodNotFound, Message: "method not found"}
}

func (h *RPCHandler) toRPCError(ctx context.Context, method string, err error) *rpcError {
	switch {
	case IsNotFound(err):
		return &rpcError{Code: rpcCodeNotFound, Message: "not found"}
	case IsRejected(err):
		var le *Error
		msg := "rejected"
		if errors.As(err, &le) {
			msg = le.Message
		}
		return &rpcError{Code: rpcCodeRejected, Message: msg}
	}
	h.logger.ErrorContext(ctx, "ledger rpc call failed", "method", method, "error", err)
	return &rpcError{Code: rpcCodeServer, Message: "ledger unavailable"}
}

func (h *RPCHandler) write(w http.ResponseWriter, resp rpcResponse) {
	resp.JSONRPC = "2.0"
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write ledger rpc response", "error", err)
	}
}
