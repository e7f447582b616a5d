package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RPCConfig configures an RPCGateway.
type RPCConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration // per call
	ReceiptTimeout time.Duration // how long Submit waits for inclusion
	PollInterval   time.Duration
	HTTPClient     HTTPDoer
}

// RPCGateway talks JSON-RPC 2.0 to a remote ledger node.
type RPCGateway struct {
	url            string
	apiKey         string
	client         HTTPDoer
	timeout        time.Duration
	receiptTimeout time.Duration
	pollInterval   time.Duration
	nextID         atomic.Uint64
}

func NewRPCGateway(cfg RPCConfig) *RPCGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RPCGateway{
		url:            cfg.URL,
		apiKey:         cfg.APIKey,
		client:         client,
		timeout:        cfg.Timeout,
		receiptTimeout: cfg.ReceiptTimeout,
		pollInterval:   cfg.PollInterval,
	}
}

// Submit sends the submission and polls for its receipt until it is
// committed or the receipt timeout elapses.
func (g *RPCGateway) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	var receipt Receipt
	if err := g.call(ctx, "submit", MethodSubmit, []any{sub}, &receipt); err != nil {
		return nil, err
	}
	if receipt.TxRef == "" {
		return nil, NewError(CategoryBadResponse, "submit", "missing transaction reference", nil)
	}
	if receipt.Committed {
		return &receipt, nil
	}

	deadline := time.NewTimer(g.receiptTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, NewError(CategoryUnavailable, "submit", "cancelled while awaiting inclusion", ctx.Err())
		case <-deadline.C:
			return &Receipt{TxRef: receipt.TxRef, Committed: false}, nil
		case <-ticker.C:
			var polled Receipt
			err := g.call(ctx, "receipt", MethodGetReceipt, []any{receipt.TxRef}, &polled)
			switch {
			case err == nil && polled.Committed:
				return &polled, nil
			case err == nil, IsNotFound(err), IsRetryable(err):
				// not yet included, or a transient poll failure
			default:
				return nil, err
			}
		}
	}
}

func (g *RPCGateway) QueryByFingerprint(ctx context.Context, holderID, fingerprint string) (*OnChainRecord, error) {
	var rec OnChainRecord
	if err := g.call(ctx, "query", MethodGetCertificate, []any{holderID, fingerprint}, &rec); err != nil {
		return nil, err
	}
	if rec.Fingerprint == "" {
		return nil, NewError(CategoryNotFound, "query", "fingerprint not anchored", nil)
	}
	return &rec, nil
}

// Ping issues a receipt lookup for an unknown reference; any well-formed
// answer, including not-found, proves the node is reachable.
func (g *RPCGateway) Ping(ctx context.Context) error {
	var r Receipt
	err := g.call(ctx, "ping", MethodGetReceipt, []any{"0x0"}, &r)
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func (g *RPCGateway) call(ctx context.Context, op, method string, params []any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return NewError(CategoryRejected, op, "failed to marshal params", err)
		}
		rawParams = append(rawParams, raw)
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      g.nextID.Add(1),
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return NewError(CategoryRejected, op, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return NewError(CategoryUnavailable, op, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewError(CategoryUnavailable, op, "request timeout", err)
		}
		return NewError(CategoryUnavailable, op, "failed to execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCBodySize))
	if err != nil {
		return NewError(CategoryUnavailable, op, "failed to read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return NewError(CategoryRejected, op, fmt.Sprintf("authentication failed: %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return NewError(CategoryUnavailable, op, fmt.Sprintf("ledger node unavailable: %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return NewError(CategoryBadResponse, op, fmt.Sprintf("unexpected status: %d", resp.StatusCode), nil)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return NewError(CategoryBadResponse, op, "failed to decode response", err)
	}
	if rpcResp.Error != nil {
		return classifyRPCError(op, rpcResp.Error)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return NewError(CategoryNotFound, op, "empty result", nil)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return NewError(CategoryBadResponse, op, "failed to decode result", err)
	}
	return nil
}

func classifyRPCError(op string, e *rpcError) error {
	switch e.Code {
	case rpcCodeNotFound:
		return NewError(CategoryNotFound, op, e.Message, nil)
	case rpcCodeRejected, rpcCodeInvalidParams:
		return NewError(CategoryRejected, op, e.Message, nil)
	case rpcCodeMethodNotFound, rpcCodeInvalidRequest, rpcCodeParse:
		return NewError(CategoryBadResponse, op, e.Message, nil)
	default:
		return NewError(CategoryUnavailable, op, e.Message, nil)
	}
}

var (
	_ Gateway = (*RPCGateway)(nil)
	_ Pinger  = (*RPCGateway)(nil)
)
