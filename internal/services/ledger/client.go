package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eventpass/monitoring"
	"eventpass/utils"
)

const txStatusCommitted = "committed"

// Client reads payment facts from a ledger node over JSON-RPC. Verification
// is inherently retryable: every RPC failure, malformed response or
// not-yet-committed transaction collapses to "not verified" instead of an
// error, so callers can simply try again later.
type Client struct {
	hc     *http.Client
	cb     *utils.CircuitBreaker
	rpcURL string
	hrp    string
}

func NewClient(rpcURL, hrp string) *Client {
	return &Client{
		hc:     &http.Client{Timeout: 15 * time.Second},
		cb:     utils.NewCircuitBreaker("ledger-rpc"),
		rpcURL: strings.TrimSpace(rpcURL),
		hrp:    hrp,
	}
}

// ResolveRecipientCondition decodes a payout address into the canonical
// locking condition that committed outputs are matched against.
func (c *Client) ResolveRecipientCondition(address string) (LockScript, error) {
	return ParseAddress(address, c.hrp)
}

// VerifyPayment reports whether txHash is committed on the ledger and pays
// at least minAmount base units to an output locked by recipient. The match
// on the locking condition is structural equality on every field.
func (c *Client) VerifyPayment(ctx context.Context, txHash string, recipient LockScript, minAmount int64) bool {
	if c.rpcURL == "" || minAmount < 0 {
		return false
	}

	tx, err := c.getTransaction(ctx, txHash)
	if err != nil {
		slog.Warn("ledger verification failed", "tx_hash", txHash, "error", err)
		return false
	}
	if tx == nil || tx.statusValue() != txStatusCommitted || tx.Transaction == nil {
		return false
	}

	for _, out := range tx.Transaction.Outputs {
		if out.Lock == nil {
			continue
		}
		if !normalizeScript(*out.Lock).Equal(recipient) {
			continue
		}
		capacity, ok := parseCapacity(out.Capacity)
		if !ok {
			continue
		}
		if capacity >= uint64(minAmount) {
			return true
		}
	}
	return false
}

type rpcOutput struct {
	Capacity string     `json:"capacity"`
	Lock     *rpcScript `json:"lock"`
}

type rpcTransactionBody struct {
	Outputs []rpcOutput `json:"outputs"`
}

type rpcTxStatus struct {
	Status string `json:"status"`
}

type getTransactionResult struct {
	TxStatus      *rpcTxStatus        `json:"tx_status"`
	TxStatusCamel *rpcTxStatus        `json:"txStatus"`
	Transaction   *rpcTransactionBody `json:"transaction"`
}

func (r *getTransactionResult) statusValue() string {
	if r.TxStatus != nil {
		return strings.ToLower(r.TxStatus.Status)
	}
	if r.TxStatusCamel != nil {
		return strings.ToLower(r.TxStatusCamel.Status)
	}
	return ""
}

// getTransaction performs the get_transaction JSON-RPC call. A nil result
// with nil error means the node does not know the transaction.
func (c *Client) getTransaction(ctx context.Context, txHash string) (*getTransactionResult, error) {
	hash := strings.TrimSpace(txHash)
	if !strings.HasPrefix(hash, "0x") {
		hash = "0x" + hash
	}

	started := time.Now()
	result, err := c.cb.Execute(ctx, func() (any, error) {
		return c.doRPC(ctx, "get_transaction", []any{hash})
	})
	monitoring.TrackLedgerRPC(time.Since(started))
	if err != nil {
		return nil, err
	}

	raw := result.(json.RawMessage)
	if string(raw) == "null" {
		return nil, nil
	}
	var tx getTransactionResult
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("getTransaction: json.Unmarshal: %w", err)
	}
	return &tx, nil
}

func (c *Client) doRPC(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(map[string]any{
		"id":      1,
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("doRPC: json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("doRPC: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doRPC: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doRPC: status %d", resp.StatusCode)
	}

	var reply struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("doRPC: json.Decode: %w", err)
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("doRPC: rpc error %d: %s", reply.Error.Code, reply.Error.Message)
	}
	if reply.Result == nil {
		return json.RawMessage("null"), nil
	}
	return reply.Result, nil
}
