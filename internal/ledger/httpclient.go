package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the chain-signer gateway sidecar, which holds the
// authority key and submits the actual program instructions. The gateway
// deduplicates on the Idempotency-Key header.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type balanceResponse struct {
	Amount int64 `json:"amount"`
}

type transferRequest struct {
	Wallet   string `json:"wallet"`
	Amount   int64  `json:"amount"`
	GameMode string `json:"gameMode"`
	GameID   string `json:"gameId,omitempty"`
}

type transferResponse struct {
	TxRef string `json:"txRef"`
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) ReadBalance(ctx context.Context, wallet string) (int64, error) {
	var resp balanceResponse

	err := c.get(ctx, "/v1/balance/"+wallet, &resp)
	if err != nil {
		return 0, err
	}

	return resp.Amount, nil
}

func (c *HTTPClient) ReadEscrowTotal(ctx context.Context) (int64, error) {
	var resp balanceResponse

	err := c.get(ctx, "/v1/escrow/total", &resp)
	if err != nil {
		return 0, err
	}

	return resp.Amount, nil
}

func (c *HTTPClient) LockToEscrow(ctx context.Context, wallet string, amount int64, mode, idempotencyKey string) (string, error) {
	return c.transfer(ctx, "/v1/escrow/lock", transferRequest{
		Wallet:   wallet,
		Amount:   amount,
		GameMode: mode,
	}, idempotencyKey)
}

func (c *HTTPClient) CreditFromEscrow(ctx context.Context, wallet string, amount int64, mode, gameID, idempotencyKey string) (string, error) {
	return c.transfer(ctx, "/v1/escrow/credit", transferRequest{
		Wallet:   wallet,
		Amount:   amount,
		GameMode: mode,
		GameID:   gameID,
	}, idempotencyKey)
}

func (c *HTTPClient) transfer(ctx context.Context, path string, body transferRequest, idempotencyKey string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build transfer request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	httpResp, err := c.client.Do(req)
	if err != nil {
		return "", Transient(err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusPaymentRequired:
		return "", ErrInsufficientFunds
	case httpResp.StatusCode >= 500:
		return "", Transient(fmt.Errorf("gateway status %d", httpResp.StatusCode))
	case httpResp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("gateway status %d", httpResp.StatusCode)
	}

	var resp transferResponse

	err = json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&resp)
	if err != nil {
		// The transfer may have landed; only the response was lost.
		return "", Transient(fmt.Errorf("decode transfer response: %w", err))
	}

	if resp.TxRef == "" {
		return "", fmt.Errorf("gateway returned no transaction reference: %s", resp.Error)
	}

	return resp.TxRef, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return Transient(fmt.Errorf("gateway status %d", httpResp.StatusCode))
	}

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway status %d", httpResp.StatusCode)
	}

	err = json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(dst)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
