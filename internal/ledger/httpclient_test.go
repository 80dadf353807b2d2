package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_LockToEscrow(t *testing.T) {
	t.Parallel()

	var gotKey string
	var gotBody transferRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/escrow/lock", r.URL.Path)

		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(transferResponse{TxRef: "tx-123"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)

	ref, err := c.LockToEscrow(context.Background(), "wallet-1", 500, "oracle", "op-abc")
	require.NoError(t, err)
	assert.Equal(t, "tx-123", ref)
	assert.Equal(t, "op-abc", gotKey)
	assert.Equal(t, transferRequest{Wallet: "wallet-1", Amount: 500, GameMode: "oracle"}, gotBody)
}

func TestHTTPClient_TransferErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		wantErrIs     error
		wantTransient bool
	}{
		{
			name:      "payment_required_is_insufficient_funds",
			status:    http.StatusPaymentRequired,
			wantErrIs: ErrInsufficientFunds,
		},
		{
			name:          "server_error_is_transient",
			status:        http.StatusInternalServerError,
			wantTransient: true,
		},
		{
			name:          "bad_gateway_is_transient",
			status:        http.StatusBadGateway,
			wantTransient: true,
		},
		{
			name:   "client_error_is_terminal",
			status: http.StatusBadRequest,
		},
		{
			name:          "garbled_response_is_transient",
			status:        http.StatusOK,
			body:          "not json",
			wantTransient: true,
		},
		{
			name:   "missing_tx_ref_is_terminal",
			status: http.StatusOK,
			body:   `{"error":"simulation failed"}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, time.Second)

			_, err := c.CreditFromEscrow(context.Background(), "wallet-1", 500, "oracle", "g1", "op-1")
			require.Error(t, err)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			}
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

func TestHTTPClient_UnreachableGatewayIsTransient(t *testing.T) {
	t.Parallel()

	c := NewHTTPClient("http://127.0.0.1:1", 100*time.Millisecond)

	_, err := c.LockToEscrow(context.Background(), "wallet-1", 500, "oracle", "op-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err), "connection refusal must be retryable")

	_, err = c.ReadBalance(context.Background(), "wallet-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPClient_Reads(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/balance/wallet-1":
			_ = json.NewEncoder(w).Encode(balanceResponse{Amount: 1250})
		case "/v1/escrow/total":
			_ = json.NewEncoder(w).Encode(balanceResponse{Amount: 90000})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)

	balance, err := c.ReadBalance(context.Background(), "wallet-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1250, balance)

	total, err := c.ReadEscrowTotal(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 90000, total)

	_, err = c.ReadBalance(context.Background(), "nobody")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}
