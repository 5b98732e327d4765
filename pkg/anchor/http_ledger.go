package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/FTHTrading/boutique-sub000/pkg/gate"
)

// HTTPLedger talks to a ledger network's submission gateway over JSON.
// Two independent networks are configured in production; each gets its
// own HTTPLedger instance with its own account and signing key.
type HTTPLedger struct {
	name       string
	endpoint   string
	account    string
	signingKey string
	client     *http.Client
}

// NewHTTPLedger creates a ledger client. An empty signingKey puts the
// ledger in dry-run mode: HasCredentials reports false and the chain is
// never submitted to.
func NewHTTPLedger(name, endpoint, account, signingKey string) *HTTPLedger {
	return &HTTPLedger{
		name:       name,
		endpoint:   endpoint,
		account:    account,
		signingKey: signingKey,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *HTTPLedger) Name() string { return l.name }

func (l *HTTPLedger) HasCredentials() bool {
	return l.signingKey != "" && l.account != ""
}

type submitRequest struct {
	Account string `json:"account"`
	Memo    Memo   `json:"memo"`
	Key     string `json:"signing_key"`
}

type submitResponse struct {
	TxID  string `json:"tx_id"`
	Error string `json:"error,omitempty"`
}

// Submit posts a minimal self-transfer transaction carrying the memo.
func (l *HTTPLedger) Submit(ctx context.Context, memo Memo) (string, error) {
	body, err := json.Marshal(submitRequest{Account: l.account, Memo: memo, Key: l.signingKey})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s submit: %v", gate.ErrExternalService, l.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %s decode response: %v", gate.ErrExternalService, l.name, err)
	}
	if resp.StatusCode != http.StatusOK || out.TxID == "" {
		return "", fmt.Errorf("%w: %s rejected submission (status %d): %s", gate.ErrExternalService, l.name, resp.StatusCode, out.Error)
	}
	return out.TxID, nil
}

type statusResponse struct {
	Confirmed bool `json:"confirmed"`
}

// Confirmed queries the network for transaction finality.
func (l *HTTPLedger) Confirmed(ctx context.Context, txID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint+"/transactions/"+txID, nil)
	if err != nil {
		return false, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s status: %v", gate.ErrExternalService, l.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: %s status query returned %d", gate.ErrExternalService, l.name, resp.StatusCode)
	}
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: %s decode status: %v", gate.ErrExternalService, l.name, err)
	}
	return out.Confirmed, nil
}
