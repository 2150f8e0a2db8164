// Package rest issues the plain request/response HTTP calls of the exchange
// API: every endpoint is a JSON POST returning a {"result": ...} envelope,
// with private endpoints additionally carrying signed timestamp headers.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/tradeforge/lyra-go/pkg/crypto"
	"github.com/tradeforge/lyra-go/pkg/session"
)

type Client struct {
	baseURL string
	wallet  string
	signer  *crypto.Signer
	http    *http.Client
	log     *zap.SugaredLogger
}

// New builds a REST client. signer may be nil for public-only use; wallet
// defaults to the signer's address.
func New(baseURL string, signer *crypto.Signer, wallet string, log *zap.SugaredLogger) *Client {
	if wallet == "" && signer != nil {
		wallet = signer.Address().Hex()
	}
	return &Client{
		baseURL: baseURL,
		wallet:  wallet,
		signer:  signer,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

type envelope struct {
	Result json.RawMessage      `json:"result"`
	Error  *session.RemoteError `json:"error"`
}

// Public POSTs to /public/<endpoint> without authentication.
func (c *Client) Public(ctx context.Context, endpoint string, payload any, out any) error {
	return c.post(ctx, "/public/"+endpoint, payload, out, nil)
}

// Private POSTs to /private/<endpoint> with the signed timestamp headers the
// exchange authenticates against. This shares the personal-sign primitive
// with the websocket login but is distinct from typed-data order signing.
func (c *Client) Private(ctx context.Context, endpoint string, payload any, out any) error {
	if c.signer == nil {
		return fmt.Errorf("private endpoint %s requires a signer", endpoint)
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := c.signer.SignPersonal(ts)
	if err != nil {
		return fmt.Errorf("sign auth header: %w", err)
	}
	headers := map[string]string{
		"X-LyraWallet":    c.wallet,
		"X-LyraTimestamp": ts,
		"X-LyraSignature": hexutil.Encode(sig),
	}
	return c.post(ctx, "/private/"+endpoint, payload, out, headers)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", path, resp.StatusCode, err)
	}
	if env.Error != nil {
		return env.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", path, err)
		}
	}
	return nil
}
