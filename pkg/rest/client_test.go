package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tradeforge/lyra-go/pkg/crypto"
	"github.com/tradeforge/lyra-go/pkg/session"
	"github.com/tradeforge/lyra-go/pkg/util"
)

func TestPublic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/get_ticker" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("X-LyraWallet") != "" {
			t.Error("public call carried auth headers")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["instrument_name"] != "ETH-PERP" {
			t.Errorf("payload = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{"instrument_name": "ETH-PERP"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil, "", util.NewNopLogger())
	var out struct {
		InstrumentName string `json:"instrument_name"`
	}
	err := c.Public(context.Background(), "get_ticker", map[string]string{"instrument_name": "ETH-PERP"}, &out)
	if err != nil {
		t.Fatalf("public call failed: %v", err)
	}
	if out.InstrumentName != "ETH-PERP" {
		t.Errorf("result = %+v", out)
	}
}

func TestPrivateSignedHeaders(t *testing.T) {
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.Header.Get("X-LyraWallet")
		ts := r.Header.Get("X-LyraTimestamp")
		sigHex := r.Header.Get("X-LyraSignature")
		if wallet != signer.Address().Hex() {
			t.Errorf("wallet header = %s, want %s", wallet, signer.Address().Hex())
		}
		sig, err := hexutil.Decode(sigHex)
		if err != nil {
			t.Errorf("bad signature header: %v", err)
		} else if !crypto.VerifySignature(signer.Address(), crypto.PersonalDigest(ts), sig) {
			t.Error("timestamp signature did not verify against the wallet")
		}
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, signer, "", util.NewNopLogger())
	if err := c.Private(context.Background(), "get_subaccounts", map[string]any{}, nil); err != nil {
		t.Fatalf("private call failed: %v", err)
	}
}

func TestPrivateWithoutSigner(t *testing.T) {
	c := New("http://127.0.0.1:1", nil, "", util.NewNopLogger())
	if err := c.Private(context.Background(), "get_subaccounts", nil, nil); err == nil {
		t.Fatal("private call without a signer should fail locally")
	}
}

func TestRemoteErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 10001, "message": "instrument not found"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil, "", util.NewNopLogger())
	err := c.Public(context.Background(), "get_instrument", map[string]any{}, nil)
	var remote *session.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if remote.Code != 10001 {
		t.Errorf("code = %d, want 10001", remote.Code)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, "", util.NewNopLogger())
	if err := c.Public(context.Background(), "get_ticker", nil, nil); err == nil {
		t.Fatal("502 without an error envelope should fail")
	}
}
