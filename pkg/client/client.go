// Package client is the trading façade: it resolves instrument metadata,
// authorizes actions through the signing pipeline, submits them over the
// session and interprets results. Reconnection policy lives here, never in
// the session.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/tradeforge/lyra-go/params"
	"github.com/tradeforge/lyra-go/pkg/crypto"
	"github.com/tradeforge/lyra-go/pkg/journal"
	"github.com/tradeforge/lyra-go/pkg/rest"
	"github.com/tradeforge/lyra-go/pkg/session"
	"github.com/tradeforge/lyra-go/pkg/sign"
)

type Client struct {
	cfg    params.Config
	log    *zap.SugaredLogger
	signer *crypto.Signer
	auth   *sign.Authorizer
	rest   *rest.Client
	sess   *session.Session
	jour   *journal.Journal

	instMu      sync.Mutex
	instruments map[string]Instrument
}

// New builds a client from configuration. The journal is optional: an empty
// JournalPath disables it.
func New(cfg params.Config, log *zap.SugaredLogger) (*Client, error) {
	signer, err := crypto.FromPrivateKeyHex(cfg.PrivateKey)
	if err != nil {
		return nil, &sign.SigningError{Err: err}
	}

	owner := common.HexToAddress(cfg.Wallet)
	c := &Client{
		cfg:         cfg,
		log:         log,
		signer:      signer,
		auth:        sign.NewAuthorizer(cfg.Contracts, signer, owner),
		rest:        rest.New(cfg.BaseURL, signer, cfg.Wallet, log),
		sess:        session.New(cfg.WSAddress, signer, log),
		instruments: make(map[string]Instrument),
	}

	if cfg.JournalPath != "" {
		jour, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		c.jour = jour
	}
	return c, nil
}

// Wallet returns the authorizing wallet address.
func (c *Client) Wallet() common.Address { return c.auth.Owner() }

// Session exposes the underlying session, mostly for state inspection.
func (c *Client) Session() *session.Session { return c.sess }

// Journal exposes the local submission journal, if enabled.
func (c *Client) Journal() *journal.Journal { return c.jour }

// Connect dials and authenticates the session.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.sess.Connect(ctx); err != nil {
		return err
	}
	authCtx, cancel := context.WithTimeout(ctx, c.cfg.LoginTimeout)
	defer cancel()
	if err := c.sess.Authenticate(authCtx, c.cfg.Wallet); err != nil {
		c.sess.Close()
		return err
	}
	return nil
}

// Close releases the session and journal.
func (c *Client) Close() {
	c.sess.Close()
	if c.jour != nil {
		if err := c.jour.Close(); err != nil {
			c.log.Warnw("journal_close_failed", "err", err)
		}
	}
}

// Reconnect re-establishes a dropped session with bounded, observable
// attempts and exponential backoff. It never re-submits anything on its
// own.
func (c *Client) Reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.ReconnectMax; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			c.log.Infow("reconnect_backoff", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.Connect(ctx); err != nil {
			lastErr = err
			var loginErr *session.LoginError
			if errors.As(err, &loginErr) {
				// Credentials will not improve by retrying.
				return err
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("reconnect gave up after %d attempts: %w", c.cfg.ReconnectMax, lastErr)
}

func backoff(attempt int) time.Duration {
	const base = time.Second
	const max = 30 * time.Second
	if attempt > 5 {
		return max
	}
	d := base * time.Duration(1<<attempt)
	if d > max {
		return max
	}
	return d
}

// callIdempotent runs a read-only or replay-safe call, reconnecting and
// retrying once if the connection drops mid-flight. Order submission never
// goes through here: resubmitting an order is not replay-safe.
func (c *Client) callIdempotent(ctx context.Context, method string, wsParams any) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	result, err := c.sess.Call(callCtx, method, wsParams)
	cancel()
	if err == nil {
		return result, nil
	}

	var lost *session.ConnectionLostError
	if !errors.As(err, &lost) && !errors.Is(err, session.ErrNotReady) {
		return nil, err
	}
	if rerr := c.Reconnect(ctx); rerr != nil {
		return nil, fmt.Errorf("%w (reconnect also failed: %v)", err, rerr)
	}

	callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.sess.Call(callCtx, method, wsParams)
}

// instrumentKey maps an instrument name to the "<CURRENCY>-<KIND>" key used
// for configured settlement addresses.
func instrumentKey(name string) string {
	parts := strings.Split(name, "-")
	if len(parts) == 2 && parts[1] == "PERP" {
		return name
	}
	if len(parts) >= 2 {
		return parts[0] + "-OPTION"
	}
	return name
}
