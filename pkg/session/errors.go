package session

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Call before the login handshake has completed.
// Nothing is written to the wire in that case.
var ErrNotReady = errors.New("session not ready")

// ConnectionLostError fails an outstanding call when the socket drops. The
// caller decides whether to reconnect; the session never retries on its own
// because replaying an order with the same nonce can double-submit.
type ConnectionLostError struct {
	ID string // correlation id of the interrupted call, if any
}

func (e *ConnectionLostError) Error() string {
	if e.ID == "" {
		return "connection lost"
	}
	return fmt.Sprintf("connection lost while awaiting id %s", e.ID)
}

// LoginError is fatal for the connection attempt and is not retried
// automatically.
type LoginError struct {
	ID     string
	Reason string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed (id %s): %s", e.ID, e.Reason)
}

// RemoteError carries an exchange rejection verbatim, tagged with the
// correlation id so logs can be matched against exchange-side records.
type RemoteError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
	ID      string `json:"-"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d (id %s): %s", e.Code, e.ID, e.Message)
}

// SubscriptionTimeoutError reports that no data arrived on a channel in
// time. The caller decides whether to retry.
type SubscriptionTimeoutError struct {
	Channel string
}

func (e *SubscriptionTimeoutError) Error() string {
	return fmt.Sprintf("no data on channel %s before timeout", e.Channel)
}
