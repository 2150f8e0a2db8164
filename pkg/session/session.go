// Package session owns one duplex websocket connection to the exchange. It
// multiplexes correlated request/response calls with unsolicited push
// frames: a single reader pump dispatches each inbound frame either to the
// waiter registered under its correlation id or to the subscription router.
package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradeforge/lyra-go/pkg/crypto"
	"github.com/tradeforge/lyra-go/pkg/util"
)

// State is the connection lifecycle. Any I/O error sends the session back
// to Disconnected; the caller must reconnect explicitly before further
// calls.
type State int32

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Ready
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	default:
		return "disconnected"
	}
}

type callOutcome struct {
	result []byte
	err    error
}

// Session is a duplex RPC channel over one websocket connection.
type Session struct {
	url    string
	signer *crypto.Signer
	log    *zap.SugaredLogger
	clock  util.Clock

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	pending map[string]chan callOutcome
	lastID  int64
	done    chan struct{}

	writeMu sync.Mutex

	router *Router
}

// New builds a disconnected Session. The signer authenticates the login
// handshake; it is not used for order signing.
func New(url string, signer *crypto.Signer, log *zap.SugaredLogger) *Session {
	s := &Session{
		url:     url,
		signer:  signer,
		log:     log,
		clock:   util.RealClock{},
		pending: make(map[string]chan callOutcome),
	}
	s.router = newRouter(s, log)
	return s
}

// Router returns the subscription router bound to this session. Its
// lifecycle is tied to the session's: channel state survives across pushes
// and is dropped on teardown.
func (s *Session) Router() *Router { return s.router }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the exchange and starts the reader pump. The session is not
// usable for private calls until Authenticate succeeds.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return fmt.Errorf("connect from state %s", s.state)
	}
	s.state = Connecting
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = Authenticating
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(conn)
	s.log.Infow("session_connected", "url", s.url)
	return nil
}

// LoginParams is the signed timestamp header the login handshake carries.
type LoginParams struct {
	Wallet    string `json:"wallet"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

// NewLoginParams signs the current millisecond timestamp with the account
// key under the personal-message scheme.
func NewLoginParams(signer *crypto.Signer, wallet string, now time.Time) (LoginParams, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	sig, err := signer.SignPersonal(ts)
	if err != nil {
		return LoginParams{}, fmt.Errorf("sign login timestamp: %w", err)
	}
	if wallet == "" {
		wallet = signer.Address().Hex()
	}
	return LoginParams{Wallet: wallet, Timestamp: ts, Signature: hexutil.Encode(sig)}, nil
}

// Authenticate performs the login handshake and blocks until the response
// carrying the login correlation id arrives. Failure is fatal for this
// connection attempt; the session does not retry on its own.
func (s *Session) Authenticate(ctx context.Context, wallet string) error {
	s.mu.Lock()
	if s.state != Authenticating {
		s.mu.Unlock()
		return fmt.Errorf("authenticate from state %s", s.state)
	}
	s.mu.Unlock()

	params, err := NewLoginParams(s.signer, wallet, time.Now())
	if err != nil {
		return err
	}

	id := s.nextID()
	result, err := s.roundTrip(ctx, "public/login", params, id)
	if err != nil {
		if remote, ok := err.(*RemoteError); ok {
			return &LoginError{ID: id, Reason: remote.Message}
		}
		return err
	}
	if len(result) == 0 || string(result) == "null" {
		return &LoginError{ID: id, Reason: "response carried no result"}
	}

	s.mu.Lock()
	s.state = Ready
	s.mu.Unlock()
	s.log.Infow("session_ready", "wallet", params.Wallet, "login_id", id)
	return nil
}

// Call sends a correlated request and suspends until the response bearing
// the same id arrives, the context is done, or the connection is lost.
// Valid only in Ready: before that it fails immediately without touching
// the wire. Push frames observed while waiting are routed to the
// subscription router, never returned as a call result.
func (s *Session) Call(ctx context.Context, method string, params any) ([]byte, error) {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.mu.Unlock()
	return s.roundTrip(ctx, method, params, s.nextID())
}

func (s *Session) roundTrip(ctx context.Context, method string, params any, id string) ([]byte, error) {
	ch := make(chan callOutcome, 1)

	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil, &ConnectionLostError{ID: id}
	}
	if _, exists := s.pending[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("correlation id %s already in flight", id)
	}
	s.pending[id] = ch
	conn := s.conn
	done := s.done
	s.mu.Unlock()

	s.writeMu.Lock()
	err := conn.WriteJSON(request{Method: method, Params: params, ID: id})
	s.writeMu.Unlock()
	if err != nil {
		s.dropPending(id)
		return nil, &ConnectionLostError{ID: id}
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		// Abandoned call: deregister so a late response is dropped silently.
		s.dropPending(id)
		return nil, fmt.Errorf("call %s (id %s): %w", method, id, ctx.Err())
	case <-done:
		s.dropPending(id)
		return nil, &ConnectionLostError{ID: id}
	}
}

// nextID derives a correlation id from the clock, strictly increasing so
// concurrent calls never collide.
func (s *Session) nextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.clock.Now().UnixNano()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

func (s *Session) dropPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// readLoop is the single reader pump: it owns all inbound frames and is the
// only goroutine that mutates channel state via the router.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.teardown(err)
			return
		}
		frame, err := decodeFrame(data)
		if err != nil {
			s.log.Warnw("frame_decode_failed", "err", err)
			continue
		}
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(f *inboundFrame) {
	switch f.kind() {
	case framePush:
		if f.Params == nil || f.Params.Channel == "" {
			s.log.Debugw("push_without_channel_dropped")
			return
		}
		s.router.onPush(f.Params.Channel, f.Params.Data)

	case frameError:
		if f.ID == "" {
			// Top-level error with no correlation id; nothing to fail.
			s.log.Warnw("unsolicited_remote_error", "code", f.Error.Code, "message", f.Error.Message)
			return
		}
		s.resolve(string(f.ID), callOutcome{err: f.Error})

	case frameResult:
		s.resolve(string(f.ID), callOutcome{result: f.Result})
	}
}

func (s *Session) resolve(id string, out callOutcome) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		// Late response for an abandoned call.
		s.log.Debugw("late_response_dropped", "id", id)
		return
	}
	ch <- out
}

// teardown moves the session to Disconnected, fails every outstanding call
// with ConnectionLost and resets channel state. Reconnecting is the
// caller's decision.
func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	conn := s.conn
	s.conn = nil
	pending := s.pending
	s.pending = make(map[string]chan callOutcome)
	done := s.done
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for id, ch := range pending {
		ch <- callOutcome{err: &ConnectionLostError{ID: id}}
	}
	if done != nil {
		close(done)
	}
	s.router.reset()
	s.log.Warnw("session_disconnected", "cause", cause)
}

// Close tears the session down deliberately.
func (s *Session) Close() {
	s.teardown(nil)
}
