package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OrderBookChannel formats the channel id for an order-book subscription.
func OrderBookChannel(instrument, group, depth string) string {
	return fmt.Sprintf("orderbook.%s.%s.%s", instrument, group, depth)
}

// Book is the latest merged snapshot for one channel.
type Book struct {
	Channel   string      `json:"channel"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp int64       `json:"timestamp"`
	PublishID int64       `json:"publish_id"`
}

// Router maintains per-channel order-book state fed by push frames. The
// registry is owned by one session instance; it is created with the session
// and cleared on session teardown, so parallel sessions never share state.
//
// Each push carries the delta since the previous published state: a side
// that arrives empty means "no change", not "no liquidity", so the stored
// side is retained. A non-empty side replaces the stored one wholesale.
type Router struct {
	session *Session
	log     *zap.SugaredLogger

	mu         sync.RWMutex
	books      map[string]*Book
	subscribed map[string]bool
	inflight   map[string]chan struct{}
	waiters    map[string][]chan struct{}
}

func newRouter(s *Session, log *zap.SugaredLogger) *Router {
	return &Router{
		session:    s,
		log:        log,
		books:      make(map[string]*Book),
		subscribed: make(map[string]bool),
		inflight:   make(map[string]chan struct{}),
		waiters:    make(map[string][]chan struct{}),
	}
}

// Subscribe registers a channel. Idempotent, also under concurrency: while a
// subscribe frame for the channel is in flight, other callers wait on it
// instead of sending their own; once registered nothing is resent.
func (r *Router) Subscribe(ctx context.Context, channel string) error {
	for {
		r.mu.Lock()
		if r.subscribed[channel] {
			r.mu.Unlock()
			return nil
		}
		pending, ok := r.inflight[channel]
		if !ok {
			break // holds r.mu
		}
		r.mu.Unlock()
		select {
		case <-pending:
			// Re-check: the in-flight attempt may have failed, in which
			// case this caller sends its own frame.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	pending := make(chan struct{})
	r.inflight[channel] = pending
	r.mu.Unlock()

	_, err := r.session.Call(ctx, "subscribe", map[string]any{"channels": []string{channel}})

	r.mu.Lock()
	if err == nil {
		r.subscribed[channel] = true
	}
	delete(r.inflight, channel)
	r.mu.Unlock()
	close(pending)

	if err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	r.log.Infow("subscribed", "channel", channel)
	return nil
}

// onPush merges a push frame into the channel's stored book. Called only by
// the session's reader pump, so writes are single-writer by construction.
func (r *Router) onPush(channel string, data json.RawMessage) {
	var delta orderbookData
	if err := json.Unmarshal(data, &delta); err != nil {
		r.log.Warnw("push_decode_failed", "channel", channel, "err", err)
		return
	}

	r.mu.Lock()
	book, ok := r.books[channel]
	if !ok {
		book = &Book{Channel: channel}
		r.books[channel] = book
	}
	if len(delta.Bids) > 0 {
		book.Bids = delta.Bids
	}
	if len(delta.Asks) > 0 {
		book.Asks = delta.Asks
	}
	book.Timestamp = delta.Timestamp
	book.PublishID = delta.PublishID

	waiters := r.waiters[channel]
	delete(r.waiters, channel)
	r.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// Snapshot returns a copy of the channel's latest book, if any.
func (r *Router) Snapshot(channel string) (Book, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	book, ok := r.books[channel]
	if !ok {
		return Book{}, false
	}
	out := *book
	out.Bids = append([]BookLevel(nil), book.Bids...)
	out.Asks = append([]BookLevel(nil), book.Asks...)
	return out, true
}

// Channels lists the channels with recorded state.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.books))
	for ch := range r.books {
		out = append(out, ch)
	}
	return out
}

// WaitFor suspends the caller until the channel has at least one recorded
// snapshot, without blocking other channels' progress. Times out with
// SubscriptionTimeoutError.
func (r *Router) WaitFor(ctx context.Context, channel string, timeout time.Duration) (Book, error) {
	r.mu.Lock()
	if book, ok := r.books[channel]; ok {
		out := *book
		out.Bids = append([]BookLevel(nil), book.Bids...)
		out.Asks = append([]BookLevel(nil), book.Asks...)
		r.mu.Unlock()
		return out, nil
	}
	ready := make(chan struct{})
	r.waiters[channel] = append(r.waiters[channel], ready)
	r.mu.Unlock()

	select {
	case <-ready:
		book, ok := r.Snapshot(channel)
		if !ok {
			// Woken by session teardown, not by data.
			return Book{}, fmt.Errorf("channel %s: %w", channel, &ConnectionLostError{})
		}
		return book, nil
	case <-r.session.clock.After(timeout):
		r.removeWaiter(channel, ready)
		return Book{}, &SubscriptionTimeoutError{Channel: channel}
	case <-ctx.Done():
		r.removeWaiter(channel, ready)
		return Book{}, ctx.Err()
	}
}

func (r *Router) removeWaiter(channel string, target chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.waiters[channel][:0]
	for _, w := range r.waiters[channel] {
		if w != target {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		delete(r.waiters, channel)
	} else {
		r.waiters[channel] = kept
	}
}

// reset drops all channel state and registrations. Called on session
// teardown; a reconnected session must resubscribe.
func (r *Router) reset() {
	r.mu.Lock()
	waiters := r.waiters
	r.books = make(map[string]*Book)
	r.subscribed = make(map[string]bool)
	r.inflight = make(map[string]chan struct{})
	r.waiters = make(map[string][]chan struct{})
	r.mu.Unlock()

	// Wake waiters so they observe the teardown instead of hanging until
	// their timeout.
	for _, list := range waiters {
		for _, w := range list {
			close(w)
		}
	}
}
