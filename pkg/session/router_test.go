package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tradeforge/lyra-go/pkg/util"
)

// fakeClock lets a test fire the timeout channel on demand.
type fakeClock struct {
	after chan time.Time
}

func (c *fakeClock) After(time.Duration) <-chan time.Time { return c.after }
func (c *fakeClock) Now() time.Time                       { return time.Now() }

func newTestRouter() *Router {
	s := New("ws://unused", nil, util.NewNopLogger())
	return s.Router()
}

func pushJSON(t *testing.T, r *Router, channel, data string) {
	t.Helper()
	r.onPush(channel, json.RawMessage(data))
}

func TestMergeRetainsQuietSide(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("BTC-PERP", "1", "100")

	pushJSON(t, r, channel, `{"bids":[["100","1"]],"asks":[],"timestamp":1000,"publish_id":1}`)
	pushJSON(t, r, channel, `{"bids":[],"asks":[["101","2"]],"timestamp":2000,"publish_id":2}`)

	book, ok := r.Snapshot(channel)
	if !ok {
		t.Fatal("no snapshot recorded")
	}
	// The second push was quiet on the bid side: stored bids survive.
	if len(book.Bids) != 1 || book.Bids[0].Price.String() != "100" {
		t.Errorf("bids = %+v, want the retained [100, 1]", book.Bids)
	}
	if len(book.Asks) != 1 || book.Asks[0].Price.String() != "101" {
		t.Errorf("asks = %+v, want the replacing [101, 2]", book.Asks)
	}
	// Timestamp and publish id always track the latest push.
	if book.Timestamp != 2000 || book.PublishID != 2 {
		t.Errorf("timestamp/publish = %d/%d, want 2000/2", book.Timestamp, book.PublishID)
	}
}

func TestMergeReplacesSideWholesale(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")

	pushJSON(t, r, channel, `{"bids":[["100","1"],["99","5"]],"asks":[],"timestamp":1,"publish_id":1}`)
	pushJSON(t, r, channel, `{"bids":[["98","3"]],"asks":[],"timestamp":2,"publish_id":2}`)

	book, _ := r.Snapshot(channel)
	// Replacement, not append: the two old levels are gone.
	if len(book.Bids) != 1 || book.Bids[0].Price.String() != "98" {
		t.Errorf("bids = %+v, want only [98, 3]", book.Bids)
	}
}

func TestMergeEmptyPushBumpsMetadataOnly(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")

	pushJSON(t, r, channel, `{"bids":[["100","1"]],"asks":[["101","2"]],"timestamp":1,"publish_id":1}`)
	pushJSON(t, r, channel, `{"bids":[],"asks":[],"timestamp":2,"publish_id":2}`)

	book, _ := r.Snapshot(channel)
	if len(book.Bids) != 1 || len(book.Asks) != 1 {
		t.Errorf("sides = %d/%d after an empty push, want 1/1", len(book.Bids), len(book.Asks))
	}
	if book.PublishID != 2 {
		t.Errorf("publish id = %d, want 2", book.PublishID)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	r := newTestRouter()
	eth := OrderBookChannel("ETH-PERP", "1", "10")
	btc := OrderBookChannel("BTC-PERP", "1", "10")

	pushJSON(t, r, eth, `{"bids":[["100","1"]],"asks":[],"timestamp":1,"publish_id":1}`)
	pushJSON(t, r, btc, `{"bids":[["40000","2"]],"asks":[],"timestamp":1,"publish_id":1}`)

	ethBook, _ := r.Snapshot(eth)
	btcBook, _ := r.Snapshot(btc)
	if ethBook.Bids[0].Price.String() != "100" || btcBook.Bids[0].Price.String() != "40000" {
		t.Errorf("channel state bled across channels: %+v / %+v", ethBook.Bids, btcBook.Bids)
	}
	if len(r.Channels()) != 2 {
		t.Errorf("channels = %v, want 2 entries", r.Channels())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")
	pushJSON(t, r, channel, `{"bids":[["100","1"]],"asks":[],"timestamp":1,"publish_id":1}`)

	book, _ := r.Snapshot(channel)
	book.Bids[0] = BookLevel{}

	again, _ := r.Snapshot(channel)
	if again.Bids[0].Price.String() != "100" {
		t.Error("mutating a snapshot changed the stored book")
	}
}

func TestMalformedPushDropped(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")

	pushJSON(t, r, channel, `{"bids":[["100","1"]],"asks":[],"timestamp":1,"publish_id":1}`)
	pushJSON(t, r, channel, `{"bids":"not a list"}`)

	book, ok := r.Snapshot(channel)
	if !ok || len(book.Bids) != 1 || book.PublishID != 1 {
		t.Errorf("malformed push disturbed the stored book: %+v", book)
	}
}

func TestWaitForReturnsExistingData(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")
	pushJSON(t, r, channel, `{"bids":[["100","1"]],"asks":[],"timestamp":1,"publish_id":1}`)

	book, err := r.WaitFor(context.Background(), channel, time.Second)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if len(book.Bids) != 1 {
		t.Errorf("bids = %+v, want the stored level", book.Bids)
	}
}

func TestWaitForWakesOnPush(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")

	var wg sync.WaitGroup
	wg.Add(1)
	var book Book
	var err error
	go func() {
		defer wg.Done()
		book, err = r.WaitFor(context.Background(), channel, 5*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	pushJSON(t, r, channel, `{"bids":[["100","1"]],"asks":[],"timestamp":1,"publish_id":1}`)
	wg.Wait()

	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if len(book.Bids) != 1 {
		t.Errorf("bids = %+v, want the pushed level", book.Bids)
	}
}

func TestWaitForTimeout(t *testing.T) {
	r := newTestRouter()
	clock := &fakeClock{after: make(chan time.Time, 1)}
	r.session.clock = clock
	clock.after <- time.Now() // fire the timeout immediately

	_, err := r.WaitFor(context.Background(), "orderbook.ETH-PERP.1.10", time.Minute)
	var timeout *SubscriptionTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want SubscriptionTimeoutError", err)
	}
	if timeout.Channel != "orderbook.ETH-PERP.1.10" {
		t.Errorf("timeout channel = %s", timeout.Channel)
	}

	// The abandoned waiter must be cleaned up.
	r.mu.RLock()
	waiters := len(r.waiters)
	r.mu.RUnlock()
	if waiters != 0 {
		t.Errorf("waiters = %d after timeout, want 0", waiters)
	}
}

func TestWaitForContextCancel(t *testing.T) {
	r := newTestRouter()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.WaitFor(ctx, "orderbook.ETH-PERP.1.10", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWaitForWokenByTeardown(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")

	done := make(chan error, 1)
	go func() {
		_, err := r.WaitFor(context.Background(), channel, 5*time.Second)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)

	r.reset()

	select {
	case err := <-done:
		var lost *ConnectionLostError
		if !errors.As(err, &lost) {
			t.Fatalf("err = %v, want ConnectionLostError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by teardown")
	}
}

func TestResetClearsState(t *testing.T) {
	r := newTestRouter()
	channel := OrderBookChannel("ETH-PERP", "1", "10")
	pushJSON(t, r, channel, `{"bids":[["100","1"]],"asks":[],"timestamp":1,"publish_id":1}`)

	r.reset()

	if _, ok := r.Snapshot(channel); ok {
		t.Error("book survived reset")
	}
	if len(r.Channels()) != 0 {
		t.Errorf("channels = %v after reset, want none", r.Channels())
	}
	// A reconnected session must resubscribe from scratch.
	r.mu.RLock()
	subscribed := len(r.subscribed)
	r.mu.RUnlock()
	if subscribed != 0 {
		t.Errorf("subscriptions = %d after reset, want 0", subscribed)
	}
}

// TestSubscribeIdempotent drives a live session: the second Subscribe for
// the same channel must not reach the wire.
func TestSubscribeIdempotent(t *testing.T) {
	var mu sync.Mutex
	subscribeCount := 0
	s := readySession(t, func(c *serverConn, req mockRequest) {
		if req.Method != "subscribe" {
			return
		}
		mu.Lock()
		subscribeCount++
		mu.Unlock()
		c.result(t, req.ID, map[string]any{"status": map[string]string{}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	channel := OrderBookChannel("ETH-PERP", "1", "100")

	if err := s.Router().Subscribe(ctx, channel); err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	if err := s.Router().Subscribe(ctx, channel); err != nil {
		t.Fatalf("second subscribe failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if subscribeCount != 1 {
		t.Errorf("subscribe frames on the wire = %d, want 1", subscribeCount)
	}
}

// TestSubscribeConcurrent races several subscribers for one channel against
// a slow server: only one subscribe frame may reach the wire, and every
// caller must still return success.
func TestSubscribeConcurrent(t *testing.T) {
	var mu sync.Mutex
	subscribeCount := 0
	s := readySession(t, func(c *serverConn, req mockRequest) {
		if req.Method != "subscribe" {
			return
		}
		mu.Lock()
		subscribeCount++
		mu.Unlock()
		// Hold the response open so the other subscribers arrive while the
		// first frame is still in flight.
		time.Sleep(100 * time.Millisecond)
		c.result(t, req.ID, map[string]any{"status": map[string]string{}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	channel := OrderBookChannel("ETH-PERP", "1", "100")

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Router().Subscribe(ctx, channel)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("subscriber %d: %v", i, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if subscribeCount != 1 {
		t.Errorf("subscribe frames on the wire = %d, want 1", subscribeCount)
	}
}

// TestSubscribeRetriesAfterFailedAttempt: a waiter woken by a failed
// in-flight attempt sends its own frame instead of reporting false success.
func TestSubscribeRetriesAfterFailedAttempt(t *testing.T) {
	var mu sync.Mutex
	subscribeCount := 0
	s := readySession(t, func(c *serverConn, req mockRequest) {
		if req.Method != "subscribe" {
			return
		}
		mu.Lock()
		subscribeCount++
		first := subscribeCount == 1
		mu.Unlock()
		if first {
			time.Sleep(50 * time.Millisecond)
			c.fail(t, req.ID, -32000, "subscription refused")
			return
		}
		c.result(t, req.ID, map[string]any{"status": map[string]string{}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	channel := OrderBookChannel("BTC-PERP", "1", "100")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Router().Subscribe(ctx, channel)
		}(i)
	}
	wg.Wait()

	// One caller got the refusal, the other retried and succeeded.
	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failed subscribers = %d, want exactly 1", failures)
	}
	mu.Lock()
	defer mu.Unlock()
	if subscribeCount != 2 {
		t.Errorf("subscribe frames on the wire = %d, want 2", subscribeCount)
	}
}

func TestSubscribeNotReady(t *testing.T) {
	r := newTestRouter()
	if err := r.Subscribe(context.Background(), "orderbook.ETH-PERP.1.10"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestOrderBookChannelFormat(t *testing.T) {
	got := OrderBookChannel("ETH-20240119-2000-C", "10", "20")
	if got != "orderbook.ETH-20240119-2000-C.10.20" {
		t.Errorf("channel = %s", got)
	}
}
