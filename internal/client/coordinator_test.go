package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-tierprice/internal/config"
	"github.com/noah-isme/toko-tierprice/internal/quote"
)

type call struct {
	productID int64
	qty       int
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	block   chan struct{}
	err     error
	respond func(productID int64, qty int) quote.Payload
}

func (f *fakeTransport) Fetch(ctx context.Context, productID int64, qty int) (quote.Payload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{productID: productID, qty: qty})
	block, err, respond := f.block, f.err, f.respond
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return quote.Payload{}, ErrCancelled
		}
	}
	if err != nil {
		return quote.Payload{}, err
	}
	if respond != nil {
		return respond(productID, qty), nil
	}
	return quote.Payload{Quantity: qty, HasDiscount: qty >= 2}, nil
}

func (f *fakeTransport) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type recorder struct {
	mu          sync.Mutex
	outcomes    []Outcome
	transitions [][2]State
}

func (r *recorder) outcome(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *recorder) transition(from, to State) {
	r.mu.Lock()
	r.transitions = append(r.transitions, [2]State{from, to})
	r.mu.Unlock()
}

func (r *recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *recorder) Transitions() [][2]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]State(nil), r.transitions...)
}

func testConfig() Config {
	cfg := DefaultConfig(12)
	cfg.Debounce = 30 * time.Millisecond
	cfg.QuickDebounce = 5 * time.Millisecond
	cfg.VariantDelay = 10 * time.Millisecond
	cfg.RequestTimeout = time.Second
	return cfg
}

func newCoordinator(t *testing.T, cfg Config, transport Transport) (*Coordinator, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewCoordinator(cfg, transport, WithSubscriber(rec.outcome), WithTransitionHook(rec.transition))
	t.Cleanup(c.Close)
	return c, rec
}

func waitOutcomes(t *testing.T, rec *recorder, n int) []Outcome {
	t.Helper()
	require.Eventually(t, func() bool { return len(rec.Outcomes()) >= n }, 2*time.Second, 5*time.Millisecond)
	return rec.Outcomes()
}

func TestDebounceCollapsesBurstIntoOneRequest(t *testing.T) {
	transport := &fakeTransport{}
	c, rec := newCoordinator(t, testConfig(), transport)

	for qty := 1; qty <= 5; qty++ {
		c.RequestQuote(qty)
	}

	outcomes := waitOutcomes(t, rec, 1)
	calls := transport.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, call{productID: 12, qty: 5}, calls[0])
	require.Equal(t, OutcomeDiscount, outcomes[0].Kind)
	require.Equal(t, 5, outcomes[0].Quantity)
	require.Equal(t, StateFulfilled, c.State())
}

func TestQuickAndNormalShareTimer(t *testing.T) {
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.Debounce = 80 * time.Millisecond
	c, rec := newCoordinator(t, cfg, transport)

	c.RequestQuoteQuick(2)
	c.RequestQuote(7)

	waitOutcomes(t, rec, 1)
	time.Sleep(2 * cfg.Debounce)
	calls := transport.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, 7, calls[0].qty)
}

func TestNewRequestCancelsInFlight(t *testing.T) {
	block := make(chan struct{})
	transport := &fakeTransport{block: block}
	c, rec := newCoordinator(t, testConfig(), transport)

	c.RequestQuoteQuick(3)
	require.Eventually(t, func() bool { return c.State() == StatePending }, time.Second, time.Millisecond)

	transport.mu.Lock()
	transport.block = nil
	transport.mu.Unlock()
	c.RequestQuoteQuick(4)

	outcomes := waitOutcomes(t, rec, 1)
	close(block)
	time.Sleep(20 * time.Millisecond)

	require.Len(t, rec.Outcomes(), 1, "cancelled request must not reach the subscriber")
	require.Equal(t, 4, outcomes[0].Quantity)
	require.Contains(t, rec.Transitions(), [2]State{StatePending, StateCancelled})
}

type slowThenFast struct {
	release chan struct{}
}

func (s *slowThenFast) Fetch(ctx context.Context, productID int64, qty int) (quote.Payload, error) {
	if qty == 3 {
		// ignores cancellation so the response arrives late
		<-s.release
		return quote.Payload{Quantity: 3, HasDiscount: true}, nil
	}
	return quote.Payload{Quantity: qty, HasDiscount: true}, nil
}

func TestStaleResponseIsDropped(t *testing.T) {
	transport := &slowThenFast{release: make(chan struct{})}
	c, rec := newCoordinator(t, testConfig(), transport)

	c.RequestQuoteQuick(3)
	require.Eventually(t, func() bool { return c.State() == StatePending }, time.Second, time.Millisecond)
	c.RequestQuoteQuick(6)
	waitOutcomes(t, rec, 1)

	close(transport.release)
	time.Sleep(30 * time.Millisecond)

	outcomes := rec.Outcomes()
	require.Len(t, outcomes, 1)
	require.Equal(t, 6, outcomes[0].Quantity)
	require.Equal(t, StateFulfilled, c.State())
}

func TestCacheHitSkipsNetwork(t *testing.T) {
	transport := &fakeTransport{}
	c, rec := newCoordinator(t, testConfig(), transport)

	c.RequestQuoteQuick(3)
	waitOutcomes(t, rec, 1)
	c.RequestQuoteQuick(3)
	outcomes := waitOutcomes(t, rec, 2)

	require.Len(t, transport.Calls(), 1)
	require.False(t, outcomes[0].FromCache)
	require.True(t, outcomes[1].FromCache)
	require.Equal(t, OutcomeDiscount, outcomes[1].Kind)
	require.Equal(t, 1, c.CacheStats().Active)
}

func TestCacheDisabledAlwaysFetches(t *testing.T) {
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.CacheEnabled = false
	c, rec := newCoordinator(t, cfg, transport)

	c.RequestQuoteQuick(3)
	waitOutcomes(t, rec, 1)
	c.RequestQuoteQuick(3)
	waitOutcomes(t, rec, 2)

	require.Len(t, transport.Calls(), 2)
	require.Zero(t, c.CacheStats().Total)
}

func TestNoDiscountIsExplicitSignal(t *testing.T) {
	transport := &fakeTransport{}
	c, rec := newCoordinator(t, testConfig(), transport)

	c.RequestQuoteQuick(1)
	outcomes := waitOutcomes(t, rec, 1)

	require.Equal(t, OutcomeNoDiscount, outcomes[0].Kind)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, StateFailed, c.State())
}

func TestTransportErrorSettlesFailed(t *testing.T) {
	transport := &fakeTransport{err: &TransportError{StatusCode: 403, Message: "Security check failed"}}
	c, rec := newCoordinator(t, testConfig(), transport)

	c.RequestQuoteQuick(2)
	outcomes := waitOutcomes(t, rec, 1)

	require.Equal(t, OutcomeError, outcomes[0].Kind)
	var terr *TransportError
	require.True(t, errors.As(outcomes[0].Err, &terr))
	require.Equal(t, 403, terr.StatusCode)
	require.Equal(t, StateFailed, c.State())
	require.Zero(t, c.CacheStats().Total, "failures are not cached")
}

func TestPlainErrorsAreWrapped(t *testing.T) {
	transport := &fakeTransport{err: errors.New("boom")}
	c, rec := newCoordinator(t, testConfig(), transport)

	c.RequestQuoteQuick(2)
	outcomes := waitOutcomes(t, rec, 1)

	var terr *TransportError
	require.True(t, errors.As(outcomes[0].Err, &terr))
}

func TestChangeProductClearsCacheAndRefreshes(t *testing.T) {
	transport := &fakeTransport{}
	c, rec := newCoordinator(t, testConfig(), transport)

	c.RequestQuoteQuick(4)
	waitOutcomes(t, rec, 1)
	require.Equal(t, 1, c.CacheStats().Total)

	c.ChangeProduct(99)
	require.Zero(t, c.CacheStats().Total)

	outcomes := waitOutcomes(t, rec, 2)
	require.Equal(t, int64(99), outcomes[1].ProductID)
	require.Equal(t, 4, outcomes[1].Quantity)
	require.False(t, outcomes[1].FromCache)
	require.Equal(t, call{productID: 99, qty: 4}, transport.Calls()[1])
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.CacheTTL = 20 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	c, rec := newCoordinator(t, cfg, transport)

	c.RequestQuoteQuick(2)
	waitOutcomes(t, rec, 1)

	require.Eventually(t, func() bool { return c.CacheStats().Total == 0 }, time.Second, 5*time.Millisecond)
}

func TestCloseCancelsInFlightAndSilencesTimers(t *testing.T) {
	transport := &fakeTransport{block: make(chan struct{})}
	rec := &recorder{}
	c := NewCoordinator(testConfig(), transport, WithSubscriber(rec.outcome), WithTransitionHook(rec.transition))

	c.RequestQuoteQuick(3)
	require.Eventually(t, func() bool { return c.State() == StatePending }, time.Second, time.Millisecond)
	c.RequestQuote(8)
	c.Close()

	require.Equal(t, StateCancelled, c.State())
	time.Sleep(60 * time.Millisecond)
	require.Len(t, transport.Calls(), 1)
	require.Empty(t, rec.Outcomes())

	// idempotent
	c.Close()
	c.RequestQuote(2)
	require.Len(t, transport.Calls(), 1)
}

func TestCloseClearsCacheAtCeiling(t *testing.T) {
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.MaxEntries = 2
	c := NewCoordinator(cfg, transport)

	c.cache.Put(12, 1, quote.Payload{})
	c.cache.Put(12, 2, quote.Payload{})
	c.Close()
	require.Zero(t, c.CacheStats().Total)
}

func TestConfigFromDefaults(t *testing.T) {
	cfg := ConfigFromDefaults(5, config.ClientDefaults{
		DebounceDelay:   250,
		CacheTTL:        120000,
		EnableCache:     true,
		CacheMaxEntries: 10,
	})
	require.Equal(t, int64(5), cfg.ProductID)
	require.Equal(t, 250*time.Millisecond, cfg.Debounce)
	require.Equal(t, 50*time.Millisecond, cfg.QuickDebounce)
	require.Equal(t, 2*time.Minute, cfg.CacheTTL)
	require.Equal(t, 10, cfg.MaxEntries)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.True(t, cfg.CacheEnabled)
}

func TestOutcomeSupersededBeforeDeliveryIsDropped(t *testing.T) {
	transport := &fakeTransport{}
	rec := &recorder{}
	var (
		c     *Coordinator
		armed atomic.Bool
		once  sync.Once
	)
	// runs while the quantity 3 outcome is settled but not yet delivered
	hook := func(_, to State) {
		if to != StateFulfilled || !armed.Load() {
			return
		}
		once.Do(func() {
			c.mu.Lock()
			settled := c.seq
			c.mu.Unlock()
			c.RequestQuoteQuick(2)
			deadline := time.Now().Add(time.Second)
			for time.Now().Before(deadline) {
				c.mu.Lock()
				advanced := c.seq > settled
				c.mu.Unlock()
				if advanced {
					break
				}
				time.Sleep(time.Millisecond)
			}
			time.Sleep(20 * time.Millisecond)
		})
	}
	c = NewCoordinator(testConfig(), transport, WithSubscriber(rec.outcome), WithTransitionHook(hook))
	t.Cleanup(c.Close)

	c.RequestQuoteQuick(2)
	waitOutcomes(t, rec, 1)
	armed.Store(true)
	c.RequestQuoteQuick(3)

	require.Eventually(t, func() bool {
		outcomes := rec.Outcomes()
		return len(outcomes) >= 2 && outcomes[len(outcomes)-1].FromCache
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	outcomes := rec.Outcomes()
	require.Len(t, outcomes, 2)
	require.Equal(t, 2, outcomes[1].Quantity)
	require.True(t, outcomes[1].FromCache)
	require.Len(t, transport.Calls(), 2)
}

func TestSubscriberCanCloseFromAnotherGoroutine(t *testing.T) {
	transport := &fakeTransport{}
	done := make(chan struct{})
	var c *Coordinator
	c = NewCoordinator(testConfig(), transport, WithSubscriber(func(Outcome) {
		go func() {
			c.Close()
			close(done)
		}()
	}))

	c.RequestQuoteQuick(3)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
	c.RequestQuote(4)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, transport.Calls(), 1)
}
