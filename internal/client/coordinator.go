package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-tierprice/internal/config"
	"github.com/noah-isme/toko-tierprice/internal/quote"
)

// State is the lifecycle position of the current quote request.
type State int

const (
	StateIdle State = iota
	StatePending
	StateFulfilled
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateFulfilled:
		return "fulfilled"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OutcomeKind tells the subscriber what to render.
type OutcomeKind int

const (
	// OutcomeDiscount carries a payload with has_discount=true.
	OutcomeDiscount OutcomeKind = iota + 1
	// OutcomeNoDiscount means the quantity earns no discount; hide the widget.
	OutcomeNoDiscount
	// OutcomeError means the quote could not be fetched.
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDiscount:
		return "discount"
	case OutcomeNoDiscount:
		return "no_discount"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is delivered to the subscriber once per settled request.
// Cancelled requests never produce one.
type Outcome struct {
	Kind      OutcomeKind
	ProductID int64
	Quantity  int
	Payload   quote.Payload
	FromCache bool
	Err       error
}

// Config holds the coordinator timings.
type Config struct {
	ProductID      int64
	Debounce       time.Duration
	QuickDebounce  time.Duration
	VariantDelay   time.Duration
	RequestTimeout time.Duration
	CacheEnabled   bool
	CacheTTL       time.Duration
	MaxEntries     int
	SweepInterval  time.Duration
}

// DefaultConfig returns the storefront defaults for productID.
func DefaultConfig(productID int64) Config {
	return Config{
		ProductID:      productID,
		Debounce:       300 * time.Millisecond,
		QuickDebounce:  50 * time.Millisecond,
		VariantDelay:   100 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
		CacheEnabled:   true,
		CacheTTL:       300 * time.Second,
		MaxEntries:     50,
		SweepInterval:  60 * time.Second,
	}
}

// ConfigFromDefaults converts the millisecond block served by the widget
// bootstrap endpoint. Zero values fall back to DefaultConfig.
func ConfigFromDefaults(productID int64, d config.ClientDefaults) Config {
	cfg := DefaultConfig(productID)
	cfg.CacheEnabled = d.EnableCache
	setMillis(&cfg.Debounce, d.DebounceDelay)
	setMillis(&cfg.QuickDebounce, d.QuickDebounceDelay)
	setMillis(&cfg.VariantDelay, d.VariantDelay)
	setMillis(&cfg.RequestTimeout, d.RequestTimeout)
	setMillis(&cfg.CacheTTL, d.CacheTTL)
	setMillis(&cfg.SweepInterval, d.SweepInterval)
	if d.CacheMaxEntries > 0 {
		cfg.MaxEntries = d.CacheMaxEntries
	}
	return cfg
}

func setMillis(dst *time.Duration, ms int64) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig(c.ProductID)
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.QuickDebounce <= 0 {
		c.QuickDebounce = def.QuickDebounce
	}
	if c.VariantDelay <= 0 {
		c.VariantDelay = def.VariantDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithSubscriber registers the outcome callback.
func WithSubscriber(fn func(Outcome)) Option {
	return func(c *Coordinator) { c.onOutcome = fn }
}

// WithTransitionHook observes every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Coordinator) { c.onTransition = fn }
}

// Coordinator debounces quantity changes into quote requests, keeps at most
// one request in flight and serves repeats from a local TTL cache.
//
// Callbacks run outside the internal lock, one at a time and in dispatch
// order. An outcome superseded by a newer dispatch before it is delivered is
// dropped. Callbacks may call RequestQuote, ChangeProduct and the accessors;
// Close waits for in-flight callbacks and must be called from elsewhere.
type Coordinator struct {
	cfg       Config
	transport Transport
	cache     *LocalCache
	logger    zerolog.Logger

	onOutcome    func(Outcome)
	onTransition func(from, to State)

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// deliverMu serialises callback delivery so a late outcome cannot
	// overtake a newer one.
	deliverMu sync.Mutex

	mu          sync.Mutex
	productID   int64
	state       State
	seq         uint64
	inflight    context.CancelFunc
	debounce    *time.Timer
	debounceGen uint64
	pendingQty  int
	variant     *time.Timer
	lastQty     int
	closed      bool
}

// NewCoordinator starts a coordinator and its cache sweeper.
func NewCoordinator(cfg Config, transport Transport, opts ...Option) *Coordinator {
	cfg = cfg.normalized()
	root, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:       cfg,
		transport: transport,
		cache:     NewLocalCache(cfg.CacheTTL, cfg.MaxEntries),
		logger:    zerolog.Nop(),
		root:      root,
		stop:      stop,
		productID: cfg.ProductID,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "quote_coordinator").Logger()
	if cfg.CacheEnabled {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	return c
}

// RequestQuote schedules a quote for qty after the debounce delay.
func (c *Coordinator) RequestQuote(qty int) {
	c.schedule(qty, c.cfg.Debounce)
}

// RequestQuoteQuick is used by increment/decrement controls. It shares the
// debounce timer with RequestQuote; whichever call comes last wins.
func (c *Coordinator) RequestQuoteQuick(qty int) {
	c.schedule(qty, c.cfg.QuickDebounce)
}

func (c *Coordinator) schedule(qty int, delay time.Duration) {
	if qty < 1 {
		qty = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pendingQty = qty
	c.debounceGen++
	gen := c.debounceGen
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(delay, func() { c.fire(gen) })
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.debounceGen {
		c.mu.Unlock()
		return
	}
	c.debounce = nil
	notes := c.dispatchLocked(c.pendingQty)
	c.mu.Unlock()
	c.deliver(notes)
}

// ChangeProduct switches to another product or variation. The local cache
// is cleared and the last quantity is re-quoted after the variant delay.
func (c *Coordinator) ChangeProduct(productID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.productID = productID
	c.cache.Clear()
	c.debounceGen++
	gen := c.debounceGen
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.variant != nil {
		c.variant.Stop()
	}
	qty := c.lastQty
	if c.pendingQty > 0 {
		qty = c.pendingQty
	}
	if qty < 1 {
		qty = 1
	}
	c.pendingQty = qty
	c.variant = time.AfterFunc(c.cfg.VariantDelay, func() { c.fire(gen) })
}

// State reports the state of the most recent request.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProductID reports the product currently being quoted.
func (c *Coordinator) ProductID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.productID
}

// CacheStats exposes the local cache counters.
func (c *Coordinator) CacheStats() Stats {
	return c.cache.Stats()
}

// ClearCache drops every locally cached quote.
func (c *Coordinator) ClearCache() {
	c.cache.Clear()
	c.logger.Debug().Msg("local cache cleared")
}

// Close stops the timers, cancels the in-flight request and waits for
// background goroutines. A cache at its ceiling is cleared on the way out.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.debounceGen++
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.variant != nil {
		c.variant.Stop()
		c.variant = nil
	}
	var notes notifications
	c.cancelInflightLocked(&notes)
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
	c.deliver(notes)

	if c.cfg.CacheEnabled && c.cfg.MaxEntries > 0 && c.cache.Len() >= c.cfg.MaxEntries {
		c.cache.Clear()
		c.logger.Debug().Msg("local cache cleared on close")
	}
}

func (c *Coordinator) dispatchLocked(qty int) notifications {
	var notes notifications
	c.lastQty = qty
	c.pendingQty = 0
	productID := c.productID

	if c.cfg.CacheEnabled {
		if payload, ok := c.cache.Get(productID, qty); ok {
			c.cancelInflightLocked(&notes)
			c.seq++
			c.logger.Debug().Int64("product_id", productID).Int("quantity", qty).Msg("quote served from local cache")
			c.settleLocked(&notes, Outcome{ProductID: productID, Quantity: qty, Payload: payload, FromCache: true}, nil)
			return notes
		}
	}

	c.cancelInflightLocked(&notes)
	c.seq++
	seq := c.seq
	ctx, cancel := context.WithTimeout(c.root, c.cfg.RequestTimeout)
	c.inflight = cancel
	c.transitionLocked(&notes, StatePending)

	c.wg.Add(1)
	go c.fetch(ctx, cancel, seq, productID, qty)
	return notes
}

func (c *Coordinator) fetch(ctx context.Context, cancel context.CancelFunc, seq uint64, productID int64, qty int) {
	defer c.wg.Done()
	defer cancel()

	payload, err := c.transport.Fetch(ctx, productID, qty)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug().Int64("product_id", productID).Int("quantity", qty).Msg("stale quote response dropped")
		return
	}
	c.inflight = nil
	var notes notifications
	if err != nil && (errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)) {
		c.transitionLocked(&notes, StateCancelled)
		c.mu.Unlock()
		c.deliver(notes)
		return
	}
	if err == nil && c.cfg.CacheEnabled {
		if cleared := c.cache.Put(productID, qty, payload); cleared {
			c.logger.Debug().Int("max_entries", c.cfg.MaxEntries).Msg("local cache ceiling reached, cleared")
		}
	}
	c.settleLocked(&notes, Outcome{ProductID: productID, Quantity: qty, Payload: payload}, err)
	c.mu.Unlock()
	c.deliver(notes)
}

func (c *Coordinator) settleLocked(notes *notifications, out Outcome, err error) {
	switch {
	case err != nil:
		var terr *TransportError
		if !errors.As(err, &terr) {
			err = &TransportError{Err: err}
		}
		out.Kind = OutcomeError
		out.Err = err
		c.logger.Error().Err(err).Int64("product_id", out.ProductID).Int("quantity", out.Quantity).Msg("quote request failed")
		c.transitionLocked(notes, StateFailed)
	case out.Payload.HasDiscount:
		out.Kind = OutcomeDiscount
		c.transitionLocked(notes, StateFulfilled)
	default:
		out.Kind = OutcomeNoDiscount
		c.logger.Debug().Int64("product_id", out.ProductID).Int("quantity", out.Quantity).Msg("no discount available")
		c.transitionLocked(notes, StateFailed)
	}
	if c.onOutcome != nil {
		fn := c.onOutcome
		notes.addOutcome(c.seq, func() { fn(out) })
	}
}

func (c *Coordinator) cancelInflightLocked(notes *notifications) {
	if c.inflight == nil {
		return
	}
	c.inflight()
	c.inflight = nil
	// bump so the abandoned goroutine recognises its response as stale
	c.seq++
	c.logger.Debug().Msg("in-flight quote request cancelled")
	c.transitionLocked(notes, StateCancelled)
}

func (c *Coordinator) transitionLocked(notes *notifications, next State) {
	prev := c.state
	c.state = next
	if c.onTransition != nil {
		fn := c.onTransition
		notes.add(func() { fn(prev, next) })
	}
}

func (c *Coordinator) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.root.Done():
			return
		case <-ticker.C:
			if removed := c.cache.Sweep(); removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("expired local cache entries swept")
			}
		}
	}
}

// deliver runs notes under deliverMu. Outcomes whose sequence number is no
// longer current were overtaken by a newer dispatch and are skipped.
func (c *Coordinator) deliver(notes notifications) {
	if len(notes) == 0 {
		return
	}
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	for _, n := range notes {
		if n.outcome {
			c.mu.Lock()
			current := n.seq == c.seq
			c.mu.Unlock()
			if !current {
				c.logger.Debug().Uint64("seq", n.seq).Msg("superseded quote outcome dropped")
				continue
			}
		}
		n.fn()
	}
}

type notification struct {
	fn      func()
	outcome bool
	seq     uint64
}

// notifications collects callbacks produced under the lock.
type notifications []notification

func (n *notifications) add(fn func()) { *n = append(*n, notification{fn: fn}) }

func (n *notifications) addOutcome(seq uint64, fn func()) {
	*n = append(*n, notification{fn: fn, outcome: true, seq: seq})
}
