// Package binding keeps a widget's configured data points resolved, their
// live values and history fresh, and turns user interaction into writes.
//
// All mutable state of a Binding is owned by its event loop goroutine.
// Metadata, state and history reads run outside the loop and post their
// results back to it; results arriving after Close are discarded.
package binding

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/eventloop"
	"github.com/dokzlo13/visbind/internal/objects"
)

var (
	// ErrClosed is returned by operations on a torn-down binding.
	ErrClosed = errors.New("binding closed")
	// ErrNotStarted is returned by operations before Start.
	ErrNotStarted = errors.New("binding not started")
	// ErrUnknownPoint is returned for a key that names no bound point.
	ErrUnknownPoint = errors.New("unknown point")
	// ErrNoSession is returned when an adjust session id is not open.
	ErrNoSession = errors.New("no such adjust session")
	// ErrNotAdjustable is returned when adjusting a non-numeric point.
	ErrNotAdjustable = errors.New("point is not adjustable")
)

// Options configures a Binding. Zero values select defaults.
type Options struct {
	// ID identifies the binding in logs and the write journal.
	ID string
	// Owner is the widget the binding serves.
	Owner     string
	Journal   Journal
	Debounce  time.Duration
	History   SynchronizerConfig
	QueueSize int
	Now       func() time.Time
}

// Snapshot is an immutable view of a binding, keyed by point key.
type Snapshot struct {
	BindingID string             `json:"binding_id"`
	Version   uint64             `json:"version"`
	Points    map[string]Point   `json:"points"`
	Values    map[string]Value   `json:"values"`
	Series    map[string]*Series `json:"series,omitempty"`
	Session   *SessionState      `json:"session,omitempty"`
}

// Binding binds one widget configuration to the object store.
type Binding struct {
	id       string
	owner    string
	client   Client
	journal  Journal
	resolver *Resolver
	history  *Synchronizer
	loop     *eventloop.Loop
	debounce *Debouncer
	now      func() time.Time

	runCtx    context.Context
	cancel    context.CancelFunc
	started   atomic.Bool
	closeOnce sync.Once

	listenersMu sync.Mutex
	listeners   []func(Snapshot)
	snap        atomic.Pointer[Snapshot]

	// Owned by the loop goroutine.
	cfg         Config
	resolvedSig string
	generation  uint64
	points      map[string]Point
	series      map[string]*Series
	values      *Values
	session     *SessionState
	ticker      *ticker
	unsubscribe func()
	subscribed  string
	// pending holds ids subscribed for a resolution not yet applied.
	pending     map[string]bool
	closed      bool
	version     uint64
}

// New creates a binding for cfg. Call Start before using it.
func New(cfg Config, client Client, opts Options) *Binding {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.History.Now == nil {
		opts.History.Now = opts.Now
	}

	b := &Binding{
		id:       opts.ID,
		owner:    opts.Owner,
		client:   client,
		journal:  opts.Journal,
		resolver: NewResolver(client),
		history:  NewSynchronizer(client, client, opts.History),
		loop:     eventloop.NewLoop("binding:"+opts.ID, opts.QueueSize),
		now:      opts.Now,
		cfg:      cfg,
		points:   make(map[string]Point),
		series:   make(map[string]*Series),
		values:   NewValues(),
	}
	b.debounce = NewDebouncer(opts.Debounce, b.debounced)
	b.snap.Store(&Snapshot{BindingID: b.id})
	return b
}

// ID returns the binding identifier.
func (b *Binding) ID() string {
	return b.id
}

// Start runs the binding's event loop until ctx is cancelled or Close is
// called. It does not resolve; call Resolve or Update for that.
func (b *Binding) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	b.runCtx, b.cancel = context.WithCancel(ctx)
	go b.loop.Run(b.runCtx)
}

// OnChange registers fn to receive every new snapshot. fn runs on the
// binding's loop and must not block or call back into the binding.
func (b *Binding) OnChange(fn func(Snapshot)) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Snapshot returns the latest published view.
func (b *Binding) Snapshot() Snapshot {
	return *b.snap.Load()
}

// Update records cfg as the current configuration. If its signature differs
// from the last resolved one, a re-resolution is scheduled after the
// debounce delay; an already pending one absorbs the request.
func (b *Binding) Update(ctx context.Context, cfg Config) error {
	return b.call(ctx, func(context.Context) error {
		if b.closed {
			return ErrClosed
		}
		b.cfg = cfg
		if Signature(cfg) == b.resolvedSig {
			return nil
		}
		if b.debounce.Trigger() {
			log.Debug().Str("binding", b.id).Msg("Configuration changed, resolution scheduled")
		}
		return nil
	})
}

// Resolve re-resolves the current configuration now, seeds live values and
// refreshes history. It does nothing if the configuration is unchanged since
// the last resolution.
func (b *Binding) Resolve(ctx context.Context) error {
	changed, err := b.resolve(ctx)
	if err != nil || !changed {
		return err
	}
	return b.RefreshHistory(ctx)
}

func (b *Binding) debounced() {
	if err := b.Resolve(b.runCtx); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("binding", b.id).Msg("Scheduled resolution failed")
	}
}

func (b *Binding) resolve(ctx context.Context) (bool, error) {
	var (
		cfg  Config
		sig  string
		gen  uint64
		skip bool
	)
	err := b.call(ctx, func(context.Context) error {
		if b.closed {
			return ErrClosed
		}
		sig = Signature(b.cfg)
		if sig == b.resolvedSig {
			skip = true
			return nil
		}
		b.generation++
		gen, cfg = b.generation, b.cfg
		return nil
	})
	if err != nil || skip {
		return false, err
	}

	points := b.resolver.Resolve(ctx, cfg)

	// Subscribe before reading states so no push falls between the read and
	// the subscription. Values.Apply drops a read older than a pushed value.
	err = b.call(ctx, func(context.Context) error {
		if b.closed {
			return ErrClosed
		}
		if gen != b.generation {
			skip = true
			return nil
		}
		b.pending = boundSet(points)
		b.resubscribe(b.pending)
		return nil
	})
	if err != nil || skip {
		return false, err
	}

	live := b.readStates(ctx, points)

	applied := false
	err = b.call(ctx, func(context.Context) error {
		if b.closed {
			log.Debug().Str("binding", b.id).Msg("Discarding resolution for closed binding")
			return ErrClosed
		}
		if gen != b.generation {
			log.Debug().Str("binding", b.id).Uint64("generation", gen).Msg("Discarding superseded resolution")
			return nil
		}
		b.applyResolution(cfg, sig, points, live)
		applied = true
		return nil
	})
	return applied, err
}

func (b *Binding) readStates(ctx context.Context, points map[string]Point) map[string]objects.State {
	live := make(map[string]objects.State)
	for _, pt := range points {
		if !pt.Found {
			continue
		}
		if _, ok := live[pt.ID]; ok {
			continue
		}
		st, err := b.client.GetState(ctx, pt.ID)
		if err != nil {
			log.Debug().Err(err).Str("binding", b.id).Str("oid", pt.ID).Msg("State read failed")
			continue
		}
		if st != nil {
			live[pt.ID] = *st
		}
	}
	return live
}

func (b *Binding) applyResolution(cfg Config, sig string, points map[string]Point, live map[string]objects.State) {
	b.resolvedSig = sig
	b.points = points
	b.pending = nil

	bound := b.boundIDs()
	b.values.Retain(bound)
	for id := range b.series {
		if !bound[id] {
			delete(b.series, id)
		}
	}
	if b.session != nil {
		if pt, ok := b.points[b.session.Key]; !ok || pt.ID != b.session.OID {
			log.Debug().Str("binding", b.id).Str("session", b.session.ID).Msg("Dropping adjust session for rebound point")
			b.values.ClearOverlay(b.session.OID)
			b.session = nil
		}
	}
	for id, st := range live {
		b.values.Apply(id, st)
	}

	b.resubscribe(bound)
	b.scheduleHistory(cfg)
	b.publish()

	log.Info().
		Str("binding", b.id).
		Str("owner", b.owner).
		Int("points", len(points)).
		Int("bound", len(bound)).
		Msg("Binding resolved")
}

func (b *Binding) boundIDs() map[string]bool {
	return boundSet(b.points)
}

func boundSet(points map[string]Point) map[string]bool {
	ids := make(map[string]bool, len(points))
	for _, pt := range points {
		if pt.Bound {
			ids[pt.ID] = true
		}
	}
	return ids
}

func (b *Binding) resubscribe(bound map[string]bool) {
	ids := make([]string, 0, len(bound))
	for id := range bound {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	key := strings.Join(ids, "\n")
	if key == b.subscribed && b.unsubscribe != nil {
		return
	}

	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	b.subscribed = key
	if len(ids) == 0 {
		return
	}
	b.unsubscribe = b.client.SubscribeStates(ids, b.onState)
}

// onState runs on the subscriber's goroutine. Blocking on the queue keeps
// per-point arrival order.
func (b *Binding) onState(id string, st objects.State) {
	ctx := b.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	_ = b.loop.DoSync(ctx, func(context.Context) {
		if b.closed || (!b.boundIDs()[id] && !b.pending[id]) {
			return
		}
		if b.values.Apply(id, st) {
			b.publish()
		}
	})
}

func (b *Binding) scheduleHistory(cfg Config) {
	enabled := false
	for _, pt := range b.points {
		if pt.Bound && pt.HistoryEnabled {
			enabled = true
			break
		}
	}
	if !enabled {
		b.stopTicker()
		return
	}

	period := cfg.UpdateInterval
	if period <= 0 {
		period = DefaultUpdateInterval
	}
	if b.ticker != nil && b.ticker.period == period {
		return
	}
	b.stopTicker()
	b.ticker = startTicker(period, func() {
		go func() {
			if err := b.RefreshHistory(b.runCtx); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("binding", b.id).Msg("History refresh failed")
			}
		}()
	})
	log.Debug().Str("binding", b.id).Dur("period", period).Msg("History timer started")
}

func (b *Binding) stopTicker() {
	if b.ticker == nil {
		return
	}
	b.ticker.Stop()
	b.ticker = nil
	log.Debug().Str("binding", b.id).Msg("History timer stopped")
}

// RefreshHistory runs one refresh cycle for every history-enabled point.
// Points are fetched independently; a failure keeps that point's previous
// series. Completions are applied in arrival order.
func (b *Binding) RefreshHistory(ctx context.Context) error {
	var (
		ids      []string
		hours    int
		instance string
	)
	err := b.call(ctx, func(context.Context) error {
		if b.closed {
			return ErrClosed
		}
		seen := make(map[string]bool)
		for _, pt := range b.points {
			if pt.Bound && pt.HistoryEnabled && !seen[pt.ID] {
				seen[pt.ID] = true
				ids = append(ids, pt.ID)
			}
		}
		hours = b.cfg.TimeInterval
		instance = b.cfg.HistoryInstance
		if instance == "" {
			instance = DefaultHistoryInstance
		}
		return nil
	})
	if err != nil || len(ids) == 0 {
		return err
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			series, fetchErr := b.history.Fetch(ctx, id, instance, hours)
			_ = b.call(ctx, func(context.Context) error {
				b.applySeries(id, series, fetchErr)
				return nil
			})
		}(id)
	}
	wg.Wait()
	return nil
}

func (b *Binding) applySeries(id string, series *Series, err error) {
	if b.closed {
		log.Debug().Str("binding", b.id).Str("oid", id).Msg("Discarding history for closed binding")
		return
	}
	if !b.historyEnabled(id) {
		log.Debug().Str("binding", b.id).Str("oid", id).Msg("Discarding history for unbound point")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("binding", b.id).Str("oid", id).Msg("History fetch failed, keeping previous series")
		return
	}
	b.series[id] = series
	b.publish()
}

func (b *Binding) historyEnabled(id string) bool {
	for _, pt := range b.points {
		if pt.Bound && pt.ID == id && pt.HistoryEnabled {
			return true
		}
	}
	return false
}

// Close tears the binding down: timers and the pending resolution are
// cancelled, the live subscription is dropped and late completions are
// discarded. Must not be called from an OnChange callback.
func (b *Binding) Close() error {
	b.closeOnce.Do(func() {
		b.debounce.Close()
		if b.started.Load() {
			_ = b.loop.Call(context.Background(), func(context.Context) error {
				b.teardown()
				return nil
			})
			b.loop.Close()
			<-b.loop.Done()
			if !b.closed {
				// The loop stopped with its context before running teardown.
				b.teardown()
			}
			b.cancel()
		} else {
			b.teardown()
			b.loop.Close()
		}

		b.listenersMu.Lock()
		b.listeners = nil
		b.listenersMu.Unlock()
		log.Debug().Str("binding", b.id).Msg("Binding closed")
	})
	return nil
}

func (b *Binding) teardown() {
	b.closed = true
	b.stopTicker()
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	if b.session != nil {
		b.values.ClearOverlay(b.session.OID)
		b.session = nil
	}
}

func (b *Binding) call(ctx context.Context, fn func(context.Context) error) error {
	if !b.started.Load() {
		return ErrNotStarted
	}
	err := b.loop.Call(ctx, fn)
	if errors.Is(err, eventloop.ErrClosed) {
		return ErrClosed
	}
	return err
}

// publish stores a fresh snapshot and notifies listeners.
func (b *Binding) publish() {
	b.version++
	snap := &Snapshot{
		BindingID: b.id,
		Version:   b.version,
		Points:    make(map[string]Point, len(b.points)),
		Values:    make(map[string]Value, len(b.points)),
		Series:    make(map[string]*Series),
	}
	for key, pt := range b.points {
		snap.Points[key] = pt
		if !pt.Bound {
			continue
		}
		if v, ok := b.values.Get(pt.ID); ok {
			snap.Values[key] = v
		}
		if s, ok := b.series[pt.ID]; ok {
			snap.Series[key] = s
		}
	}
	if b.session != nil {
		s := *b.session
		snap.Session = &s
	}
	b.snap.Store(snap)

	b.listenersMu.Lock()
	listeners := slices.Clone(b.listeners)
	b.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(*snap)
	}
}

// ticker fires fn every period until stopped.
type ticker struct {
	period time.Duration
	stop   chan struct{}
	done   chan struct{}
}

func startTicker(period time.Duration, fn func()) *ticker {
	t := &ticker{
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		tk := time.NewTicker(period)
		defer tk.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tk.C:
				fn()
			}
		}
	}()
	return t
}

// Stop halts the ticker and waits for its goroutine to exit.
func (t *ticker) Stop() {
	close(t.stop)
	<-t.done
}
