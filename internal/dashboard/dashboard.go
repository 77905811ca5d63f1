// Package dashboard hosts widgets. Each mounted widget owns one binding;
// the host keeps bindings in step with widget declarations, renders views
// and routes control actions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/binding"
	"github.com/dokzlo13/visbind/internal/widgets"
)

var (
	// ErrNotFound is returned for an unknown widget id.
	ErrNotFound = errors.New("widget not found")
	// ErrExists is returned when mounting an id twice.
	ErrExists = errors.New("widget already mounted")
	// ErrNotStarted is returned when mounting before Start.
	ErrNotStarted = errors.New("dashboard not started")
)

// Options configures the bindings the host creates. Zero values fall back
// to the binding defaults.
type Options struct {
	Journal         binding.Journal
	Debounce        time.Duration
	History         binding.SynchronizerConfig
	HistoryInstance string
	Language        string
	TimeInterval    int
	UpdateInterval  time.Duration
	QueueSize       int
	Formatter       widgets.Formatter
}

// View is a rendered widget.
type View struct {
	ID      string       `json:"id"`
	Kind    widgets.Kind `json:"kind"`
	Version uint64       `json:"version"`
	View    any          `json:"view"`
}

type mount struct {
	widget  widgets.Widget
	binding *binding.Binding
}

// Host mounts widgets against one object store.
type Host struct {
	client binding.Client
	opts   Options

	mu        sync.RWMutex
	ctx       context.Context
	mounted   map[string]*mount
	order     []string
	formatter widgets.Formatter

	listenersMu sync.Mutex
	listeners   map[uint64]func(View)
	nextID      uint64
}

// New creates a host. Call Start before mounting.
func New(client binding.Client, opts Options) *Host {
	return &Host{
		client:    client,
		opts:      opts,
		mounted:   make(map[string]*mount),
		formatter: opts.Formatter,
		listeners: make(map[uint64]func(View)),
	}
}

// Start sets the context bindings run under.
func (h *Host) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = ctx
}

// config fills the host defaults into a widget's binding configuration.
func (h *Host) config(w widgets.Widget) binding.Config {
	cfg := w.Binding()
	if cfg.HistoryInstance == "" {
		cfg.HistoryInstance = h.opts.HistoryInstance
	}
	if cfg.Language == "" {
		cfg.Language = h.opts.Language
	}
	if cfg.TimeInterval == 0 {
		cfg.TimeInterval = h.opts.TimeInterval
	}
	if cfg.UpdateInterval == 0 {
		cfg.UpdateInterval = h.opts.UpdateInterval
	}
	return cfg
}

// Mount creates, starts and resolves a binding for w.
func (h *Host) Mount(ctx context.Context, w widgets.Widget) error {
	h.mu.Lock()
	if h.ctx == nil {
		h.mu.Unlock()
		return ErrNotStarted
	}
	if _, ok := h.mounted[w.ID()]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, w.ID())
	}

	b := binding.New(h.config(w), h.client, binding.Options{
		Owner:     w.ID(),
		Journal:   h.opts.Journal,
		Debounce:  h.opts.Debounce,
		History:   h.opts.History,
		QueueSize: h.opts.QueueSize,
	})
	m := &mount{widget: w, binding: b}
	h.mounted[w.ID()] = m
	h.order = append(h.order, w.ID())
	runCtx := h.ctx
	h.mu.Unlock()

	id := w.ID()
	b.OnChange(func(snap binding.Snapshot) {
		if v, ok := h.render(id, snap); ok {
			h.notify(v)
		}
	})
	b.Start(runCtx)

	log.Info().Str("widget", id).Str("kind", string(w.Kind())).Str("binding", b.ID()).Msg("Widget mounted")

	if err := b.Resolve(ctx); err != nil {
		return fmt.Errorf("resolve %s: %w", id, err)
	}
	return nil
}

// Update replaces the declaration of a mounted widget. Binding changes are
// debounced by the binding; a kind change remounts the widget.
func (h *Host) Update(ctx context.Context, w widgets.Widget) error {
	h.mu.Lock()
	m, ok := h.mounted[w.ID()]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, w.ID())
	}
	if m.widget.Kind() != w.Kind() {
		h.mu.Unlock()
		if err := h.Unmount(w.ID()); err != nil {
			return err
		}
		return h.Mount(ctx, w)
	}
	m.widget = w
	b := m.binding
	h.mu.Unlock()

	if err := b.Update(ctx, h.config(w)); err != nil {
		return fmt.Errorf("update %s: %w", w.ID(), err)
	}
	// the view can change without the binding changing
	if v, ok := h.render(w.ID(), b.Snapshot()); ok {
		h.notify(v)
	}
	return nil
}

// Apply mounts, updates and unmounts widgets so the host matches ws.
// Errors are collected; one failing widget does not stop the others.
func (h *Host) Apply(ctx context.Context, ws []widgets.Widget) error {
	want := make(map[string]bool, len(ws))
	for _, w := range ws {
		want[w.ID()] = true
	}

	var errs []error
	for _, id := range h.IDs() {
		if !want[id] {
			if err := h.Unmount(id); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, w := range ws {
		h.mu.RLock()
		_, exists := h.mounted[w.ID()]
		h.mu.RUnlock()

		var err error
		if exists {
			err = h.Update(ctx, w)
		} else {
			err = h.Mount(ctx, w)
		}
		if err != nil {
			log.Error().Err(err).Str("widget", w.ID()).Msg("Failed to apply widget")
			errs = append(errs, err)
		}
	}

	h.mu.Lock()
	order := make([]string, 0, len(ws))
	for _, w := range ws {
		if _, ok := h.mounted[w.ID()]; ok {
			order = append(order, w.ID())
		}
	}
	h.order = order
	h.mu.Unlock()

	return errors.Join(errs...)
}

// Unmount tears down a widget's binding.
func (h *Host) Unmount(id string) error {
	h.mu.Lock()
	m, ok := h.mounted[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(h.mounted, id)
	for i, oid := range h.order {
		if oid == id {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	log.Info().Str("widget", id).Msg("Widget unmounted")
	return m.binding.Close()
}

// IDs lists mounted widgets in display order.
func (h *Host) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.order...)
}

// View renders one widget.
func (h *Host) View(id string) (View, error) {
	h.mu.RLock()
	m, ok := h.mounted[id]
	h.mu.RUnlock()
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v, ok := h.render(id, m.binding.Snapshot())
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, nil
}

// Views renders every widget in display order.
func (h *Host) Views() []View {
	var out []View
	for _, id := range h.IDs() {
		if v, err := h.View(id); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Control performs a user action on a widget.
func (h *Host) Control(ctx context.Context, id string, a widgets.Action) (widgets.Result, error) {
	h.mu.RLock()
	m, ok := h.mounted[id]
	h.mu.RUnlock()
	if !ok {
		return widgets.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	res, err := m.widget.Control(ctx, m.binding, a)
	if err != nil {
		log.Debug().Err(err).Str("widget", id).Str("action", a.Type).Msg("Control action failed")
		return res, err
	}
	log.Debug().Str("widget", id).Str("action", a.Type).Str("key", a.Key).Msg("Control action applied")
	return res, nil
}

// SetFormatter changes how values are rendered and re-renders every view.
func (h *Host) SetFormatter(f widgets.Formatter) {
	h.mu.Lock()
	h.formatter = f
	h.mu.Unlock()

	for _, v := range h.Views() {
		h.notify(v)
	}
}

// Subscribe registers fn to receive every re-rendered view. fn runs on a
// binding's loop and must not block.
func (h *Host) Subscribe(fn func(View)) (unsubscribe func()) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()

	h.nextID++
	id := h.nextID
	h.listeners[id] = fn
	return func() {
		h.listenersMu.Lock()
		defer h.listenersMu.Unlock()
		delete(h.listeners, id)
	}
}

// Close unmounts every widget.
func (h *Host) Close() error {
	var errs []error
	for _, id := range h.IDs() {
		if err := h.Unmount(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) render(id string, snap binding.Snapshot) (View, bool) {
	h.mu.RLock()
	m, ok := h.mounted[id]
	f := h.formatter
	h.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	return View{
		ID:      id,
		Kind:    m.widget.Kind(),
		Version: snap.Version,
		View:    m.widget.View(snap, f),
	}, true
}

func (h *Host) notify(v View) {
	h.listenersMu.Lock()
	listeners := make([]func(View), 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
