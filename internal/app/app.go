package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/config"
)

// App runs the dashboard daemon: object store, mounted widgets, ledger and
// HTTP surface.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New wires the services. Nothing runs until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Widgets returns the ids of the mounted widgets.
func (a *App) Widgets() []string {
	return a.services.Dashboard.IDs()
}

// Start mounts the widgets declared by the script and starts serving.
// A service that fails after Start cancels the app context.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	err := a.services.Start(a.ctx, func(err error) {
		log.Error().Err(err).Msg("Service stopped, shutting down")
		a.cancel()
	})
	if err != nil {
		return err
	}

	ev := log.Info().
		Str("script", a.cfg.Script).
		Int("widgets", len(a.Widgets())).
		Bool("ledger", a.services.Ledger != nil)
	if a.services.Web != nil {
		ev = ev.Str("http", a.services.Web.Addr())
	}
	ev.Msg("visbind started")
	return nil
}

// Reload re-runs the declaration script. Widgets whose declaration is
// unchanged keep their bindings; on error the mounted set is left as is.
func (a *App) Reload() error {
	before := len(a.Widgets())
	if err := a.services.LoadScript(a.ctx); err != nil {
		log.Error().Err(err).Str("script", a.cfg.Script).Msg("Reload failed, keeping current widgets")
		return err
	}
	log.Info().
		Str("script", a.cfg.Script).
		Int("before", before).
		Int("widgets", len(a.Widgets())).
		Msg("Dashboard reloaded")
	return nil
}

// Stop unmounts every widget and releases the store, bus and database.
func (a *App) Stop() error {
	log.Info().Int("widgets", len(a.Widgets())).Msg("Shutting down")
	if a.cancel != nil {
		a.cancel()
	}
	return a.services.Stop()
}

// Wait blocks until the app context ends, reloading the script on every
// value from reload.
func (a *App) Wait(reload <-chan os.Signal) {
	if a.ctx == nil {
		return
	}
	for {
		select {
		case <-a.ctx.Done():
			return
		case sig := <-reload:
			log.Info().Str("signal", sig.String()).Msg("Reload requested")
			_ = a.Reload()
		}
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		log.Warn().Msg("Shutdown signal received")
		cancel()
	}()
	return ctx
}

// ReloadSignals delivers SIGHUP.
func ReloadSignals() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	return ch
}
