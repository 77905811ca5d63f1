package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/visbind/internal/backend/memory"
	"github.com/dokzlo13/visbind/internal/binding"
	"github.com/dokzlo13/visbind/internal/config"
	"github.com/dokzlo13/visbind/internal/dashboard"
	"github.com/dokzlo13/visbind/internal/db"
	"github.com/dokzlo13/visbind/internal/eventbus"
	"github.com/dokzlo13/visbind/internal/ledger"
	luart "github.com/dokzlo13/visbind/internal/lua"
	"github.com/dokzlo13/visbind/internal/web"
	"github.com/dokzlo13/visbind/internal/widgets"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Object store
	Store    *memory.Store
	simulate []string

	// Widgets
	Dashboard *dashboard.Host
	Web       *web.Server
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// The write ledger is optional
	var journal binding.Journal
	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		journal = s.Ledger
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Store = memory.New(s.Bus, memory.Options{
		Instance:  cfg.History.Instance,
		Retention: cfg.Backend.Retention.Duration(),
	})
	if cfg.Backend.Fixtures != "" {
		fx, err := s.Store.LoadFile(cfg.Backend.Fixtures)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.simulate = fx.Simulate
	}

	var limiter *rate.Limiter
	if cfg.History.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.History.RateLimitRPS), cfg.History.Burst)
	}

	s.Dashboard = dashboard.New(s.Store, dashboard.Options{
		Journal:  journal,
		Debounce: cfg.Binding.Debounce.Duration(),
		History: binding.SynchronizerConfig{
			Step:      cfg.History.Step.Duration(),
			Aggregate: cfg.History.Aggregate,
			Limiter:   limiter,
		},
		HistoryInstance: cfg.History.Instance,
		Language:        cfg.System.Language,
		TimeInterval:    cfg.Binding.TimeInterval,
		UpdateInterval:  cfg.Binding.UpdateInterval.Duration(),
		QueueSize:       cfg.Binding.QueueSize,
		Formatter:       s.formatter(),
	})

	if cfg.Server.Enabled {
		var reader web.LedgerReader
		if s.Ledger != nil {
			reader = s.Ledger
		}
		s.Web = web.NewServer(cfg.Server.Host, cfg.Server.Port, s.Dashboard, reader, cfg.Server.AllowedOrigins)
	}

	return s, nil
}

func (s *Services) formatter() widgets.Formatter {
	return widgets.Formatter{FloatComma: s.cfg.System.FloatComma, Language: s.cfg.System.Language}
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service cannot continue.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Dashboard.Start(ctx)

	// Mount the widgets the script declares
	if err := s.LoadScript(ctx); err != nil {
		return err
	}

	if interval := s.cfg.Backend.SimulateInterval.Duration(); interval > 0 {
		go s.Store.Simulate(ctx, s.simulate, interval)
	}

	if s.Ledger != nil {
		go s.runLedgerCleanup(ctx)
	}

	if s.Web != nil {
		go func() {
			if err := s.Web.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				onFatalError(err)
			}
		}()
	}

	return nil
}

// LoadScript runs the declaration script and applies its widgets. On a
// reload, unchanged widgets keep their bindings.
func (s *Services) LoadScript(ctx context.Context) error {
	declared, formatter, err := luart.Load(s.cfg.Script, s.formatter())
	if err != nil {
		return err
	}
	s.Dashboard.SetFormatter(formatter)

	if err := s.Dashboard.Apply(ctx, declared); err != nil {
		// Widgets that failed are logged by the dashboard; the rest run
		log.Warn().Err(err).Msg("Some widgets failed to mount")
	}
	log.Info().Int("widgets", len(s.Dashboard.IDs())).Msg("Dashboard ready")
	return nil
}

// runLedgerCleanup applies the ledger retention policy periodically.
func (s *Services) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Ledger.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("Ledger cleanup")
			}
		}
	}
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Dashboard != nil {
		if err := s.Dashboard.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing dashboard")
		}
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
