// Package app wires the subsystems into a running application.
//
// New creates and connects everything from config: providers, the transcript
// store, the session manager, and the web server. Run serves until the
// context ends, then winds down live sessions and closes the store. For
// testing, inject doubles via the functional options.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akrusz/meditation-pal/internal/config"
	"github.com/akrusz/meditation-pal/internal/facilitation"
	"github.com/akrusz/meditation-pal/internal/health"
	"github.com/akrusz/meditation-pal/internal/observe"
	"github.com/akrusz/meditation-pal/internal/session"
	"github.com/akrusz/meditation-pal/internal/transcript"
	tsmemory "github.com/akrusz/meditation-pal/internal/transcript/mock"
	"github.com/akrusz/meditation-pal/internal/transcript/postgres"
	"github.com/akrusz/meditation-pal/internal/web"
)

// stopTimeout bounds the wind-down of live sessions during shutdown.
const stopTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	store   transcript.Store
	manager *session.Manager
	server  *web.Server

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a transcript store instead of creating one from config.
func WithStore(s transcript.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics set instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main (via [NewProviders]).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	prompts, err := facilitation.NewBuilder(cfg.PromptConfig())
	if err != nil {
		return nil, fmt.Errorf("app: prompt builder: %w", err)
	}

	if a.store == nil {
		if dsn := cfg.Transcripts.PostgresDSN; dsn != "" {
			pg, err := postgres.New(ctx, dsn)
			if err != nil {
				return nil, fmt.Errorf("app: transcript store: %w", err)
			}
			a.store = pg
			a.closers = append(a.closers, func() error { pg.Close(); return nil })
		} else {
			slog.Warn("no postgres_dsn configured, transcripts are held in memory only")
			a.store = tsmemory.NewStore()
		}
	}

	a.manager = session.NewManager(session.ManagerConfig{
		Config:  cfg,
		Prompts: prompts,
		STT:     providers.STT,
		TTS:     providers.TTS,
		LLM:     providers.LLM,
		Store:   a.store,
		Metrics: a.metrics,
	})

	a.server = web.New(web.Config{
		Server:  cfg.Server,
		Audio:   cfg.Audio,
		Manager: a.manager,
		Store:   a.store,
		Health: health.New(health.Checker{
			Name: "transcripts",
			Check: func(ctx context.Context) error {
				_, err := a.store.List(ctx, 1)
				return err
			},
		}),
		Metrics: a.metrics,
	})

	return a, nil
}

// Run serves until ctx is cancelled, then winds down live sessions and
// releases resources. It always returns the serve error, nil on a clean
// shutdown.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	a.manager.StopAll(stopCtx)
	a.Shutdown()
	return err
}

// Shutdown releases held resources. Safe to call more than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				slog.Error("shutdown closer failed", "err", err)
			}
		}
	})
}

// Manager exposes the session manager, for tests.
func (a *App) Manager() *session.Manager { return a.manager }

// Server exposes the web server, for tests.
func (a *App) Server() *web.Server { return a.server }
