// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tmacey/switchd/internal/config"
	"github.com/tmacey/switchd/internal/engine"
	"github.com/tmacey/switchd/internal/input"
	"github.com/tmacey/switchd/internal/notify"
	"github.com/tmacey/switchd/internal/state"
	"github.com/tmacey/switchd/internal/webhook"
)

// App is the assembled daemon: one engine, its stores, the webhook server,
// and the outbound notifiers, built from one configuration file.
type App struct {
	cfgPath string
	cfg     *config.Config // the config the process started with; the live one is Runtime().Cfg

	db        *state.DB
	store     *state.Store
	inputs    *input.Store
	engine    *engine.Engine
	webhook   *webhook.Server
	mailer    *notify.Mailer
	heartbeat *notify.Heartbeat
	viewer    *notify.Viewer
}

// New loads the configuration, opens the state database, and builds all
// services. Configuration problems are fatal here; a corrupt state database
// is not, it is set aside and the daemon starts with empty state.
func New(cfgPath string, clearHistory bool) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	rt, err := engine.BuildRuntime(cfg)
	if err != nil {
		return nil, err
	}

	mailer := notify.NewMailer(cfg.Email)

	db, err := openStateDB(cfg.Files.StateDatabase, mailer)
	if err != nil {
		return nil, err
	}

	store := state.NewStore(db)
	if clearHistory {
		if err := store.ClearHistory(); err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing history: %w", err)
		}
		log.Info().Msg("Switch change history cleared")
	}

	inputs := input.NewStore()
	eng := engine.New(rt, store, inputs)

	a := &App{
		cfgPath:   cfgPath,
		cfg:       cfg,
		db:        db,
		store:     store,
		inputs:    inputs,
		engine:    eng,
		webhook:   webhook.NewServer(cfg.Webhook, eng, inputs, store),
		mailer:    mailer,
		heartbeat: notify.NewHeartbeat(cfg.HeartbeatMonitor),
		viewer:    notify.NewViewer(cfg.General),
	}

	eng.OnPass = a.afterPass

	return a, nil
}

// Files exposes the logging and persistence section of the loaded
// configuration.
func (a *App) Files() config.FilesConfig {
	return a.cfg.Files
}

// openStateDB opens the SQLite state file. An unreadable or corrupt file is
// moved aside so the daemon can start with a fresh, empty database.
func openStateDB(path string, mailer *notify.Mailer) (*state.DB, error) {
	db, err := state.Open(path)
	if err == nil {
		return db, nil
	}

	log.Error().Err(err).Str("path", path).Msg("State database unusable, starting empty")
	_ = mailer.Send("State database reset",
		fmt.Sprintf("The state database at %s could not be opened (%v). It was moved aside and switchd started with empty state.", path, err))

	aside := path + ".corrupt"
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return nil, fmt.Errorf("state database unusable and could not be moved aside: %w", err)
	}
	return state.Open(path)
}

// Run starts all services and blocks until ctx is cancelled or a fatal
// error occurs. The webhook server failing to bind is logged and mailed but
// does not stop the reconciliation loop.
func (a *App) Run(ctx context.Context) error {
	log.Info().
		Str("app", a.cfg.General.AppName).
		Str("location", a.cfg.Location.Name).
		Str("config", a.cfgPath).
		Msg("Starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.engine.Run(ctx)
	})

	if a.cfg.Webhook.Enabled {
		g.Go(func() error {
			if err := a.webhook.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Webhook server failed, continuing on interval only")
				_ = a.mailer.Send("Webhook server failed", err.Error())
			}
			return nil
		})
	}

	g.Go(func() error {
		a.watchConfig(ctx)
		return nil
	})

	err := g.Wait()
	a.db.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// afterPass runs after every reconciliation pass.
func (a *App) afterPass(snap engine.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a.viewer.Push(ctx, a.viewerPayload(snap))
	a.heartbeat.Ping(ctx, snap.Failures == 0)
}

// viewerPayload wraps a snapshot with the context the status website shows:
// who we are, today's sun times, and the latest switch changes. Everything
// config-derived comes off the engine's current runtime so a concurrent
// reload can never produce a payload mixing old and new settings.
func (a *App) viewerPayload(snap engine.Snapshot) any {
	rt := a.engine.Runtime()
	sun := rt.Eval.Sun(snap.At)

	recent, err := a.store.Recent(20)
	if err != nil {
		log.Warn().Err(err).Msg("Reading recent history for status push failed")
	}

	return map[string]any{
		"app":      rt.Cfg.General.AppName,
		"location": rt.Cfg.Location.Name,
		"at":       snap.At,
		"dawn":     sun.Dawn,
		"dusk":     sun.Dusk,
		"outputs":  snap.Outputs,
		"events":   recent,
	}
}

// watchConfig polls the configuration file's modification time and reloads
// it when it changes. A reload that fails validation keeps the running
// configuration and sends an alert.
func (a *App) watchConfig(ctx context.Context) {
	const pollInterval = 10 * time.Second

	lastMod := modTime(a.cfgPath)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		mod := modTime(a.cfgPath)
		if mod.IsZero() || mod.Equal(lastMod) {
			continue
		}
		lastMod = mod

		log.Info().Str("config", a.cfgPath).Msg("Configuration file changed, reloading")
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			log.Error().Err(err).Msg("Reload rejected, keeping previous configuration")
			_ = a.mailer.Send("Configuration reload failed", err.Error())
			continue
		}
		rt, err := engine.BuildRuntime(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Reload rejected, keeping previous configuration")
			_ = a.mailer.Send("Configuration reload failed", err.Error())
			continue
		}

		a.engine.Swap(rt)
		log.Info().Msg("Configuration reloaded")
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
