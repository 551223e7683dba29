package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/nhle/labconsole/internal/api"
	"github.com/nhle/labconsole/internal/app"
	"github.com/nhle/labconsole/internal/credential"
	"github.com/nhle/labconsole/internal/live"
	"github.com/nhle/labconsole/internal/logger"
	"github.com/nhle/labconsole/internal/metrics"
	"github.com/nhle/labconsole/internal/model"
	"github.com/nhle/labconsole/internal/notify"
	"github.com/nhle/labconsole/internal/store"
)

func runWatch(cfg *model.AppConfig, args []string) error {
	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	metricsAddr := flags.String("metrics-addr", cfg.Metrics.Addr, "serve Prometheus metrics on this address")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// The TUI owns the terminal; log to the file only.
	log := logger.New(logger.Options{FilePath: cfg.Log.File, Dev: cfg.Log.Dev})
	defer log.Sync()

	ring, err := credential.Open()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	wsURL, err := live.URL(cfg.API.BaseURL, cfg.Live.Path)
	if err != nil {
		return err
	}

	states, onState := live.StateFeed()
	stream := live.NewStream(live.Config{
		URL:           wsURL,
		Sessions:      ring,
		NewBackOff:    live.NewBackOffFactory(cfg.Live.Reconnect),
		OnStateChange: onState,
		Logger:        log,
		Metrics:       m,
	})

	client := api.NewClient(cfg.API.BaseURL, ring, time.Duration(cfg.API.TimeoutSec)*time.Second, cfg.API.MaxRetries)
	bus := notify.NewBus(log)
	defer bus.Close()
	toasts := notify.NewToastBoard(time.Duration(cfg.Display.ToastSec) * time.Second)
	tracker := &app.ViewTracker{}

	notifications := notify.New(notify.Options{
		Backend:     client,
		Live:        stream,
		Sessions:    ring,
		Toaster:     toasts,
		OnLoginView: tracker.OnLoginView,
		Bus:         bus,
		Logger:      log,
		Metrics:     m,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mirrorDone := startMirror(ctx, cfg.Cache.DBPath, bus, log)

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics", "metrics server stopped", map[string]interface{}{"error": err})
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	root := app.New(ctx, app.Deps{
		Store:   notifications,
		Bus:     bus,
		Toasts:  toasts,
		Tracker: tracker,
		States:  states,
	})

	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()

	notifications.Stop()
	cancel()
	<-mirrorDone

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("tui error: %w", runErr)
	}
	return nil
}

// startMirror mirrors snapshots into the SQLite file at dbPath until ctx
// is done. The returned channel closes once the mirror has stopped. A
// mirror that cannot be opened is logged and skipped.
func startMirror(ctx context.Context, dbPath string, bus *notify.Bus, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if dbPath == "" {
		close(done)
		return done
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Warn("mirror", "cannot create mirror directory", map[string]interface{}{"error": err})
		close(done)
		return done
	}
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Warn("mirror", "cannot open mirror", map[string]interface{}{"error": err})
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer db.Close()
		if err := notify.Mirror(ctx, bus, db, log); err != nil {
			log.Warn("mirror", "mirror stopped", map[string]interface{}{"error": err})
		}
	}()
	return done
}
