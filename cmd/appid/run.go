package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/klyr/appid/internal/config"
	"github.com/klyr/appid/internal/engine"
	"github.com/klyr/appid/internal/gateway"
	"github.com/klyr/appid/internal/logging"
	"github.com/klyr/appid/internal/observability"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var modeOverride string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the inspection proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config path is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyOverrides(cfg, modeOverride)
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			return runProxy(cmd.Context(), configPath, cfg, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&modeOverride, "mode", "", "Override the mode of every route (enforce|shadow)")

	return cmd
}

func runProxy(ctx context.Context, configPath string, cfg *config.Config, log *logrus.Logger) error {
	e, err := engine.FromConfig(cfg)
	if err != nil {
		return err
	}
	holder := engine.NewHolder(e)
	log.WithFields(logrus.Fields{"signatures": e.Stats()}).Info("engine ready")

	gw, err := gateway.New(cfg, holder, log)
	if err != nil {
		return err
	}

	if cfg.Logging.IdentificationLog != "" {
		identLog, closer, err := logging.OpenIdentificationLog(cfg.ResolvePath(cfg.Logging.IdentificationLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		gw.SetIdentificationLogger(identLog)
	}

	metrics, metricsSrv := startMetricsServer(cfg, log)
	gw.SetMetrics(metrics)
	metrics.ObserveReload(e.Stats(), nil)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch.Enabled {
		watcher, err := config.NewWatcher(configPath, cfg, func(next *config.Config) {
			reloadEngine(holder, next, metrics, log)
		}, log)
		if err != nil {
			return err
		}
		watcher.Start(signalCtx)
		defer func() { _ = watcher.Stop() }()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("listen", cfg.Server.Listen).Info("proxy listening")
		if cfg.Server.TLS.Enabled {
			serverErr <- srv.ListenAndServeTLS(cfg.ResolvePath(cfg.Server.TLS.CertFile), cfg.ResolvePath(cfg.Server.TLS.KeyFile))
			return
		}
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadEngine rebuilds the engine from a reloaded configuration. Routes and
// upstreams are fixed at startup; only detection changes take effect.
func reloadEngine(holder *engine.Holder, cfg *config.Config, metrics *observability.Metrics, log logrus.FieldLogger) {
	e, err := engine.FromConfig(cfg)
	if err != nil {
		metrics.ObserveReload(engine.Stats{}, err)
		log.WithError(err).Error("engine rebuild failed, keeping previous engine")
		return
	}
	holder.Swap(e)
	metrics.ObserveReload(e.Stats(), nil)
	log.WithFields(logrus.Fields{"signatures": e.Stats()}).Info("engine reloaded")
}

func startMetricsServer(cfg *config.Config, log logrus.FieldLogger) (*observability.Metrics, *http.Server) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return metrics, srv
}

func applyOverrides(cfg *config.Config, modeOverride string) {
	if modeOverride == "" {
		return
	}
	for i := range cfg.Routes {
		cfg.Routes[i].Mode = modeOverride
	}
}
