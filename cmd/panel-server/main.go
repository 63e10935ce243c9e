// panel-server runs the de-icing control panel backend: the persisted state
// owner, the periodic simulation, the HTTP/websocket API, and Prometheus
// metrics on a separate listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/api"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/config"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/logging"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/observability"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/state"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/store"
	"github.com/pr-poehali-dev/heated-roof-strips-system/timectrl"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "panel.yaml", "path to the YAML configuration file")
	listenAddr := flag.String("listen-addr", "", "override the API listen address")
	metricsAddr := flag.String("metrics-addr", "", "override the Prometheus listen address")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewPanelCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Error(ctx, "failed to open snapshot store",
			logging.String("backend", cfg.Store.Backend), logging.Err(err))
		os.Exit(1)
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	panel, err := state.New(ctx, log,
		state.WithStore(st),
		state.WithMetricsRecorder(collector),
		state.WithRand(rand.New(rand.NewSource(seed))),
	)
	if err != nil {
		log.Error(ctx, "failed to restore panel state", logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "panel session started",
		logging.String("session", panel.SessionID()),
		logging.String("store", cfg.Store.Backend))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simCtrl := timectrl.NewTimeController(panel.DisplayTime(), time.Duration(cfg.Simulation.TickPeriod), timectrl.RealTime)
	simCtrl.AddListener(func(now time.Time) {
		panel.RunSimulationTick(runCtx, now)
	})
	simDone := simCtrl.Start(runCtx)

	clockCtrl := timectrl.NewTimeController(panel.DisplayTime(), time.Duration(cfg.Simulation.ClockPeriod), timectrl.RealTime)
	clockCtrl.AddListener(panel.SetDisplayTime)
	clockDone := clockCtrl.Start(runCtx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, log, collector)
	hub := api.NewStreamHub(panel, log)
	api.RegisterRoutes(e, api.NewHandler(panel, log, version), hub)

	log.Info(ctx, "starting panel API server", logging.String("addr", cfg.ListenAddr))
	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "API server exited", logging.Err(err))
			stop()
		}
	}()

	<-runCtx.Done()
	log.Info(ctx, "shutting down panel server")

	<-simDone
	<-clockDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "API server shutdown", logging.Err(err))
	}

	// Final write so a clean stop never loses the last few seconds of drift.
	panel.Flush(context.Background())
	if err := st.Close(); err != nil {
		log.Warn(ctx, "closing snapshot store", logging.Err(err))
	}

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func openStore(cfg config.StoreConfig) (store.SnapshotStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendFile:
		return store.NewFileStore(cfg.Path), nil
	case config.BackendEtcd:
		return store.NewEtcdStore(cfg.EtcdEndpoints, cfg.EtcdKey)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}

func serveMetrics(addr string, collector *observability.PanelCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
