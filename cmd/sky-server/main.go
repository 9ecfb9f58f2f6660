// Command sky-server runs the sky clock and serves it over gRPC, a
// websocket feed and a Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/internal/config"
	"github.com/signalsfoundry/thyrannic-sky/internal/ephemeris"
	"github.com/signalsfoundry/thyrannic-sky/internal/feed"
	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
	"github.com/signalsfoundry/thyrannic-sky/internal/observability"
	"github.com/signalsfoundry/thyrannic-sky/internal/skyapi"
	"github.com/signalsfoundry/thyrannic-sky/kb"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML or JSON config file (default $SKY_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sky-server: %v\n", err)
		os.Exit(1)
	}
	log := cfg.Log.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}
	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "sky-server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. The gRPC server uses lis; the HTTP
// server is started only when cfg.Server.HTTPAddr is set.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := observability.NewSkyCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	store := kb.NewKnowledgeBase()
	summary, err := core.BuildScenario(store, cfg.Sky)
	if err != nil {
		return fmt.Errorf("build sky: %w", err)
	}
	log.Info(ctx, "sky loaded",
		logging.String("observer", summary.Observer),
		logging.String("primary", summary.PrimaryID),
		logging.Int("bodies", len(summary.BodyIDs)),
	)

	engine := core.NewSimulationEngine(store,
		core.WithLogger(log.With(logging.String("component", "engine"))),
		core.WithMetricsRecorder(collector),
	)

	tc, err := cfg.Clock.Controller()
	if err != nil {
		return err
	}

	hub := feed.NewHub(
		feed.WithController(tc),
		feed.WithClientGauge(collector),
		feed.WithLogger(log.With(logging.String("component", "feed"))),
		feed.WithRateLimit(rate.Limit(cfg.Server.FeedRate), cfg.Server.FeedBurst),
	)
	defer hub.Close()

	var rec *ephemeris.Recorder
	if cfg.Ephemeris.Enabled {
		rec, err = ephemeris.Open(cfg.Ephemeris.Path,
			ephemeris.WithLogger(log),
			ephemeris.WithFrameCounter(collector),
		)
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	engine.RegisterTickListener(func(timeValue float64) {
		frame := core.NewFrame(timeValue, store.ListBodies())
		if err := hub.Broadcast(frame); err != nil {
			log.Warn(ctx, "feed broadcast skipped", logging.Err(err))
		}
		if rec != nil {
			if err := rec.Record(ctx, frame); err != nil {
				log.Warn(ctx, "ephemeris record failed", logging.Err(err))
			}
		}
	})
	tc.AddListener(func(now calendar.DateTime) {
		_ = engine.TickContext(ctx, now.Value())
	})
	if err := engine.TickContext(ctx, tc.Now().Value()); err != nil {
		return err
	}

	server := skyapi.NewServer(log, collector)
	skyapi.RegisterSkyServiceServer(server, skyapi.NewService(engine, log))
	grpcErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting sky gRPC server", logging.String("addr", lis.Addr().String()))
		grpcErr <- server.Serve(lis)
	}()

	httpSrv := serveHTTP(ctx, cfg.Server.HTTPAddr, collector, hub, log)

	clockCtx, stopClock := context.WithCancel(ctx)
	clockDone := tc.Start(clockCtx, cfg.Clock.Steps)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-grpcErr:
	}

	log.Info(context.Background(), "shutting down sky server")
	stopClock()
	<-clockDone
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if serveErr != nil && !errors.Is(serveErr, net.ErrClosed) {
		return serveErr
	}
	return nil
}

func serveHTTP(ctx context.Context, addr string, collector *observability.SkyCollector, hub *feed.Hub, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(collector, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "http server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving metrics and sky feed", logging.String("addr", addr))
	return srv
}

func newMux(collector *observability.SkyCollector, hub *feed.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/ws/sky", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
