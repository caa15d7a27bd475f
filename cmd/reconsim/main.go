package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/reconaug/internal/api"
	"github.com/ahrav/reconaug/internal/api/sim"
	"github.com/ahrav/reconaug/internal/config/fileloader"
	"github.com/ahrav/reconaug/pkg/common/logger"
	"github.com/ahrav/reconaug/pkg/common/otel"
)

var build = "develop"

const serviceType = "reconsim"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get hostname: %v\n", err)
		os.Exit(1)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	metadata := map[string]string{
		"hostname": hostname,
		"app":      serviceType,
	}

	level := logger.ParseLevel(os.Getenv(fileloader.EnvPrefix + "_LOG_LEVEL"))
	log := logger.NewWithMetadata(os.Stdout, level, serviceType, otel.GetTraceID, logEvents, metadata)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Configuration
	cfg, err := fileloader.NewFileLoader(os.Getenv(fileloader.EnvPrefix + "_CONFIG")).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	simCfg := cfg.Sim

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	_, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/readiness": {},
			"/v1/liveness":  {},
		},
		Probability:      cfg.Telemetry.SampleRatio,
		InsecureExporter: cfg.Telemetry.Insecure,
		ResourceAttributes: map[string]string{
			"library.language": "go",
		},
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(context.WithoutCancel(ctx))

	// -------------------------------------------------------------------------
	// Start API Service
	log.Info(ctx, "startup", "status", "initializing API support")

	metricCollector, err := api.NewAPIMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	tasks := sim.NewManager(sim.Config{
		StepDelay:     simCfg.StepDelay,
		TaskTTL:       simCfg.TaskTTL,
		SweepInterval: simCfg.SweepInterval,
	}, log)

	// No write timeout: event streams stay open for the life of a scan.
	srv := http.Server{
		Addr:        simCfg.Addr,
		Handler:     api.NewServer(tasks, log, api.WithMetrics(metricCollector), api.WithBuild(build)),
		ReadTimeout: simCfg.ReadTimeout,
		IdleTimeout: simCfg.IdleTimeout,
		ErrorLog:    logger.NewStdLogger(log, logger.LevelError),
	}
	// Shutdown does not interrupt hijacked or streaming responses, so open
	// event streams are released by closing the task manager.
	srv.RegisterOnShutdown(tasks.Close)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return tasks.Run(ctx) })

	g.Go(func() error {
		log.Info(ctx, "startup", "status", "api router started", "host", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	var debugSrv *http.Server
	if simCfg.DebugAddr != "" {
		debugMux, err := api.DebugMux()
		if err != nil {
			return err
		}
		debugSrv = &http.Server{
			Addr:        simCfg.DebugAddr,
			Handler:     debugMux,
			ReadTimeout: simCfg.ReadTimeout,
			ErrorLog:    logger.NewStdLogger(log, logger.LevelError),
		}
		g.Go(func() error {
			log.Info(ctx, "startup", "status", "debug router started", "host", debugSrv.Addr)
			if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server error: %w", err)
			}
			return nil
		})
	}

	// -------------------------------------------------------------------------
	// Shutdown
	g.Go(func() error {
		<-ctx.Done()
		log.Info(ctx, "shutdown", "status", "shutdown started")
		defer log.Info(ctx, "shutdown", "status", "shutdown complete")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), simCfg.ShutdownTimeout)
		defer cancel()

		if debugSrv != nil {
			_ = debugSrv.Shutdown(sctx)
		}
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})

	return g.Wait()
}
