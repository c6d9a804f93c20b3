package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/warrenflow/pkg/authgate"
	"github.com/cuemby/warrenflow/pkg/config"
	"github.com/cuemby/warrenflow/pkg/eventstore"
	"github.com/cuemby/warrenflow/pkg/httpapi"
	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/logsink"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/nodehost"
	"github.com/cuemby/warrenflow/pkg/reconciler"
	"github.com/cuemby/warrenflow/pkg/storage"
	"github.com/cuemby/warrenflow/pkg/supervisor"
	"github.com/cuemby/warrenflow/pkg/trigger"
	"github.com/cuemby/warrenflow/pkg/watcher"
	"github.com/cuemby/warrenflow/pkg/workflow"
)

var (
	watchRoots  []string
	metricsAddr string
	enablePprof bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the watcher, reconciler, workflow engine, log sink, and HTTP API",
	Long: `serve brings up every warrenflow background task under one
process: the folder watcher, the reconciler, the workflow dispatcher,
the log sink flusher, and the HTTP API. Configuration is read from the
environment (see pkg/config), with an optional .env file in the
working directory.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringSliceVar(&watchRoots, "watch", nil, "Root directories to watch (repeatable; required)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9090", "Address for the /metrics, /health, /ready, /live endpoints")
	serveCmd.Flags().BoolVar(&enablePprof, "enable-pprof", false, "Expose net/http/pprof endpoints on the metrics address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(watchRoots) == 0 {
		return fmt.Errorf("--watch is required (at least one root directory)")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	// config/workflows and config/api_keys.json are fixed relative to
	// the working directory per spec §6's on-disk layout, unlike
	// DATA_DIR's event/log/run stores, which follow the configurable
	// DATA_DIR.
	runsDir := filepath.Join(cfg.DataDir, "runs")
	const workflowsDir = "./config/workflows"
	const keysPath = "./config/api_keys.json"

	eventDB, err := storage.NewBoltEventStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer eventDB.Close()

	logDB, err := storage.NewBoltLogStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open log store: %w", err)
	}
	defer logDB.Close()

	events := eventstore.New(eventDB, cfg.Debounce(), 5)

	workflows, err := config.LoadWorkflows(workflowsDir)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}
	fmt.Printf("✓ Loaded %d workflow definition(s) from %s\n", len(workflows), workflowsDir)

	router := trigger.NewRouter()
	for id, wf := range workflows {
		router.Register(id, wf.Triggers)
	}

	runs, err := workflow.NewFileCheckpointer(runsDir)
	if err != nil {
		return fmt.Errorf("create run checkpointer: %w", err)
	}

	host := nodehost.NewHost()
	registerStubProcessors(host)

	engine := workflow.New(host, runs, workflow.Config{
		MaxParallelNodesPerRun: cfg.MaxParallelNodes,
	})

	handlerID := uuid.NewString()
	dispatcher := workflow.NewDispatcher(engine, events, router, workflows, handlerID, workflow.DispatcherConfig{
		PollInterval: time.Second,
		BatchSize:    20,
		MaxInFlight:  cfg.MaxParallelNodes,
	})

	w := watcher.New(watchRoots, watcher.Filters{IgnoreHidden: true}, cfg.Debounce(), events.Append, nil)

	recon := reconciler.New(reconciler.Config{
		Roots:    watchRoots,
		Interval: cfg.ReconcileInterval(),
		DailyTime: cfg.ReconcileDailyTime,
	}, events, eventDB, nil)

	sink := logsink.New(logDB, logsink.Config{
		CompressAfter:    time.Duration(cfg.CompressAfterDays) * 24 * time.Hour,
		RetentionPeriod:  time.Duration(cfg.LogRetentionDays) * 24 * time.Hour,
		ArchiveRetention: time.Duration(cfg.ArchiveRetentionDays) * 24 * time.Hour,
		ArchiveDir:       filepath.Join(cfg.DataDir, "archive"),
	})

	gate, err := authgate.New(keysPath)
	if err != nil {
		return fmt.Errorf("load api keys: %w", err)
	}
	stopSIGHUP := gate.WatchSIGHUP()
	defer stopSIGHUP()

	server := httpapi.NewServer(sink, engine, runs, workflows, gate)
	server.CancelGrace = cfg.CancelGrace()
	if cfg.RateLimitRPM > 0 {
		server.RateLimiter = authgate.NewRateLimiter(cfg.RateLimitRPM)
	}

	sv := supervisor.New(
		supervisor.Task{Name: "watcher", Run: runStartStop(w.Start, w.Stop)},
		supervisor.Task{Name: "reconciler", Run: runStartStopNoErr(recon.Start, recon.Stop)},
		supervisor.Task{Name: "log-sink", Run: runStartStopNoErr(sink.Start, sink.Stop)},
		supervisor.Task{Name: "workflow-dispatcher", Run: runStartStopNoErr(dispatcher.Start, dispatcher.Stop)},
		supervisor.Task{Name: "maintenance", Run: maintenanceTask(sink)},
	)
	ctx, cancel := context.WithCancel(context.Background())
	sv.Start(ctx)

	metrics.SetVersion(Version)
	metrics.RegisterComponent("watcher", true, "started")
	metrics.RegisterComponent("reconciler", true, "started")
	metrics.RegisterComponent("workflow_dispatcher", true, "started")
	metrics.RegisterComponent("log_sink", true, "started")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.Handle("/health", metrics.HealthHandler())
	metricsMux.Handle("/ready", metrics.ReadyHandler())
	metricsMux.Handle("/live", metrics.LivenessHandler())
	if enablePprof {
		registerPprof(metricsMux)
	}
	go func() {
		if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
			log.WithComponent("serve").Error().Err(err).Msg("metrics server error")
		}
	}()
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)

	httpErrCh := make(chan error, 1)
	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()
	fmt.Printf("✓ HTTP API listening on %s\n", cfg.HTTPAddr)
	fmt.Printf("✓ Watching: %v\n", watchRoots)
	fmt.Println("warrenflow is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-httpErrCh:
		fmt.Fprintf(os.Stderr, "\nHTTP server error: %v\n", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)

	cancel()
	sv.Stop()

	fmt.Println("✓ Shutdown complete")
	return nil
}

// runStartStop adapts a Start() error / Stop() component into a
// supervisor.Task.Run: Start failures are returned (triggering a
// supervised restart with backoff), a clean ctx cancellation stops the
// component and returns nil. Internal per-event/per-cycle panics
// inside the component's own goroutine are isolated by the component
// itself (see DESIGN.md's pkg/supervisor entry) rather than by this
// adapter, since recover() cannot cross a goroutine boundary.
func runStartStop(start func() error, stop func()) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := start(); err != nil {
			return err
		}
		<-ctx.Done()
		stop()
		return nil
	}
}

// runStartStopNoErr is runStartStop for components whose Start never
// fails (Watcher.Start can fail to open fsnotify; Reconciler/Sink/
// Dispatcher Start cannot).
func runStartStopNoErr(start func(), stop func()) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start()
		<-ctx.Done()
		stop()
		return nil
	}
}

// maintenanceTask runs the log sink's age-based retention pass once a
// day, independent of the flusher.
func maintenanceTask(sink *logsink.Sink) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sink.RunMaintenance(); err != nil {
					log.WithComponent("maintenance").Error().Err(err).Msg("log retention pass failed")
				}
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// registerStubProcessors wires the node_types a document pipeline
// names at their interface only: chunking, embedding, LLM calls, and
// vector store reads/writes are external collaborators with no
// concrete implementation shipped here. Each returns a non-retryable
// NodeError so a workflow referencing one fails fast and visibly
// instead of hanging. passthrough is a real, usable processor for
// workflows that just need to move data between nodes.
func registerStubProcessors(host *nodehost.Host) {
	unimplemented := func(name string) nodehost.ProcessorFunc {
		return func(ctx context.Context, req nodehost.Request) (map[string]any, error) {
			return nil, &workflow.NodeError{
				Message:   fmt.Sprintf("%s: no concrete implementation registered for this node_type", name),
				Retryable: false,
			}
		}
	}
	host.Register("chunker", unimplemented("chunker"))
	host.Register("embedder", unimplemented("embedder"))
	host.Register("llm", unimplemented("llm"))
	host.Register("vector_store", unimplemented("vector_store"))
	host.Register("retrieval", unimplemented("retrieval"))

	host.Register("passthrough", nodehost.ProcessorFunc(func(ctx context.Context, req nodehost.Request) (map[string]any, error) {
		return req.Inputs, nil
	}))
}
