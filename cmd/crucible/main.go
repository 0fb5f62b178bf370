// Crucible control plane server — hosts the REST API, the WebSocket
// streaming endpoint, and whichever platform services this process is
// configured to run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cruciblehq/crucible/pkg/aggregator"
	"github.com/cruciblehq/crucible/pkg/alerts"
	"github.com/cruciblehq/crucible/pkg/api"
	"github.com/cruciblehq/crucible/pkg/apitester"
	"github.com/cruciblehq/crucible/pkg/browser"
	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/orchestrator"
	"github.com/cruciblehq/crucible/pkg/quality"
	"github.com/cruciblehq/crucible/pkg/scenario"
	"github.com/cruciblehq/crucible/pkg/telemetry"
	"github.com/cruciblehq/crucible/pkg/version"
	"github.com/joho/godotenv"
)

// allServices is the default -services value: one process hosting the
// whole platform.
const allServices = "orchestrator,scenarios,api-tester,browser,quality,aggregator,alerts"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseServices resolves the -services flag into the hosted set.
func parseServices(csv string) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, name := range strings.Split(allServices, ",") {
		known[name] = true
	}

	hosted := make(map[string]bool)
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("unknown service %q (known: %s)", name, allServices)
		}
		hosted[name] = true
	}
	if len(hosted) == 0 {
		return nil, fmt.Errorf("at least one service must be hosted")
	}
	return hosted, nil
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	servicesFlag := flag.String("services", allServices,
		"Comma-separated list of services this process hosts")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	hosted, err := parseServices(*servicesFlag)
	if err != nil {
		slog.Error("Invalid -services flag", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting Crucible",
		"version", version.Full(),
		"config_dir", *configDir,
		"services", *servicesFlag)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Event bus and publisher. Every component shares these; the bus
	// also backs WebSocket catchup.
	bus := events.NewBus(cfg.Events.ReplaySize)
	publisher := events.NewPublisher(bus)

	// 3. Hosted services, in dependency order.
	var services api.Services

	if hosted["scenarios"] {
		scenarioSvc, err := scenario.NewService(cfg.Scenarios)
		if err != nil {
			slog.Error("Failed to initialize scenario service", "error", err)
			os.Exit(1)
		}
		scenarioSvc.Start(ctx)
		defer scenarioSvc.Stop()
		services.Scenarios = scenarioSvc
	}

	if hosted["api-tester"] {
		services.APITester = apitester.NewService(cfg.APITesting)
	}

	if hosted["browser"] {
		browserSvc, err := browser.NewService(cfg.BrowserAutomation)
		if err != nil {
			slog.Error("Failed to initialize browser service", "error", err)
			os.Exit(1)
		}
		services.Browser = browserSvc
	}

	if hosted["quality"] {
		qualitySvc, err := quality.NewService(cfg.AIQuality)
		if err != nil {
			slog.Error("Failed to initialize quality service", "error", err)
			os.Exit(1)
		}
		services.Quality = qualitySvc
	}

	if hosted["aggregator"] {
		aggregatorSvc, err := aggregator.NewService(cfg.Aggregation, bus, publisher)
		if err != nil {
			slog.Error("Failed to initialize aggregator", "error", err)
			os.Exit(1)
		}
		aggregatorSvc.Start(ctx)
		services.Aggregator = aggregatorSvc
	}

	if hosted["alerts"] {
		alertSvc, err := alerts.NewService(cfg.Notification, bus, publisher)
		if err != nil {
			slog.Error("Failed to initialize alert engine", "error", err)
			os.Exit(1)
		}
		alertSvc.Start(ctx)
		services.Alerts = alertSvc
	}

	if hosted["orchestrator"] {
		// Co-hosted executors are invoked through their interfaces
		// directly; a missing executor disables its phase.
		execs := orchestrator.Executors{}
		if services.APITester != nil {
			execs.API = services.APITester
		}
		if services.Browser != nil {
			execs.UI = services.Browser
		}
		if services.Quality != nil {
			execs.Quality = services.Quality
		}
		if services.Aggregator != nil {
			execs.Aggregator = services.Aggregator
		}
		if services.Scenarios != nil {
			execs.Scenarios = services.Scenarios
		}

		orch, err := orchestrator.NewService(cfg.Orchestrator, publisher, execs)
		if err != nil {
			slog.Error("Failed to initialize orchestrator", "error", err)
			os.Exit(1)
		}
		orch.Start(ctx)
		services.Orchestrator = orch
	}
	slog.Info("Services initialized")

	// 4. Telemetry: metrics registry, event-fed collector, tracing.
	metrics := telemetry.NewMetrics()
	collector, err := telemetry.NewCollector(bus, metrics)
	if err != nil {
		slog.Error("Failed to initialize telemetry collector", "error", err)
		os.Exit(1)
	}
	collector.Start(ctx)

	if services.Aggregator != nil {
		metrics.TrackAggregatorWindow(services.Aggregator.WindowSize)
	}
	if services.Orchestrator != nil {
		metrics.TrackActiveSessions(services.Orchestrator.ActiveSessions)
	}
	if services.Quality != nil {
		services.Quality.InstrumentJudges(metrics.RecordJudgeCall)
	}

	tracing, err := telemetry.NewTracing(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// 5. Create HTTP server
	httpServer, err := api.NewServer(cfg, services, bus, metrics)
	if err != nil {
		slog.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	// 6. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Crucible started successfully",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"services", *servicesFlag)

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown. Drain HTTP first so no new work is admitted,
	// then the orchestrator (waits for running sessions), then the
	// background consumers, the bus, and the trace exporter.
	httpCtx, httpCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	httpCancel()

	if services.Orchestrator != nil {
		services.Orchestrator.Stop()
	}
	if services.Alerts != nil {
		services.Alerts.Stop()
	}
	if services.Aggregator != nil {
		services.Aggregator.Stop()
	}
	collector.Stop()
	bus.Close()

	traceCtx, traceCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := tracing.Shutdown(traceCtx); err != nil {
		slog.Error("Trace exporter shutdown error", "error", err)
	}
	traceCancel()

	slog.Info("Shutdown complete")
}
