package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/basket/boxgate/internal/audit"
	"github.com/basket/boxgate/internal/bus"
	"github.com/basket/boxgate/internal/config"
	"github.com/basket/boxgate/internal/cron"
	"github.com/basket/boxgate/internal/gateway"
	otelPkg "github.com/basket/boxgate/internal/otel"
	"github.com/basket/boxgate/internal/relay"
	"github.com/basket/boxgate/internal/sandbox"
	"github.com/basket/boxgate/internal/telemetry"
	"github.com/basket/boxgate/internal/tools"
	"github.com/basket/boxgate/internal/upstream"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Start the gateway daemon

SUBCOMMANDS:
  %s status                   Show daemon health (/healthz)
  %s doctor [-json]           Run diagnostic checks
  %s watch <sandbox-id>       Live event viewer for one sandbox
                              Flags: -kind, -session, -command, -addr, -key

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  BOXGATE_HOME            Data directory (default: ~/.boxgate)
  SANDBOX_API_URL         Upstream sandbox API base URL
  SANDBOX_API_KEY         Upstream sandbox API key
  SANDBOX_ORG_ID          Upstream organization id

EXAMPLES:
  Start the daemon:       %s
  Check daemon health:    %s status
  Follow a sandbox:       %s watch sbx-1
  Follow command logs:    %s watch sbx-1 -kind logs -session s1 -command c1
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	loadDotEnv(".env")

	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		case "watch":
			os.Exit(runWatchCommand(ctx, args[1:]))
		case "version":
			fmt.Println(Version)
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	runDaemon(ctx, stop)
}

func runDaemon(ctx context.Context, stop context.CancelFunc) {
	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	// Audit before logger so logger init failures are still audited.
	if err := audit.Init(cfg.HomeDir); err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer func() { _ = audit.Close() }()

	auditDB, err := audit.OpenDB(cfg.HomeDir)
	if err != nil {
		fatalStartup(nil, "E_AUDIT_DB", err)
	}
	audit.SetDB(auditDB)
	defer func() {
		audit.SetDB(nil)
		_ = auditDB.Close()
	}()

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "fingerprint", cfg.Fingerprint())

	if host, _, err := net.SplitHostPort(cfg.BindAddr); err == nil {
		h := strings.TrimSpace(strings.ToLower(host))
		loopback := h == "127.0.0.1" || h == "localhost" || h == "::1"
		if !loopback && !cfg.Auth.Enabled {
			logger.Warn("auth is disabled on a non-loopback bind; anyone who can reach the port can drive your sandboxes", "bind_addr", cfg.BindAddr)
		}
	}

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		SampleRate:  cfg.Otel.SampleRate,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	eventBus := bus.New()

	api := sandbox.NewAPI(upstream.New(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		OrganizationID: cfg.Upstream.OrganizationID,
		Timeout:        cfg.UpstreamTimeout(),
		Metrics:        metrics,
	}))

	registry := tools.NewRegistry(logger, eventBus, metrics)
	if err := tools.BuildRegistry(registry, api); err != nil {
		fatalStartup(logger, "E_TOOL_REGISTRY", err)
	}
	logger.Info("startup phase", "phase", "tools_registered", "count", len(registry.List()))

	supervisor := relay.New(relay.Config{
		Ops:              api,
		Logger:           logger,
		Bus:              eventBus,
		Metrics:          metrics,
		StatusInterval:   cfg.StatusInterval(),
		SessionsInterval: cfg.SessionsInterval(),
	})

	// Config watcher: upstream credentials are immutable for the process
	// lifetime, so a changed config.yaml only gets a restart notice.
	confWatcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := confWatcher.Start(ctx); err != nil {
		fatalStartup(logger, "E_CONFIG_WATCHER_START", err)
	}
	go func() {
		for ev := range confWatcher.Events() {
			if filepath.Base(ev.Path) != "config.yaml" {
				continue
			}
			newCfg, err := config.Load()
			if err != nil {
				logger.Error("config.yaml reload failed", "error", err)
				continue
			}
			if newCfg.Fingerprint() != cfg.Fingerprint() {
				logger.Warn("config.yaml changed; restart boxgate to apply",
					"old_fingerprint", cfg.Fingerprint(), "new_fingerprint", newCfg.Fingerprint())
			}
		}
	}()

	maintenance, err := cron.NewScheduler(cron.Config{
		Expr: cfg.Maintenance.HealthProbeCron,
		Probe: func(ctx context.Context) (any, error) {
			return api.Health(ctx)
		},
		Bus:    eventBus,
		Logger: logger,
	})
	if err != nil {
		fatalStartup(logger, "E_MAINTENANCE_INIT", err)
	}
	maintenance.Start(ctx)
	defer maintenance.Stop()

	gw := gateway.New(gateway.Config{
		API:               api,
		Registry:          registry,
		Supervisor:        supervisor,
		Bus:               eventBus,
		AllowOrigins:      cfg.AllowOrigins,
		ConfigFingerprint: cfg.Fingerprint(),
		Version:           Version,
	})

	handler := gateway.RequestSizeLimitMiddleware(0)(gw.Handler())
	handler = gateway.NewCORSMiddleware(cfg.CORS)(handler)
	handler = gateway.NewAuthMiddleware(cfg.Auth).Wrap(handler)

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: handler,
	}
	serverErr := make(chan error, 1)
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	go func() {
		logger.Info("gateway listening", "addr", cfg.BindAddr, "events", "/api/events", "ws", "/ws")
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	audit.Record("startup", "daemon", "success", "listening on "+cfg.BindAddr)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("gateway server error", "error", err)
		stop()
	}

	shutdownServer(server, 5*time.Second)
	audit.Record("shutdown", "daemon", "success", "")
	logger.Info("shutdown complete")
}

// shutdownServer stops intake and waits up to timeout for open requests to
// finish. Graceful Shutdown never interrupts in-flight requests, so open
// SSE/WS channels outlive it; when the deadline lapses, Close severs their
// connections, which cancels the request contexts and tears down the
// drivers.
func shutdownServer(server *http.Server, timeout time.Duration) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
	}
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	audit.Record("fatal", "startup", reasonCode, message)

	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"boxgate","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
