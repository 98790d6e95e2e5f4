package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/osmosemcp/pkg/config"
	"github.com/NERVsystems/osmosemcp/pkg/i18n"
	"github.com/NERVsystems/osmosemcp/pkg/languages"
	"github.com/NERVsystems/osmosemcp/pkg/monitoring"
	"github.com/NERVsystems/osmosemcp/pkg/osm"
	"github.com/NERVsystems/osmosemcp/pkg/registration"
	"github.com/NERVsystems/osmosemcp/pkg/server"
	"github.com/NERVsystems/osmosemcp/pkg/tools"
	"github.com/NERVsystems/osmosemcp/pkg/tracing"
	ver "github.com/NERVsystems/osmosemcp/pkg/version"
)

const (
	checkInterval   = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

var (
	showVersionFlag bool
	debug           bool
	userAgent       string

	// OSM API client
	osmRPS   float64
	osmBurst int

	// HTTP transport flags
	enableHTTP  bool
	httpOnly    bool
	httpAddr    string
	httpBaseURL string
	httpRPS     float64
	httpBurst   int
	httpProxies []string

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string
	checkDB          bool

	// Registration flags
	enableRegistration bool
	registryURL        string
	serviceURL         string
	internalURL        string
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&userAgent, "user-agent", ver.UserAgent(), "User-Agent string for OSM API requests")

	flag.Float64Var(&osmRPS, "osm-rps", osm.DefaultRPS, "OSM API rate limit in requests per second")
	flag.IntVar(&osmBurst, "osm-burst", osm.DefaultBurst, "OSM API rate limit burst size")

	flag.BoolVar(&enableHTTP, "enable-http", false, "Enable HTTP+SSE transport and the JSON API (in addition to stdio)")
	flag.BoolVar(&httpOnly, "http-only", false, "Run HTTP transport only, skip stdio (requires --enable-http)")
	flag.StringVar(&httpAddr, "http-addr", ":7082", "HTTP server address")
	flag.StringVar(&httpBaseURL, "http-base-url", "", "Base URL for HTTP transport (auto-detected if empty)")
	flag.Float64Var(&httpRPS, "http-rps", 10, "Per-client HTTP rate limit in requests per second (0 disables)")
	flag.IntVar(&httpBurst, "http-burst", 20, "Per-client HTTP rate limit burst size")
	flag.StringSliceVar(&httpProxies, "trusted-proxies", nil, "Reverse proxy addresses or CIDRs whose X-Forwarded-* headers are trusted")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health checks")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")
	flag.BoolVar(&checkDB, "check-db", false, "Connect to the frontend database at startup and monitor it")

	flag.BoolVar(&enableRegistration, "enable-registration", false, "Announce the service to a service registry")
	flag.StringVar(&registryURL, "registry-url", "", "Service registry URL (e.g., http://registry:7083)")
	flag.StringVar(&serviceURL, "service-url", "", "External URL where this service is accessible")
	flag.StringVar(&internalURL, "internal-url", "", "Internal URL for container environments")
}

func main() {
	flag.Parse()

	if showVersionFlag {
		showVersion()
		return
	}

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if httpOnly && !enableHTTP {
		logger.Error("--http-only requires --enable-http")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, logger *slog.Logger) error {
	shutdownTracing, err := tracing.InitTracing(ctx, ver.BuildVersion)
	if err != nil {
		// tracing is optional
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
		if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrUserLookup) {
			return fmt.Errorf("cannot determine results directory: %w", err)
		}
		return err
	}
	if _, err := cfg.PoolConfig(); err != nil {
		return err
	}
	logger.Info("configuration loaded", "config", cfg.Redacted())

	registry := languages.Default()
	negotiator := i18n.NewNegotiator(registry)
	negotiator.SetLogger(logger)

	clientOpts := []osm.Option{
		osm.WithUserAgent(userAgent),
		osm.WithRateLimit(osmRPS, osmBurst),
		osm.WithLogger(logger),
	}

	var healthChecker *monitoring.HealthChecker
	if enableMonitoring {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()
		clientOpts = append(clientOpts, osm.WithMonitoringHooks(monitoringHooks()))
	}

	client := osm.NewClient(cfg.RemoteURLRead, clientOpts...)

	logger.Info("starting Osmose MCP server",
		"version", ver.BuildVersion,
		"debug", debug,
		"user_agent", userAgent,
		"osm_api", client.BaseURL(),
		"osm_rps", osmRPS,
		"osm_burst", osmBurst,
		"http_enabled", enableHTTP,
		"monitoring_enabled", enableMonitoring,
		"monitoring_addr", monitoringAddr)

	s, err := server.NewServer(logger, tools.Deps{
		Languages:  registry,
		Negotiator: negotiator,
		Config:     cfg,
		OSM:        client,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if healthChecker != nil {
		stopMonitors, err := startConnectionMonitoring(ctx, healthChecker, client, cfg, logger)
		if err != nil {
			return err
		}
		defer stopMonitors()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if enableMonitoring {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", healthChecker.HealthHandler())

		monitoringServer := &http.Server{
			Addr:              monitoringAddr,
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting Prometheus metrics server", "addr", monitoringAddr)
			if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("monitoring server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return monitoringServer.Shutdown(shutdownCtx)
		})
	}

	if enableHTTP {
		proxies, err := server.ParseTrustedProxies(httpProxies)
		if err != nil {
			return err
		}

		transportConfig := server.DefaultHTTPTransportConfig()
		transportConfig.Addr = httpAddr
		transportConfig.BaseURL = httpBaseURL
		transportConfig.RateLimit = httpRPS
		transportConfig.RateBurst = httpBurst
		transportConfig.TrustedProxies = proxies

		api := server.NewHandler(logger, s.Tools())
		httpTransport := server.NewHTTPTransport(s.GetMCPServer(), api, transportConfig, logger)
		if healthChecker != nil {
			httpTransport.SetHealthChecker(healthChecker)
		}

		g.Go(func() error {
			logger.Info("transport_enabled", "type", "http", "addr", httpAddr)
			return httpTransport.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpTransport.Shutdown(shutdownCtx)
		})
	}

	if enableRegistration {
		announcer, err := newAnnouncer(s.Tools(), logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return announcer.Run(ctx) })
	}

	if !httpOnly {
		g.Go(func() error {
			logger.Info("transport_enabled", "type", "stdio")
			err := s.RunWithContext(ctx)
			if enableHTTP {
				// stdin closing must not take the HTTP transport down
				if err != nil {
					logger.Error("stdio transport error", "error", err)
				}
				return nil
			}
			if err == nil {
				// stdin closed: nothing left to serve
				cancel()
			}
			return err
		})
	}

	logger.Info("server_ready", "transports", transports())
	return g.Wait()
}

// monitoringHooks reports OSM client activity to Prometheus.
func monitoringHooks() *osm.MonitoringHooks {
	return &osm.MonitoringHooks{
		OnResponse: func(service, operation string, duration time.Duration, success bool) {
			monitoring.RecordExternalServiceRequest(service, operation, duration, success)
		},
		OnRateLimit: func(service string, waitTime time.Duration) {
			monitoring.RecordRateLimitWait(service, waitTime)
			monitoring.RecordRateLimitExceeded(service)
		},
		OnError: func(service, errorType string) {
			monitoring.RecordError(service, errorType)
		},
	}
}

// startConnectionMonitoring probes the OSM API and, with --check-db, the
// frontend database.
func startConnectionMonitoring(ctx context.Context, hc *monitoring.HealthChecker, client *osm.Client, cfg *config.Config, logger *slog.Logger) (func(), error) {
	monitors := []*monitoring.ConnectionMonitor{
		monitoring.NewConnectionMonitor(tracing.ServiceOSMAPI, hc, client.CheckHealth, checkInterval),
	}
	names := []string{tracing.ServiceOSMAPI}

	var closeDB func()
	if checkDB {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := cfg.Connect(connectCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		closeDB = pool.Close
		monitors = append(monitors, monitoring.NewConnectionMonitor(tracing.ServicePostgres, hc, pool.Ping, checkInterval))
		names = append(names, tracing.ServicePostgres)
	}

	for _, m := range monitors {
		m.Start()
	}
	logger.Info("started connection monitoring",
		"services", names,
		"check_interval", checkInterval)

	return func() {
		for _, m := range monitors {
			m.Stop()
		}
		if closeDB != nil {
			closeDB()
		}
	}, nil
}

// newAnnouncer describes this server to the service registry.
func newAnnouncer(toolRegistry *tools.Registry, logger *slog.Logger) (*registration.Announcer, error) {
	if registryURL == "" {
		return nil, errors.New("--enable-registration requires --registry-url")
	}

	svcURL := serviceURL
	if svcURL == "" && enableHTTP {
		svcURL = "http://localhost" + httpAddr
	}
	healthURL := ""
	if svcURL != "" {
		healthURL = svcURL + "/health"
	}

	toolNames := toolRegistry.GetToolNames()
	sort.Strings(toolNames)

	svc := registration.Service{
		Name:         monitoring.ServiceName,
		URL:          svcURL,
		HealthURL:    healthURL,
		InternalURL:  internalURL,
		Version:      ver.BuildVersion,
		Capabilities: []string{"languages", "i18n", "dates", "osm-elements"},
		Tools:        toolNames,
		Metadata: map[string]interface{}{
			"transport": map[string]bool{"stdio": !httpOnly, "http": enableHTTP},
		},
	}

	logger.Info("registration enabled",
		"registry_url", registryURL,
		"service_url", svcURL,
		"tool_count", len(toolNames))
	return registration.NewAnnouncer(registryURL, svc, registration.WithLogger(logger)), nil
}

func transports() []string {
	var t []string
	if !httpOnly {
		t = append(t, "stdio")
	}
	if enableHTTP {
		t = append(t, "http")
	}
	return t
}

// showVersion prints build information.
func showVersion() {
	info := ver.Info()
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+info[k])
	}
	fmt.Println("osmosemcp " + strings.Join(parts, " "))
}
