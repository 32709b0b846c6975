// goswitch daemon -- embedded SDN switch with an OpenFlow 1.0 datapath.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goswitch/internal/config"
	"github.com/dantte-lp/goswitch/internal/datapath"
	swmetrics "github.com/dantte-lp/goswitch/internal/metrics"
	"github.com/dantte-lp/goswitch/internal/netio"
	"github.com/dantte-lp/goswitch/internal/of10"
	"github.com/dantte-lp/goswitch/internal/server"
	"github.com/dantte-lp/goswitch/internal/transport"
	appversion "github.com/dantte-lp/goswitch/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Captures the last 500ms of execution traces for debugging datapath
// stalls.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("goswitch starting",
		slog.String("version", appversion.Version),
		slog.String("controller_addr", cfg.Controller.Addr),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Start flight recorder for post-mortem debugging.
	fr := startFlightRecorder(logger)

	// 5. Run everything under an errgroup.
	if err := runSwitch(cfg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("goswitch exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("goswitch stopped")
	return 0
}

// loadConfig loads configuration from the given path. A config file is
// required: the defaults carry no port provisioning.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, errors.New("missing -config flag")
	}
	return config.Load(path)
}

// newLoggerWithLevel builds the root slog.Logger from the log config.
func newLoggerWithLevel(lc config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// startFlightRecorder enables the runtime flight recorder.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})
	if err := fr.Start(); err != nil {
		logger.Warn("flight recorder unavailable",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return fr
}

// runSwitch wires the driver, transport, datapath, and HTTP servers, and
// runs them under an errgroup with a signal-aware context.
func runSwitch(
	cfg *config.Config,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	mac, err := cfg.Switch.ParseMAC()
	if err != nil {
		return err
	}

	// Prometheus registry and collector.
	reg := prometheus.NewRegistry()
	collector := swmetrics.NewCollector(reg)

	// Datapath configuration and port provisioning.
	dpCfg := datapath.Config{
		MAC: mac,
		Desc: of10.DescStats{
			MfrDesc:   cfg.Switch.Description.Manufacturer,
			HWDesc:    cfg.Switch.Description.Hardware,
			SWDesc:    appversion.Version,
			SerialNum: cfg.Switch.Description.Serial,
			DPDesc:    cfg.Switch.Description.Datapath,
		},
	}
	if cfg.Switch.FailMode == "standalone" {
		dpCfg.FailMode = datapath.FailStandalone
	} else {
		dpCfg.FailMode = datapath.FailSecure
	}

	var ifNames [netio.MaxPorts]string
	for i, p := range cfg.Switch.Ports {
		if i >= netio.MaxPorts || !p.Enabled {
			continue
		}
		ifNames[i] = p.Interface
		dpCfg.PortEnabled[i] = true
	}

	driver, err := netio.NewAFPacketDriver(ifNames, logger)
	if err != nil {
		return fmt.Errorf("open port driver: %w", err)
	}

	// Controller transport.
	conn := transport.NewClient(transport.Config{
		Addr:        cfg.Controller.Addr,
		DialTimeout: cfg.Controller.DialTimeout,
		SendBuf:     cfg.Controller.SendBuf,
	}, logger)

	// Datapath core.
	sw := datapath.New(dpCfg, driver, conn, logger, datapath.WithMetrics(collector))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Driver and transport I/O loops.
	g.Go(func() error { return driver.Run(gCtx) })
	g.Go(func() error { return conn.Run(gCtx) })

	// Bridge driver frames and link events into the datapath loop.
	frames := make(chan datapath.Frame, 64)
	g.Go(func() error {
		defer close(frames)
		return forwardFrames(gCtx, driver, sw, frames)
	})

	// The event loop owning all datapath state.
	g.Go(func() error {
		return sw.Run(gCtx, frames, conn.Batches(), conn.Sessions())
	})

	// Admin and metrics HTTP servers.
	adminSrv := newAdminServer(cfg.Admin, sw, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)

	// Watchdog and SIGHUP reload.
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(logger, fr, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run switch: %w", err)
	}
	return nil
}

// forwardFrames copies received frames from the driver queue into the
// datapath loop and feeds link transitions to the switch.
func forwardFrames(ctx context.Context, driver netio.PortDriver, sw *datapath.Switch, out chan<- datapath.Frame) error {
	framesIn := driver.Frames()
	linksIn := driver.Links()

	for framesIn != nil || linksIn != nil {
		select {
		case <-ctx.Done():
			return nil

		case f, ok := <-framesIn:
			if !ok {
				framesIn = nil
				continue
			}
			select {
			case out <- datapath.Frame{Data: f.Data, Len: f.Len, Port: f.Port}:
			case <-ctx.Done():
				return nil
			}

		case ev, ok := <-linksIn:
			if !ok {
				linksIn = nil
				continue
			}
			sw.SetLinkState(ev.Port, ev.Up)
		}
	}
	return nil
}

// newAdminServer builds the admin API HTTP server with h2c support.
func newAdminServer(ac config.AdminConfig, sw *datapath.Switch, logger *slog.Logger) *http.Server {
	handler := server.New(sw, appversion.Version, logger)
	return &http.Server{
		Addr:              ac.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// newMetricsServer builds the Prometheus scrape endpoint server.
func newMetricsServer(mc config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(mc.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startHTTPServers registers the admin and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// listenAndServe serves srv on addr until it is shut down, mapping the
// graceful-close error to nil.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon is
// beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd
// documentation. If watchdog is not configured, the goroutine exits
// immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — dynamic log level
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads the configuration
// file. Only the log level is applied live: datapath identity and port
// provisioning need a restart, and the flow table belongs to the
// controller. Blocks until the context is cancelled.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig loads a fresh configuration and applies the dynamic log
// level. Errors during reload are logged but do not stop the daemon --
// the previous configuration remains in effect.
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown drains the HTTP servers and stops the flight recorder.
func gracefulShutdown(
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed",
				slog.String("addr", srv.Addr),
				slog.String("error", err.Error()),
			)
		}
	}

	if fr != nil {
		fr.Stop()
	}
	return nil
}
