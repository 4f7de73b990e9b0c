// Entry point for the recwatch service: browser recording engine behind a
// chi HTTP surface, a WebSocket event stream and optional MCP tools.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/recwatch/api"
	"github.com/hazyhaar/recwatch/dbopen"
	"github.com/hazyhaar/recwatch/events"
	"github.com/hazyhaar/recwatch/observability"
	"github.com/hazyhaar/recwatch/recorder"
	"github.com/hazyhaar/recwatch/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML configuration file")
		listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		install    = flag.Bool("install", false, "install browser engines and exit")
	)
	flag.Parse()

	if *install {
		if err := recorder.InstallBrowsers(); err != nil {
			slog.Error("browser install failed", "error", err)
			os.Exit(1)
		}
		slog.Info("browser engines installed")
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("configuration", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema),
		dbopen.WithSchema(observability.Schema))
	if err != nil {
		slog.Error("database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	st := store.New(db)
	journal := observability.NewJournal(db, observability.WithLogger(logger))

	bus := events.NewFanout(logger)
	hub := api.NewHub(logger)
	bus.Subscribe(hub.HandleEvent)
	bus.Subscribe(journal.Handler())

	launcher := recorder.NewPlaywrightLauncher(logger)
	rec := recorder.New(recorder.Config{
		RecordingsDir:     cfg.RecordingsDir,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		CloseTimeout:      cfg.Browser.CloseTimeout,
		Launcher:          launcher,
		Store:             st,
		Bus:               bus,
		Logger:            logger,
	})

	server := api.NewServer(api.ServerConfig{
		Recorder:        rec,
		History:         st,
		Hub:             hub,
		Logger:          logger,
		DefaultHeadless: cfg.Browser.Headless,
	})

	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "recwatch",
			Version: "1.0.0",
		}, nil)
		server.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio transport starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP transport", "error", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("recwatch listening", "addr", cfg.Listen, "db", cfg.DBPath, "recordings", cfg.RecordingsDir)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	rec.Shutdown(shutdownCtx)
	if err := launcher.Close(); err != nil {
		slog.Warn("browser driver shutdown", "error", err)
	}
	slog.Info("bye")
}
