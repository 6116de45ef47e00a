// Command deckcap exports a slide deck to PDF or PPTX.
//
// One-shot:
//
//	deckcap -url http://localhost:3000 -format pdf -out ./exports
//	deckcap -deck board.yaml -format pptx -out ./exports
//
// Service (HTTP API, MCP over streamable HTTP at /mcp):
//
//	deckcap -config deckcap.yaml -serve
//
// MCP over stdio:
//
//	deckcap -config deckcap.yaml -mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/deckcap/deckcap"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("deckcap", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		deckFile   = flag.String("deck", "", "static deck file (YAML)")
		deckURL    = flag.String("url", "", "deck URL to open in Chrome")
		format     = flag.String("format", "", "output format: pdf or pptx")
		outDir     = flag.String("out", "", "directory for exported documents")
		serve      = flag.Bool("serve", false, "run the HTTP API")
		mcpStdio   = flag.Bool("mcp", false, "serve MCP over stdin/stdout")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// stdout belongs to the MCP stream in -mcp mode.
	logOut := os.Stdout
	if *mcpStdio {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg := deckcap.DefaultConfig()
	if *configPath != "" {
		c, err := deckcap.LoadConfigFile(*configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	if *deckFile != "" {
		cfg.Deck.File, cfg.Deck.URL = *deckFile, ""
	}
	if *deckURL != "" {
		cfg.Deck.URL, cfg.Deck.File = *deckURL, ""
	}
	if *format != "" {
		cfg.Export.Format = *format
	}
	if *outDir != "" {
		cfg.Sinks = append(cfg.Sinks, deckcap.SinkConfig{Type: "dir", Path: *outDir})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	exp, err := deckcap.New(ctx, cfg, deckcap.WithLogger(logger))
	if err != nil {
		return err
	}
	defer exp.Close()

	switch {
	case *mcpStdio:
		srv := newMCPServer(exp)
		return srv.Run(ctx, &mcp.StdioTransport{})
	case *serve:
		return serveHTTP(ctx, exp, logger)
	}

	res, err := exp.Export(ctx)
	if err != nil {
		return fmt.Errorf("export %s: %w", res.ID, err)
	}
	logger.Info("export written",
		"run", res.ID, "filename", res.Filename, "pages", res.Pages, "bytes", res.Size)
	return nil
}

func newMCPServer(exp *deckcap.Exporter) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "deckcap", Version: version}, nil)
	exp.RegisterMCP(srv)
	return srv
}

func serveHTTP(ctx context.Context, exp *deckcap.Exporter, logger *slog.Logger) error {
	mcpSrv := newMCPServer(exp)

	r := chi.NewRouter()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	r.Mount("/", exp.Handler())

	srv := &http.Server{
		Addr:              exp.Config().Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "format", exp.Format())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
