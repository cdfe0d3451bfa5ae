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

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"

	"github.com/danielmmetz/hn-tools/api"
	"github.com/danielmmetz/hn-tools/hn"
	"github.com/danielmmetz/hn-tools/hnweb"
	"github.com/danielmmetz/hn-tools/readability"
	"github.com/danielmmetz/hn-tools/session"
	"github.com/danielmmetz/hn-tools/sse"
)

func main() {
	// A missing .env is fine; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	flagSet := flag.NewFlagSet("hn-tools", flag.ExitOnError)

	var (
		addr           string
		port           int
		apiBase        string
		webBase        string
		searchBase     string
		maxConcurrency int
		httpTimeout    time.Duration
		sessionTTL     time.Duration
		logFormat      string
		logLevel       string
		oidc           api.OIDCConfig
	)
	flagSet.StringVar(&addr, "addr", "localhost", "Address to listen on")
	flagSet.IntVar(&port, "port", 8080, "Port to listen on")
	flagSet.StringVar(&apiBase, "api-base", hn.DefaultAPIBase, "Base URL of the Firebase API")
	flagSet.StringVar(&webBase, "web-base", hnweb.DefaultWebBase, "Base URL of the Hacker News website")
	flagSet.StringVar(&searchBase, "search-base", hn.DefaultSearchBase, "Base URL of the Algolia search API")
	flagSet.IntVar(&maxConcurrency, "max-concurrency", 10, "Maximum concurrent requests to the Firebase API")
	flagSet.DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Timeout for requests to the Hacker News website")
	flagSet.DurationVar(&sessionTTL, "session-ttl", session.DefaultTTL, "How long a login stays valid")
	flagSet.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	flagSet.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flagSet.StringVar(&oidc.Issuer, "oidc-issuer", "", "OIDC issuer URL (enables bearer auth)")
	flagSet.StringVar(&oidc.ClientID, "oidc-client-id", "", "OIDC client ID")
	flagSet.StringVar(&oidc.ClientSecret, "oidc-client-secret", "", "OIDC client secret")
	flagSet.StringVar(&oidc.RedirectURI, "oidc-redirect-uri", "", "OIDC redirect URI")

	if err := ff.Parse(flagSet, os.Args[1:], ff.WithEnvVars()); err != nil {
		slog.Error("failed to parse flags", "error", err)
		os.Exit(1)
	}

	if err := setupLogging(logFormat, logLevel); err != nil {
		slog.Error("invalid logging flags", "error", err)
		os.Exit(1)
	}

	// OIDC is optional; a partial configuration is a mistake.
	var authHandler *api.AuthHandler
	switch {
	case oidc.Enabled():
		provider, err := api.SetupOIDCProvider(context.Background(), oidc.Issuer)
		if err != nil {
			slog.Error("OIDC discovery failed", "error", err)
			os.Exit(1)
		}
		authHandler = api.NewAuthHandler(provider, oidc)
		slog.Info("OIDC configured", "issuer", oidc.Issuer)
	case oidc != (api.OIDCConfig{}):
		slog.Error("oidc-issuer, oidc-client-id, oidc-client-secret, and oidc-redirect-uri must be set together (via flags or env vars OIDC_ISSUER, OIDC_CLIENT_ID, OIDC_CLIENT_SECRET, OIDC_REDIRECT_URI)")
		os.Exit(1)
	default:
		slog.Warn("OIDC not configured, tool routes are unauthenticated")
	}

	sess := session.NewManager(sessionTTL)
	reader := hn.NewClient(
		hn.WithAPIBase(apiBase),
		hn.WithSearchBase(searchBase),
		hn.WithMaxConcurrency(maxConcurrency),
	)
	writer := hnweb.NewClient(sess,
		hnweb.WithWebBase(webBase),
		hnweb.WithDoer(hnweb.NewHTTPClient(httpTimeout)),
	)
	broker := sse.NewBroker(1000)

	registry := api.NewRegistry(api.Deps{
		Reader:   reader,
		Writer:   writer,
		Articles: readability.NewExtractor(),
		Events:   broker,
		Metrics:  api.NewMetrics(),
	})
	server := api.NewServer(registry, broker, authHandler)

	// HTTP server with graceful shutdown
	listenAddr := fmt.Sprintf("%s:%d", addr, port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", listenAddr, "tools", len(registry.Tools()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received signal, shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func setupLogging(format, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch format {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
