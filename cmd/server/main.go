// Command server exposes the longdoc engine over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bbiangul/longdoc"
)

// defaultAddr keeps the API off 8080, where the default chat endpoint
// (a local llama.cpp server) listens.
const defaultAddr = ":8000"

var rootCmd = &cobra.Command{
	Use:   "longdoc-server",
	Short: "HTTP API for question answering and summarization over long texts",
	Long: `Serves the longdoc engine over HTTP.

Endpoints:
  POST /questionary           {text, question}
  POST /questionary/upload    multipart file + question
  POST /summarize             {text, title}
  POST /summarize/upload      multipart file + title
  GET  /jobs, /jobs/{id}      job log
  GET  /health, /status

Server settings come from flags or LONGDOC_ADDR, LONGDOC_API_KEY,
LONGDOC_CORS_ORIGINS and LONGDOC_REQUEST_TIMEOUT.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	f := rootCmd.Flags()
	f.String("config", "", "config file (default: ./longdoc.yaml or ~/.longdoc/longdoc.yaml)")
	f.String("addr", defaultAddr, "listen address")
	f.String("api-key", "", "bearer token required on every request except /health")
	f.String("cors-origins", "", "comma-separated allowed CORS origins")
	f.Duration("request-timeout", 30*time.Minute, "upper bound for one request")
	f.String("log-level", "info", "debug, info, warn or error")
}

// serverSettings reads flags with LONGDOC_* environment fallbacks.
func serverSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("LONGDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func buildHandler(engine longdoc.Engine, apiKey, corsOrigins string, timeout time.Duration) http.Handler {
	h := newHandler(engine, timeout)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = h.routes()
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}

func runServer(cmd *cobra.Command, args []string) error {
	v, err := serverSettings(cmd)
	if err != nil {
		return err
	}

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(v.GetString("log-level")),
	})))

	cfg, err := longdoc.LoadConfig(v.GetString("config"))
	if err != nil {
		slog.Error("loading config", "error", err)
		return err
	}

	engine, err := longdoc.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		return err
	}
	defer engine.Close()

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:         addr,
		Handler:      buildHandler(engine, v.GetString("api-key"), v.GetString("cors-origins"), v.GetDuration("request-timeout")),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // recursive resolution can run for minutes
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr, "provider", cfg.Chat.Provider, "model", cfg.Chat.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			slog.Error("server error", "error", err)
			return err
		}
	case <-cmd.Context().Done():
	}
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

func main() {
	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
