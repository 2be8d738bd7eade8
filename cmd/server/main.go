package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy6609/tcp-chat/internal/chat"
	"github.com/andy6609/tcp-chat/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	port := flag.Int("port", -1, "listen port (overrides the config file)")
	maxClients := flag.Int("max-clients", -1, "maximum concurrent users (overrides the config file)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	metricsAddr := flag.String("metrics-addr", ":9090", "metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *port >= 0 {
		cfg.Port = *port
	}
	if *maxClients > 0 {
		cfg.MaxClients = *maxClients
	}
	if *verbose {
		cfg.Verbose = true
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	srv := chat.NewServer(cfg.Port, cfg.MaxClients, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	srv.Stop()
}
