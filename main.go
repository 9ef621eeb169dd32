// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/internal/gateway"
	"github.com/ffutop/modbus-ascii/internal/journal"
	"github.com/ffutop/modbus-ascii/internal/metrics"
	"github.com/ffutop/modbus-ascii/transport"
	"github.com/ffutop/modbus-ascii/transport/ascii"
	asciiovertcp "github.com/ffutop/modbus-ascii/transport/ascii-over-tcp"
	"github.com/ffutop/modbus-ascii/transport/tcp"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Path to config file")
	pflag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus ASCII Gateway...")

	recorder, err := journal.Open(cfg.Journal)
	if err != nil {
		slog.Error("Failed to open journal", "type", cfg.Journal.Type, "err", err)
		os.Exit(1)
	}
	defer recorder.Close()

	observer := newObserver(recorder)
	factory := gateway.Factory{
		Upstream: func(c config.UpstreamConfig) (transport.Upstream, error) {
			return newUpstream(c, observer)
		},
		Downstream: func(c config.DownstreamConfig) (transport.Downstream, error) {
			return newDownstream(c, observer)
		},
	}

	// Create Gateways
	var gateways []*gateway.Gateway
	for _, gwCfg := range cfg.Gateways {
		gw, err := gateway.Build(gwCfg, factory)
		if err != nil {
			slog.Error("Skipping gateway", "gateway", gwCfg.Name, "err", err)
			continue
		}
		gateways = append(gateways, gw)
	}

	if len(gateways) == 0 {
		slog.Error("No valid gateways configured. Exiting.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetrics(cfg.Metrics)

	// Start Gateways
	var wg sync.WaitGroup
	for _, gw := range gateways {
		wg.Add(1)
		go func(g *gateway.Gateway) {
			defer wg.Done()
			if err := g.Start(ctx); err != nil {
				slog.Error("Gateway stopped with error", "name", g.Name, "err", err)
			}
		}(gw)
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		metricsServer.Shutdown(shutdownCtx)
		done()
	}
	slog.Info("Goodbye.")
}

// newObserver fans link events out to the journal and the counters.
func newObserver(recorder journal.Recorder) ascii.Observer {
	record := journal.Observer(recorder)
	count := metrics.Observer()
	return func(ev ascii.Event) {
		count(ev)
		record(ev)
		slog.Debug("Frame", "device", ev.Device, "dir", ev.Direction, "slaveID", ev.SlaveID, "func", ev.Pdu.FunctionCode, "err", ev.Err)
	}
}

func newUpstream(c config.UpstreamConfig, observer ascii.Observer) (transport.Upstream, error) {
	switch c.Type {
	case "tcp":
		return tcp.NewServer(c.Tcp.Address), nil
	case "ascii":
		s := ascii.NewServer(c.Serial)
		s.Observer = observer
		return s, nil
	case "ascii-tcp":
		s := asciiovertcp.NewServer(c.Tcp.Address, c.Serial)
		s.Observer = observer
		return s, nil
	default:
		return nil, fmt.Errorf("unknown upstream type: %s", c.Type)
	}
}

func newDownstream(c config.DownstreamConfig, observer ascii.Observer) (transport.Downstream, error) {
	switch c.Type {
	case "tcp":
		cl := tcp.NewClient(c.Tcp.Address)
		if c.Tcp.Timeout > 0 {
			cl.Timeout = c.Tcp.Timeout
		}
		return cl, nil
	case "ascii":
		cl := ascii.NewClient(c.Serial)
		cl.Observer = observer
		return cl, nil
	case "ascii-tcp":
		cl := asciiovertcp.NewClient(c.Tcp.Address, c.Serial)
		cl.Observer = observer
		return cl, nil
	default:
		return nil, fmt.Errorf("unknown downstream type: %s", c.Type)
	}
}

func startMetrics(cfg config.MetricsConfig) *http.Server {
	if cfg.Address == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.Address, Handler: mux}
	go func() {
		slog.Info("Serving metrics", "address", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server stopped", "err", err)
		}
	}()
	return srv
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
