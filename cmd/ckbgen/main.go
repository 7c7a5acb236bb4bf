// Command ckbgen runs a ckbdynamic generator to completion and writes
// its two event streams to disk, optionally exposing solver metrics on
// an HTTP endpoint for the duration of the run.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/ckbdynamic/pkg/ckbdynamic"
	appconfig "github.com/dd0wney/ckbdynamic/pkg/config"
	"github.com/dd0wney/ckbdynamic/pkg/genmetrics"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML generator config (defaults built in if omitted)")
	graphOut := flag.String("graph-out", "graph_events.csv", "path to write the graph-event stream")
	communityOut := flag.String("community-out", "community_events.csv", "path to write the community-event stream")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address for the duration of the run (e.g. :9090)")
	debug := flag.Bool("debug", false, "enable debug-mode invariant assertions")
	flag.Parse()

	logger := slog.Default()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Debug = *debug
	cfg.Logger = logger

	reg := genmetrics.NewRegistry(prometheus.NewRegistry())
	cfg.Metrics = reg

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Close()
	}

	engine, err := ckbdynamic.New(cfg)
	if err != nil {
		logger.Error("engine construction failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting run", "runID", engine.RunID(), "n", cfg.N, "numTimesteps", cfg.NumTimesteps)
	if err := engine.Run(ctx); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	graphEvents, err := engine.GraphEvents()
	if err != nil {
		logger.Error("failed to read graph events", "error", err)
		os.Exit(1)
	}
	communityEvents, err := engine.CommunityEvents()
	if err != nil {
		logger.Error("failed to read community events", "error", err)
		os.Exit(1)
	}

	if err := writeGraphEvents(*graphOut, graphEvents); err != nil {
		logger.Error("failed to write graph events", "error", err)
		os.Exit(1)
	}
	if err := writeCommunityEvents(*communityOut, communityEvents); err != nil {
		logger.Error("failed to write community events", "error", err)
		os.Exit(1)
	}

	logger.Info("run complete", "graphEvents", len(graphEvents), "communityEvents", len(communityEvents))
}

func loadConfig(path string) (ckbdynamic.Config, error) {
	if path == "" {
		return ckbdynamic.DefaultConfig(), nil
	}
	return appconfig.LoadFile(path)
}

func writeGraphEvents(path string, events []ckbdynamic.GraphEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestep", "kind", "u", "v"}); err != nil {
		return err
	}
	for _, e := range events {
		record := []string{
			strconv.Itoa(e.Timestep),
			e.Kind.String(),
			strconv.FormatUint(uint64(e.U), 10),
			strconv.FormatUint(uint64(e.V), 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeCommunityEvents(path string, events []ckbdynamic.CommunityEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestep", "kind", "node", "community"}); err != nil {
		return err
	}
	for _, e := range events {
		record := []string{
			strconv.Itoa(e.Timestep),
			e.Kind.String(),
			strconv.FormatUint(uint64(e.Node), 10),
			strconv.FormatUint(uint64(e.Community), 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}
