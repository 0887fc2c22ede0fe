package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	engine "github.com/eventuary/pipeline"
	"github.com/eventuary/pipeline/adapters/telemetryhttp"
	"github.com/eventuary/pipeline/config"
	"github.com/eventuary/pipeline/models"
	telemetrymetrics "github.com/eventuary/pipeline/telemetry/metrics"
)

func main() {
	var (
		configPath    string
		sourcesPath   string
		environment   string
		healthAddr    string
		metricsAddr   string
		enableMetrics bool
		workers       int
		snapshotEvery time.Duration
		showVersion   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to layered YAML config file (empty uses package defaults)")
	flag.StringVar(&sourcesPath, "sources", "", "Path to a JSON file containing a []models.Source array to seed the registry")
	flag.StringVar(&environment, "environment", "production", "Environment name selected from the config file's environments section")
	flag.StringVar(&healthAddr, "health", "", "Expose health/readiness endpoints on address (e.g. :9091)")
	flag.StringVar(&metricsAddr, "metrics", "", "Expose the metrics scrape endpoint on address (e.g. :9090)")
	flag.BoolVar(&enableMetrics, "enable-metrics", false, "Wire a Prometheus metrics provider (required to serve -metrics)")
	flag.IntVar(&workers, "workers-per-stage", 0, "Concurrent claimers per queue stage (0 uses the package default)")
	flag.DurationVar(&snapshotEvery, "snapshot-interval", 30*time.Second, "Interval between stderr backlog snapshots (0=disabled)")
	flag.BoolVar(&showVersion, "version", false, "Print version info and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("eventuary pipeline ingestion engine")
		return
	}

	var file config.File
	if configPath != "" {
		f, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		file = f
	}

	var sources []models.Source
	if sourcesPath != "" {
		s, err := loadSources(sourcesPath)
		if err != nil {
			log.Fatalf("load sources: %v", err)
		}
		sources = s
	}

	cfg := engine.DefaultConfig()
	cfg.ConfigFile = file
	cfg.Environment = environment
	cfg.Sources = sources
	if workers > 0 {
		cfg.WorkersPerStage = workers
	}
	if enableMetrics {
		cfg.MetricsProvider = telemetrymetrics.NewPrometheusProvider(telemetrymetrics.PrometheusProviderOptions{})
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("construct engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	if healthAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/healthz", telemetryhttp.NewHealthHandler(telemetryhttp.HealthHandlerOptions{Engine: eng, IncludeProbes: true}))
		mux.Handle("/readyz", telemetryhttp.NewReadinessHandler(telemetryhttp.HealthHandlerOptions{Engine: eng}))
		srv := &http.Server{Addr: healthAddr, Handler: mux}
		go func() { <-ctx.Done(); _ = srv.Shutdown(context.Background()) }()
		go func() {
			log.Printf("health endpoint listening on %s", healthAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("health server: %v", err)
			}
		}()
	}

	if metricsAddr != "" && enableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetryhttp.NewMetricsHandler(eng.Metrics()))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() { <-ctx.Done(); _ = srv.Shutdown(context.Background()) }()
		go func() {
			log.Printf("metrics listening on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	var ticker *time.Ticker
	if snapshotEvery > 0 {
		ticker = time.NewTicker(snapshotEvery)
		defer ticker.Stop()
	}
	if ticker != nil {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := eng.Snapshot()
				b, _ := json.MarshalIndent(snap, "", "  ")
				fmt.Fprintf(os.Stderr, "\n=== SNAPSHOT %s ===\n%s\n", time.Now().Format(time.RFC3339), string(b))
			}
		}
	}
	<-ctx.Done()
}

func loadSources(path string) ([]models.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var sources []models.Source
	if err := json.NewDecoder(f).Decode(&sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return sources, nil
}
