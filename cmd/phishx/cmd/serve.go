package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/admission"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/anomaly"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/breaker"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/config"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/counter"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/dlq"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/enforcement"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/enrichment"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/messaging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/orchestrator"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/persistence"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/pipeline"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/risk"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(log)
	ctx := context.Background()

	log.InfoContext(ctx, "running database migrations")
	if err := persistence.Migrate(cfg.Database.MigrationsURL, cfg.Database.URL); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	repo, err := persistence.NewPostgresRepository(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}
	defer repo.Close()

	bus, err := messaging.NewNATSClient(cfg.NATS, log)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}
	defer bus.Close()

	policies := risk.NewPolicyStore()
	if err := policies.SetDefaults(cfg.Risk.ColdThreshold, cfg.Risk.WarmThreshold); err != nil {
		return fmt.Errorf("verdict thresholds: %w", err)
	}
	if cfg.Risk.TenantPolicyFile != "" {
		if err := policies.LoadFile(cfg.Risk.TenantPolicyFile); err != nil {
			return fmt.Errorf("tenant policies: %w", err)
		}
		log.InfoContext(ctx, "tenant policies loaded",
			"file", cfg.Risk.TenantPolicyFile,
			"tenants", policies.Len())
	}

	breakers := breaker.NewRegistry()
	caller := enrichment.NewCaller(breakers, cfg.Breaker.Breaker(), cfg.Enrichment.CallTimeout, log)

	var urlScorer enrichment.URLScorer = enrichment.NewURLMLClient(cfg.Enrichment.URLMLURL, cfg.Enrichment.CallTimeout)
	if cfg.Enrichment.ReputationTTL > 0 {
		cache := counter.NewCache(redisClient, "phishx:")
		urlScorer = enrichment.NewCachingURLScorer(urlScorer, cache, cfg.Enrichment.ReputationTTL)
	}

	var scanner enrichment.AttachmentScanner
	if cfg.Enrichment.ScannerEnabled {
		scanner = enrichment.NewClamAVScanner()
	}

	var failed *dlq.Queue
	if cfg.DLQ.Enabled {
		failed, err = dlq.NewQueue(cfg.DLQ.BasePath, log)
		if err != nil {
			return fmt.Errorf("dead letter queue: %w", err)
		}
	}

	detector := anomaly.NewEngine(cfg.Anomaly)

	pipe := pipeline.New(pipeline.Config{
		Caller:           caller,
		TextScorer:       enrichment.NewTextMLClient(cfg.Enrichment.TextMLURL, cfg.Enrichment.CallTimeout),
		URLScorer:        urlScorer,
		Scanner:          scanner,
		Engine:           risk.NewEngine(cfg.Risk.Weights),
		Policies:         policies,
		Detector:         detector,
		Repository:       repo,
		Dispatcher:       enforcement.NewBusDispatcher(bus),
		Events:           bus,
		TerminalDecision: cfg.Orchestrator.Decision(),
		Logger:           log,
	})

	orch := orchestrator.New(cfg.Orchestrator.Config, pipe, failed, log)
	orch.Start()

	svc := service.New(service.Config{
		Admission:    admission.NewController(counter.NewStoreWithClient(redisClient), cfg.Admission.Limits(), log),
		Orchestrator: orch,
		Processor:    pipe,
		Breakers:     breakers,
		Detector:     detector,
		Logger:       log,
	})
	ingest := service.NewIngest(bus, orch, log)
	if err := ingest.Start(); err != nil {
		return fmt.Errorf("ingest consumer: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			log.WarnContext(r.Context(), "health snapshot encode failed", "error", err)
		}
	})
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.InfoContext(ctx, "metrics listener started", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.ErrorContext(ctx, "metrics listener failed", "error", err)
		}
	}()

	log.InfoContext(ctx, "phishx pipeline running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.InfoContext(ctx, "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := ingest.Close(); err != nil {
		log.WarnContext(shutdownCtx, "ingest close failed", "error", err)
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		log.WarnContext(shutdownCtx, "orchestrator stop timed out", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WarnContext(shutdownCtx, "metrics listener shutdown failed", "error", err)
	}
	if err := bus.Drain(); err != nil {
		log.WarnContext(shutdownCtx, "bus drain failed", "error", err)
	}

	log.InfoContext(shutdownCtx, "shutdown complete")
	return nil
}
