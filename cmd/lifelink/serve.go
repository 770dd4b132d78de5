package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/api"
	"github.com/lifelink-community/lifelink/internal/bus"
	"github.com/lifelink-community/lifelink/internal/cache"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/history"
	"github.com/lifelink-community/lifelink/internal/ranking"
	"github.com/lifelink-community/lifelink/internal/repository"
	"github.com/lifelink-community/lifelink/internal/rules"
	"github.com/lifelink-community/lifelink/internal/scoring"
	"github.com/lifelink-community/lifelink/internal/telemetry"
	"github.com/lifelink-community/lifelink/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API.",
	Long: `Start the LifeLink HTTP API.

The community tier runs on SQLite, an in-process cache and channel bus. The
pro tier (--tier pro or LIFELINK_TIER=pro) runs on PostgreSQL, Redis and NATS.
Every replica ranks queued requests unless started with --no-worker.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("host", "", "Listen host")
	flags.Int("port", 0, "Listen port")
	flags.String("tier", "", "Deployment tier: community or pro")
	flags.Bool("no-worker", false, "Serve the API only; another replica consumes request.created")
	flags.StringSlice("tenants", nil, "Tenants the async worker subscribes for (default all)")

	mustBind("server.host", flags.Lookup("host"))
	mustBind("server.port", flags.Lookup("port"))
	mustBind("tier", flags.Lookup("tier"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, sync, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer sync()

	zap.L().Info("starting lifelink",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_date", BuildDate),
		zap.String("tier", string(cfg.Tier)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	zap.L().Info("repository initialized", zap.String("driver", cfg.Repository.Driver))

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	zap.L().Info("cache initialized", zap.String("type", cfg.Cache.Type))

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	zap.L().Info("event bus initialized", zap.String("type", cfg.EventBus.Type))

	screening, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize screening engine: %w", err)
	}
	profiles := rules.NewProfileEngine()
	if err := loadSettings(ctx, repo, screening, profiles); err != nil {
		return err
	}

	scorer := scoring.NewScorer(nil)
	ranker := ranking.NewRanker(scorer, screening, profiles, cfg.Scoring.MaxWorkers)
	ranker.DefaultWeights = cfg.Scoring.DefaultWeights

	hist := history.NewService(repo, cacheImpl, busImpl)
	pipeline := worker.NewPipeline(repo, cacheImpl, busImpl, hist, ranker, worker.Options{
		TopN:           cfg.Scoring.TopN,
		AlertThreshold: cfg.Scoring.AlertThreshold,
		EvaluationTTL:  cfg.Scoring.EvaluationTTL,
	})

	var asyncWorker *worker.Worker
	// The channel bus is in-process, so an API-only replica only makes
	// sense with NATS.
	apiOnly, _ := cmd.Flags().GetBool("no-worker")
	if apiOnly && cfg.EventBus.Type == "channel" {
		zap.L().Warn("--no-worker ignored with the in-process channel bus")
		apiOnly = false
	}
	if !apiOnly {
		tenants, _ := cmd.Flags().GetStringSlice("tenants")
		asyncWorker = worker.NewWorker(busImpl, pipeline)
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenants}); err != nil {
			zap.L().Error("failed to start async worker", zap.Error(err))
			asyncWorker = nil
		} else {
			zap.L().Info("async worker started", zap.Strings("tenants", tenants))
		}
	}

	srv := api.NewServer(cfg.Server, cfg.RateLimit, api.Deps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Scorer:    scorer,
		Screening: screening,
		Profiles:  profiles,
		Ranker:    ranker,
		Pipeline:  pipeline,
		History:   hist,
		Scoring:   cfg.Scoring,
		Version:   Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	zap.L().Info("lifelink is ready",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)
	printBanner(cmd, cfg)

	select {
	case <-ctx.Done():
		zap.L().Info("shutting down")
	case err := <-errCh:
		zap.L().Error("server failed", zap.Error(err))
		return err
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			zap.L().Error("failed to stop async worker", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("lifelink shutdown complete")
	return nil
}

// loadSettings seeds the stock screening rules and weight profiles on an
// empty database, then loads the stored copies into the engines.
func loadSettings(ctx context.Context, repo domain.Repository, screening *rules.Engine, profiles *rules.ProfileEngine) error {
	storedRules, err := repo.ListScreeningRules(ctx, api.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("failed to list screening rules: %w", err)
	}
	if len(storedRules) == 0 {
		storedRules = rules.DefaultRules()
		for _, r := range storedRules {
			r.TenantID = api.GlobalTenantID
			if err := repo.SaveScreeningRule(ctx, api.GlobalTenantID, r); err != nil {
				return fmt.Errorf("failed to seed screening rule %s: %w", r.ID, err)
			}
		}
		zap.L().Info("seeded default screening rules", zap.Int("count", len(storedRules)))
	}
	if err := screening.LoadRules(storedRules); err != nil {
		return fmt.Errorf("failed to load screening rules: %w", err)
	}

	storedProfiles, err := repo.ListProfiles(ctx, api.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("failed to list weight profiles: %w", err)
	}
	if len(storedProfiles) == 0 {
		storedProfiles = rules.DefaultProfiles()
		for _, p := range storedProfiles {
			p.TenantID = api.GlobalTenantID
			if err := repo.SaveProfile(ctx, api.GlobalTenantID, p); err != nil {
				return fmt.Errorf("failed to seed weight profile %s: %w", p.ID, err)
			}
		}
		zap.L().Info("seeded default weight profiles", zap.Int("count", len(storedProfiles)))
	}
	if err := profiles.LoadProfiles(storedProfiles); err != nil {
		return fmt.Errorf("failed to load weight profiles: %w", err)
	}

	zap.L().Info("settings loaded",
		zap.Int("rules_count", screening.RulesCount()),
		zap.Int("profiles_count", profiles.ProfileCount()),
	)
	return nil
}

func printBanner(cmd *cobra.Command, cfg *domain.Config) {
	w := cmd.ErrOrStderr()
	printf(w, "\n  LifeLink %s (%s tier)\n", Version, cfg.Tier)
	printf(w, "  Server:   http://%s:%d\n\n", cfg.Server.Host, cfg.Server.Port)
	printf(w, "  Endpoints:\n")
	printf(w, "    POST /requests                - Create and rank a blood request\n")
	printf(w, "    GET  /requests/{id}/matches   - Latest ranking for a request\n")
	printf(w, "    POST /donors                  - Register a donor\n")
	printf(w, "    GET  /donors/{id}/requests    - Open requests a donor can serve\n")
	printf(w, "    POST /score/{kind}            - Stateless scoring\n")
	printf(w, "    GET  /screening-rules         - Loaded screening rules\n")
	printf(w, "    GET  /profiles                - Loaded weight profiles\n")
	printf(w, "    GET  /health                  - Health check\n\n")
}

