package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/ai/gemini"
	"github.com/openvolunteer/volmatch/internal/events"
	"github.com/openvolunteer/volmatch/internal/geo"
	"github.com/openvolunteer/volmatch/internal/logger"
	"github.com/openvolunteer/volmatch/internal/matching"
	"github.com/openvolunteer/volmatch/internal/push"
	"github.com/openvolunteer/volmatch/internal/scheduler"
	"github.com/openvolunteer/volmatch/internal/secrets"
	"github.com/openvolunteer/volmatch/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the match-and-notify worker",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// run is the worker entry point: wire the collaborators, subscribe to
// matching triggers, and keep the weekly reset schedule running until a
// shutdown signal arrives.
func run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting volmatch", zap.String("version", version))

	if config.DatabaseURL == "" {
		logger.Fatal("database-url is required (set DATABASE_URL or the config file)")
	}
	if config.RedisURL == "" {
		logger.Fatal("redis-url is required (set REDIS_URL or the config file)")
	}

	pool, err := store.NewPostgresPool(ctx, config.DatabaseURL)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := store.NewRedisClient(ctx, config.RedisURL)
	if err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}
	defer rdb.Close()

	st := store.New(pool)
	bus := events.NewBus(rdb, logger)

	resolver := geo.NewResolver(logger)
	if config.Geocoder != nil {
		if config.Geocoder.BaseURL != "" {
			resolver.BaseURL = config.Geocoder.BaseURL
		}
		if config.Geocoder.UserAgent != "" {
			resolver.UserAgent = config.Geocoder.UserAgent
		}
	}

	m := config.Matching
	retriever := matching.NewRetriever(st, logger, m.RadiusKm, m.WeeklyCap, m.TopK)

	gate, err := prepareGate(ctx, config, logger)
	if err != nil {
		logger.Warn("falling back to the similarity threshold gate", zap.Error(err))
		gate = &matching.ThresholdGate{Threshold: m.RelevanceThreshold}
	}

	dispatcher, err := prepareDispatcher(st, config, logger)
	if err != nil {
		logger.Fatal("building notification dispatcher", zap.Error(err))
	}

	executor := matching.NewExecutor(
		retriever,
		resolver,
		st,
		gate,
		&throttleGuard{store: st, weeklyCap: m.WeeklyCap},
		dispatcher,
		bus,
		st,
		logger,
	)

	orchestrator := matching.NewOrchestrator(
		st, executor, logger,
		m.NotifyBudget,
		time.Duration(m.RunTimeoutSeconds)*time.Second,
	)

	sched := scheduler.New(st, logger, m.ResetSchedule)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("starting the reset scheduler", zap.Error(err))
	}
	defer sched.Stop()

	subErr := make(chan error, 1)
	go func() {
		subErr <- bus.SubscribeFindMatchesRequested(ctx, func(ctx context.Context, needID string) {
			handleTrigger(ctx, st, orchestrator, logger, needID)
		})
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-subErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("trigger subscription ended", zap.Error(err))
		}
	}

	cancel()
	logger.Info("volmatch stopped")
}

// handleTrigger loads the need and runs the orchestrator for one trigger
// delivery. Retryable aborts are only logged: the claim was released, so a
// redelivery will pick the need up again.
func handleTrigger(ctx context.Context, st *store.Store, orchestrator *matching.Orchestrator, logger *zap.Logger, needID string) {
	need, err := st.GetNeed(ctx, needID)
	if err != nil {
		logger.Warn("dropping trigger for unknown need",
			zap.String("need_id", needID),
			zap.Error(err),
		)
		return
	}

	if err := orchestrator.HandleFindMatchesRequested(ctx, need); err != nil {
		if matching.IsRetryable(err) {
			logger.Warn("matching run aborted, awaiting redelivery",
				zap.String("need_id", needID),
				zap.Error(err),
			)
			return
		}
		logger.Error("matching run failed",
			zap.String("need_id", needID),
			zap.Error(err),
		)
	}
}

// throttleGuard binds the configured weekly cap to the store's conditional
// counter update.
type throttleGuard struct {
	store     *store.Store
	weeklyCap int
}

func (t *throttleGuard) TryReserve(ctx context.Context, memberID string) (bool, error) {
	return t.store.TryReserve(ctx, memberID, t.weeklyCap)
}

func (t *throttleGuard) Release(ctx context.Context, memberID string) error {
	return t.store.Release(ctx, memberID)
}

func prepareDispatcher(st *store.Store, config *Config, logger *zap.Logger) (*push.Dispatcher, error) {
	var token string
	if config.Push != nil && config.Push.TokenFile != "" {
		var err error
		token, err = secrets.Load(secrets.Source{
			Name: "push provider token",
			File: config.Push.TokenFile,
		})
		if err != nil {
			return nil, err
		}
	}

	client := push.NewClient(logger, token)
	if config.Push != nil && config.Push.BaseURL != "" {
		client.BaseURL = config.Push.BaseURL
	}

	return push.NewDispatcher(st, client, logger), nil
}

// prepareGate builds the relevance gate: the Gemini judge when AI is
// enabled, otherwise the similarity threshold default. Both satisfy the
// same contract and are interchangeable.
func prepareGate(ctx context.Context, config *Config, log *zap.Logger) (matching.Gate, error) {
	if config.AI == nil || !config.AI.Enabled {
		return &matching.ThresholdGate{Threshold: config.Matching.RelevanceThreshold}, nil
	}

	provider := strings.TrimSpace(strings.ToLower(config.AI.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	if config.AI.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when the ai gate is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.AI.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	genLogger := logger.WithCommonFields(log, "gemini", config.AI.Gemini.Model)

	generator, err := gemini.NewGenerator(ctx, apiKey, config.AI.Gemini.Model, config.AI.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	judge := gemini.NewJudge(generator, genLogger, config.AI.Gemini.MaxLogLength)

	return matching.NewJudgeGate(judge, log), nil
}
