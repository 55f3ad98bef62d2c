package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/logger"
	"github.com/openvolunteer/volmatch/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset all weekly notification counters once and exit",
	Long: "Zero every member's weekly notification counter immediately. " +
		"The running worker does this on its own schedule; this command exists " +
		"for operators who need an out-of-band reset.",
	Run: func(_ *cobra.Command, _ []string) {
		reset()
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func reset() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config.DatabaseURL == "" {
		logger.Fatal("database-url is required (set DATABASE_URL or the config file)")
	}

	pool, err := store.NewPostgresPool(ctx, config.DatabaseURL)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer pool.Close()

	affected, err := store.New(pool).ResetAllCounts(ctx)
	if err != nil {
		logger.Fatal("resetting weekly counters", zap.Error(err))
	}

	logger.Info("weekly notification counters reset", zap.Int64("members", affected))
}
