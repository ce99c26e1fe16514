// Command heater warms the precomputed store for every active account. It is
// meant to run on a schedule; the exit code reports whether any account
// failed so the scheduler can alert.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shipfacts/shipfacts/internal/cache"
	"github.com/shipfacts/shipfacts/internal/config"
	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/githubapi"
	"github.com/shipfacts/shipfacts/internal/heater"
	"github.com/shipfacts/shipfacts/internal/logging"
	"github.com/shipfacts/shipfacts/internal/slacknotify"
)

var (
	Version = "dev"

	cfgFile   string
	verbose   bool
	cacheAddr string
	stores    config.StoresConfig
	logger    *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "heater",
	Short:   "Precompute engineering facts for every active account",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		// the library side logs through slog
		if _, _, err := logging.Setup(logging.DefaultConfig(verbose)); err != nil {
			logger.WithError(err).Warn("failed to set up structured logging")
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context())
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&stores.StateDSN, "state-db", "", "state store DSN (required)")
	flags.StringVar(&stores.MetadataDSN, "metadata-db", "", "metadata store DSN (required)")
	flags.StringVar(&stores.PrecomputedDSN, "precomputed-db", "", "precomputed store DSN (required)")
	flags.StringVar(&stores.PersistentdataDSN, "persistentdata-db", "", "events store DSN (required)")
	flags.StringVar(&cacheAddr, "cache", "", "cache address")
	flags.StringVar(&cfgFile, "config", "", "config file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	for _, name := range []string{"state-db", "metadata-db", "precomputed-db", "persistentdata-db"} {
		_ = rootCmd.MarkFlagRequired(name)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg.Stores = stores
	if cacheAddr != "" {
		cfg.Cache.Addr = cacheAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	gw, err := dbgate.Connect(ctx, cfg.Stores)
	if err != nil {
		return err
	}
	defer gw.Close()

	var gh *githubapi.Client
	if cfg.GitHub.Token != "" {
		gh = githubapi.NewClient(cfg.GitHub.Token, cfg.GitHub.RateLimit)
	} else {
		logger.Warn("no GitHub token, skipping repository name refresh")
	}
	slack := slacknotify.New(cfg.Slack.Token, cfg.Slack.AccountChannel)

	ck, err := heater.OpenCheckpoints(cfg.Heater.CheckpointPath)
	if err != nil {
		return err
	}
	defer ck.Close()

	h := heater.New(gw, gh, slack, ck, cfg.Heater, logger)
	if cfg.Cache.Addr != "" {
		front, err := cache.NewClient(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.TTL)
		if err != nil {
			return err
		}
		defer front.Close()
		h = h.WithCache(front)
	}
	failed, err := h.Run(ctx)
	if err != nil {
		return err
	}
	if failed > 0 {
		logger.WithField("failed", failed).Error("heating round finished with failures")
		os.Exit(1)
	}
	logger.Info("heating round finished")
	return nil
}
