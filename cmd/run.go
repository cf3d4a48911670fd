package cmd

import (
	"context"
	"fmt"
	"image/color"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/caption"
	"github.com/cryptoradar/radarshot/internal/capture"
	"github.com/cryptoradar/radarshot/internal/clock/system"
	"github.com/cryptoradar/radarshot/internal/commentary"
	"github.com/cryptoradar/radarshot/internal/config"
	"github.com/cryptoradar/radarshot/internal/history"
	"github.com/cryptoradar/radarshot/internal/lockfile"
	"github.com/cryptoradar/radarshot/internal/logging"
	"github.com/cryptoradar/radarshot/internal/publish"
	"github.com/cryptoradar/radarshot/internal/radar"
	"github.com/cryptoradar/radarshot/internal/schedule"
	"github.com/cryptoradar/radarshot/internal/workdir"
)

// newRunCmd creates the 'run' subcommand: one capture-and-publish cycle.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one capture-and-publish cycle",
		Long: `Resolves the schedule slot for the current time, captures the selected
dashboard, and publishes it. Exits 0 when the run published or was
deliberately skipped, 2 when another run holds the lock, 1 on failure.`,

		RunE: runPipeline,
	}
	return cmd
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	clk := system.Clock{}

	lock, err := lockfile.Acquire(cfg.Lock.Path, clk.Now, logger)
	if err != nil {
		return err
	}
	defer lock.Release()

	dir, err := workdir.New(cfg.Workdir.Path)
	if err != nil {
		return fmt.Errorf("init workdir: %w", err)
	}
	if purged := dir.PurgeOlderThan(cfg.PurgeAge(), clk.Now(), logger); purged > 0 {
		logger.Info("purged stale artifacts", zap.Int("count", purged))
	}

	orchestrator, closeFn, err := buildOrchestrator(cmd.Context(), cfg, dir, clk, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	outcome := orchestrator.Run(cmd.Context())
	switch outcome.Status {
	case radar.StatusPublished:
		logger.Info("run published",
			zap.String("source", outcome.Source),
			zap.Any("channels", outcome.Channels))
		return nil
	case radar.StatusSkipped:
		logger.Info("run skipped", zap.String("reason", outcome.Reason))
		return nil
	default:
		logger.Error("run failed", zap.String("source", outcome.Source), zap.Error(outcome.Err))
		return errRunFailed
	}
}

func buildOrchestrator(
	ctx context.Context,
	cfg config.Config,
	dir *workdir.Dir,
	clk system.Clock,
	logger *zap.Logger,
) (*radar.Orchestrator, func(), error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("load timezone: %w", err)
	}

	rng := rand.New(rand.NewSource(clk.Now().UnixNano()))
	resolver, err := schedule.New(cfg.ScheduleSlots(), loc, rng, nil, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build resolver: %w", err)
	}

	store, storeClose, err := buildHistoryStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	engine, err := capture.New(captureConfig(cfg), dir, clk, logger)
	if err != nil {
		storeClose()
		return nil, nil, fmt.Errorf("build capture engine: %w", err)
	}
	closeFn := func() {
		engine.Close()
		storeClose()
	}

	publishers, err := buildPublishers(cfg, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	var commentator radar.Commentator
	if cfg.Commentary.Enabled {
		client, err := commentary.New(commentary.Config{
			APIKey:    cfg.Commentary.APIKey,
			Model:     cfg.Commentary.Model,
			MaxTokens: cfg.Commentary.MaxTokens,
			Prompts:   cfg.Commentary.Prompts,
		}, logger)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("build commentary client: %w", err)
		}
		commentator = client
	}

	orchestrator, err := radar.New(
		radar.Config{Cooldown: cfg.Cooldown()},
		cfg.SourceDescriptors(),
		resolver,
		store,
		engine,
		caption.New(caption.DefaultMaxLen),
		commentator,
		publishers,
		clk,
		logger,
	)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return orchestrator, closeFn, nil
}

func buildHistoryStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (radar.HistoryStore, func(), error) {
	if cfg.History.Backend == config.HistoryBackendPostgres {
		store, err := history.NewPostgresStore(ctx, cfg.History.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("build history store: %w", err)
		}
		return store, store.Close, nil
	}
	store, err := history.NewFileStore(cfg.History.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build history store: %w", err)
	}
	return store, func() {}, nil
}

func buildPublishers(cfg config.Config, logger *zap.Logger) ([]radar.Publisher, error) {
	var publishers []radar.Publisher
	if cfg.Telegram.Enabled {
		tg, err := publish.NewTelegram(publish.TelegramConfig{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build telegram publisher: %w", err)
		}
		publishers = append(publishers, tg)
	}
	if cfg.Twitter.Enabled {
		tw, err := publish.NewTwitter(publish.TwitterConfig{
			APIKey:       cfg.Twitter.APIKey,
			APISecret:    cfg.Twitter.APISecret,
			AccessToken:  cfg.Twitter.AccessToken,
			AccessSecret: cfg.Twitter.AccessSecret,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build twitter publisher: %w", err)
		}
		publishers = append(publishers, tw)
	}
	return publishers, nil
}

func captureConfig(cfg config.Config) capture.Config {
	return capture.Config{
		ViewportWidth:  cfg.Capture.ViewportWidth,
		ViewportHeight: cfg.Capture.ViewportHeight,
		UserAgent:      cfg.Capture.UserAgent,
		NavTimeout:     time.Duration(cfg.Capture.NavTimeoutSec) * time.Second,
		BaseDelay:      time.Duration(cfg.Capture.BaseDelaySec) * time.Second,
		WaitForTimeout: time.Duration(cfg.Capture.WaitForTimeoutSec) * time.Second,
		RegionPadding:  cfg.Capture.RegionPadding,
		Retry: radar.RetryPolicy{
			Attempts: cfg.Capture.MaxAttempts,
			Delay:    time.Duration(cfg.Capture.RetryDelaySec) * time.Second,
		},
		Image: capture.ImageDefaults{
			MaxWidth:  cfg.Image.MaxWidth,
			MaxHeight: cfg.Image.MaxHeight,
			Quality:   cfg.Image.Quality,
			PadFill:   color.White,
		},
	}
}
