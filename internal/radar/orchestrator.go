package radar

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Config controls Orchestrator behavior.
type Config struct {
	Cooldown time.Duration
}

// Orchestrator sequences one pipeline run: resolve schedule, check
// cooldown, capture, compose, publish to every channel, record history.
// Process locking and workdir hygiene happen in the CLI layer before the
// orchestrator is built, so a run that never starts leaves no side effects.
type Orchestrator struct {
	cfg         Config
	sources     map[string]SourceDescriptor
	resolver    Resolver
	history     HistoryStore
	capturer    Capturer
	composer    Composer
	commentator Commentator // nil disables AI enrichment
	publishers  []Publisher
	clock       Clock
	logger      *zap.Logger
}

// New constructs an Orchestrator.
func New(
	cfg Config,
	sources map[string]SourceDescriptor,
	resolver Resolver,
	history HistoryStore,
	capturer Capturer,
	composer Composer,
	commentator Commentator,
	publishers []Publisher,
	clock Clock,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if resolver == nil || history == nil || capturer == nil || composer == nil || clock == nil {
		return nil, fmt.Errorf("resolver, history, capturer, composer and clock are required")
	}
	if len(publishers) == 0 {
		return nil, fmt.Errorf("at least one publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	return &Orchestrator{
		cfg:         cfg,
		sources:     sources,
		resolver:    resolver,
		history:     history,
		capturer:    capturer,
		composer:    composer,
		commentator: commentator,
		publishers:  publishers,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Run executes a single pipeline pass and reports how it ended. Scheduling
// non-events come back as Skipped; only capture or configuration problems
// produce Failed. Per-channel publish failures are recorded in history and
// do not fail the run.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	now := o.clock.Now()

	sourceID, ok := o.resolver.Resolve(now)
	if !ok {
		o.logger.Info("no source scheduled for this time", zap.Time("now", now))
		return Skipped("no schedule slot matched")
	}

	src, found := o.sources[sourceID]
	if !found {
		return Failed(fmt.Errorf("resolved source %q has no descriptor", sourceID))
	}
	if !src.Enabled {
		o.logger.Info("source disabled, skipping", zap.String("source", sourceID))
		return Skipped("source disabled")
	}

	if reason, cooling := o.inCooldown(ctx, sourceID, now); cooling {
		return Skipped(reason)
	}

	result, err := o.capturer.Capture(ctx, src)
	if err != nil {
		return Failed(fmt.Errorf("capture %s: %w", sourceID, err))
	}
	// The artifact belongs to this run; remove it no matter how publishing goes.
	defer o.removeArtifact(result.Path)

	caption := o.composer.Compose(src.TelegramTitle, src.Hashtags, o.enrich(ctx, src, result.Path))

	channels := make(map[string]bool, len(o.publishers))
	for _, pub := range o.publishers {
		if err := pub.Publish(ctx, result.Path, caption); err != nil {
			o.logger.Error("publish failed",
				zap.String("channel", pub.Name()),
				zap.String("source", sourceID),
				zap.Error(err))
			channels[pub.Name()] = false
			continue
		}
		o.logger.Info("published",
			zap.String("channel", pub.Name()),
			zap.String("source", sourceID))
		channels[pub.Name()] = true
	}

	pub := Publication{
		Source:      sourceID,
		Name:        src.Name,
		PublishedAt: o.clock.Now().UTC(),
		Channels:    channels,
	}
	// History is written even on partial channel failure so the next run
	// sees accurate state.
	if err := o.history.Record(ctx, pub); err != nil {
		o.logger.Error("record publication history", zap.Error(err))
	}

	return Outcome{
		Status:   StatusPublished,
		Source:   sourceID,
		Channels: channels,
	}
}

// inCooldown applies the duplicate-suppression window. History read errors
// and unparsable timestamps fail open: a corrupt history file must not
// permanently mute a source.
func (o *Orchestrator) inCooldown(ctx context.Context, sourceID string, now time.Time) (string, bool) {
	last, ok, err := o.history.LastPublished(ctx, sourceID)
	if err != nil {
		o.logger.Warn("history read failed, treating as no prior record",
			zap.String("source", sourceID), zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	if elapsed := now.Sub(last); elapsed < o.cfg.Cooldown {
		o.logger.Info("source inside cooldown window",
			zap.String("source", sourceID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("cooldown", o.cfg.Cooldown))
		return fmt.Sprintf("published %s ago, cooldown %s", elapsed.Round(time.Second), o.cfg.Cooldown), true
	}
	return "", false
}

// enrich asks the commentator for an Alpha Take. Any failure degrades to a
// plain caption; enrichment never fails a run.
func (o *Orchestrator) enrich(ctx context.Context, src SourceDescriptor, imagePath string) *Commentary {
	if o.commentator == nil || src.SkipCommentary {
		return nil
	}
	c, err := o.commentator.Commentary(ctx, src, imagePath)
	if err != nil {
		o.logger.Warn("commentary unavailable, falling back to plain caption",
			zap.String("source", src.ID), zap.Error(err))
		return nil
	}
	return c
}

func (o *Orchestrator) removeArtifact(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.logger.Warn("remove artifact", zap.String("path", path), zap.Error(err))
	}
}
