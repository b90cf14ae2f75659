package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/tweetsweep/internal/config"
	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/processor"
	"github.com/kalambet/tweetsweep/internal/ratelimit"
	"github.com/kalambet/tweetsweep/internal/storage"
	"github.com/kalambet/tweetsweep/internal/twitter"
)

// sessionPurgeSchedule is how often expired OAuth sessions are removed.
const sessionPurgeSchedule = "@every 15m"

// recordStore is the revisioned key/value store jobs and sessions share.
type recordStore interface {
	jobs.KV
	Close() error
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, cfg config.StorageConfig) (recordStore, error) {
	switch cfg.Backend {
	case config.BackendNATS:
		s, err := storage.OpenNATS(ctx, cfg.NATSURL, cfg.NATSBucket)
		if err != nil {
			return nil, fmt.Errorf("opening NATS store: %w", err)
		}
		slog.Info("storage opened", "backend", cfg.Backend, "url", cfg.NATSURL, "bucket", cfg.NATSBucket)
		return s, nil
	default:
		s, err := storage.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		slog.Info("storage opened", "backend", cfg.Backend, "data_dir", cfg.DataDir)
		return s, nil
	}
}

func newTwitterClient(cfg config.TwitterConfig) *twitter.Client {
	return twitter.NewClient(twitter.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		APIBaseURL:   cfg.APIBaseURL,
		CapPeriod:    cfg.CapPeriod,
		Timeout:      cfg.RequestTimeout,
	})
}

func processorConfig(cfg config.ProcessorConfig) processor.Config {
	return processor.Config{
		DeletePerRun:       cfg.DeletePerRun,
		ReactivationBuffer: cfg.ReactivationBuffer,
		ResetPadding:       cfg.ResetPadding,
		TimelineCap:        cfg.TimelineCap,
		CallInterval:       cfg.CallInterval,
		PageInterval:       cfg.PageInterval,
		LeaseTTL:           cfg.LeaseTTL,
	}
}

func newLimiter(cfg config.Config) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		ShortWindow:    cfg.RateLimit.ShortWindow,
		ShortWindowMax: cfg.RateLimit.ShortWindowMax,
		LongWindow:     cfg.RateLimit.LongWindow,
		LongWindowMax:  cfg.RateLimit.LongWindowMax,
		PerRun:         cfg.Processor.DeletePerRun,
	}, nil)
}

// newWorker assembles the processor and its scheduler over repo.
func newWorker(cfg config.Config, repo *jobs.Repository, client *twitter.Client) (*processor.Worker, error) {
	proc := processor.New(repo, client, newLimiter(cfg), processorConfig(cfg.Processor))
	w, err := processor.NewWorker(proc, cfg.Processor.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid processor.schedule: %w", err)
	}
	return w, nil
}
