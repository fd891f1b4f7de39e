// Package app builds the dependency graph shared by the server and the CLI.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/blackmichael/bsky-autoposter/internal/activitylog"
	"github.com/blackmichael/bsky-autoposter/internal/bluesky"
	"github.com/blackmichael/bsky-autoposter/internal/config"
	"github.com/blackmichael/bsky-autoposter/internal/domain"
	"github.com/blackmichael/bsky-autoposter/internal/media"
	"github.com/blackmichael/bsky-autoposter/internal/metrics"
	"github.com/blackmichael/bsky-autoposter/internal/sqlite"
)

// Wire bundles the stores, clients and services of the autoposter.
type Wire struct {
	Config      *config.Config
	Logger      *slog.Logger
	ActivityLog *activitylog.File
	Repository  *sqlite.Repository
	Client      *bluesky.Client
	Uploader    *media.Uploader
	Publisher   *domain.Publisher
	Registry    *prometheus.Registry
}

// NewWire constructs the dependency graph from cfg. Operator logs are written
// as JSON to stdout; the activity log receives the same records filtered by
// the configured level. The caller must call Close.
func NewWire(cfg *config.Config, stdout io.Writer) (*Wire, error) {
	activity, err := activitylog.OpenFile(cfg.Log.File, cfg.Log.MaxSizeMB)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}

	level := cfg.LogLevel()
	logger := slog.New(activitylog.Fanout(
		slog.NewJSONHandler(stdout, &slog.HandlerOptions{
			Level:       min(level, slog.LevelInfo),
			ReplaceAttr: activitylog.ReplaceLevel,
		}),
		activitylog.NewHandler(activity, level),
	))

	var repoOpts []sqlite.Option
	if cfg.Database.SessionSecret != "" {
		repoOpts = append(repoOpts, sqlite.WithSessionSecret(cfg.Database.SessionSecret))
	}
	repo, err := sqlite.NewRepository(cfg.Database.Path, repoOpts...)
	if err != nil {
		activity.Close()
		return nil, fmt.Errorf("create repository: %w", err)
	}

	client := bluesky.NewClient(cfg.Bluesky.PDS,
		bluesky.WithSessionStore(repo),
		bluesky.WithCredentials(cfg.Bluesky.Handle, cfg.Bluesky.AppPassword),
		bluesky.WithLogger(logger),
	)
	uploader := media.NewUploader(client, logger)
	publisher := domain.NewPublisher(cfg.Settings(), client, uploader, repo, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.MustRegister(registry)

	return &Wire{
		Config:      cfg,
		Logger:      logger,
		ActivityLog: activity,
		Repository:  repo,
		Client:      client,
		Uploader:    uploader,
		Publisher:   publisher,
		Registry:    registry,
	}, nil
}

// Close releases the database and the activity log.
func (w *Wire) Close() error {
	return errors.Join(w.Repository.Close(), w.ActivityLog.Close())
}
