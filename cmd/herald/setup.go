package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/herald/agent"
	"github.com/bluesky-social/herald/cachestore"
	"github.com/bluesky-social/herald/dispatch"
	"github.com/bluesky-social/herald/generate"
	"github.com/bluesky-social/herald/memstore"
	"github.com/bluesky-social/herald/platform"
	"github.com/bluesky-social/herald/segment"
	"github.com/bluesky-social/herald/templates"
	"github.com/bluesky-social/herald/util/cliutil"
	"github.com/bluesky-social/herald/util/robusthttp"

	"github.com/carlmjohnson/versioninfo"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Builds the agent and its dependencies from global flags; config carries the command-specific stream settings. The caller owns the returned queue.
func setupAgent(ctx context.Context, cctx *cli.Context, logger *slog.Logger, config agent.Config) (*agent.Agent, *dispatch.Queue, error) {
	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return nil, nil, err
	}
	if cctx.Bool("db-tracing") {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, nil, err
		}
	}
	store, err := memstore.NewGormStore(db)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up memory store: %w", err)
	}

	var cache cachestore.CacheStore
	if cctx.String("redis-url") != "" {
		rcache, err := cachestore.NewRedisCacheStore(cctx.String("redis-url"), "herald/")
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		cache = rcache
	} else {
		logger.Warn("redis not configured; scheduler state will not survive restarts")
		cache = cachestore.NewMemCacheStore(10_000)
	}

	registry := platform.NewRegistry()
	client, err := registry.Session(ctx, platform.LoginConfig{
		Host:       cctx.String("pds-host"),
		Identifier: cctx.String("username"),
		Password:   cctx.String("password"),
		UserAgent:  "herald/" + versioninfo.Short(),
		HTTP:       robusthttp.NewClient(robusthttp.WithLogger(logger)),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logging in: %w", err)
	}
	logger.Info("logged in", "did", client.DID(), "handle", client.Handle())

	gen, err := generate.New(generate.Config{
		Provider: cctx.String("llm-provider"),
		Model:    cctx.String("llm-model"),
		APIKey:   cctx.String("llm-api-key"),
		BaseURL:  cctx.String("llm-base-url"),
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	var tmpls []templates.Template
	if p := cctx.String("templates-file"); p != "" {
		tmpls, err = templates.LoadFromFileJSON(p)
		if err != nil {
			return nil, nil, fmt.Errorf("loading templates: %w", err)
		}
	}

	queue := dispatch.NewQueue(dispatch.Config{
		Permanent: func(err error) bool { return !platform.IsTransient(err) },
		Limiter:   rate.NewLimiter(rate.Limit(cctx.Float64("platform-rate-limit")), 1),
		Logger:    logger,
	})

	config.Persona = templates.Persona{
		Name:   cctx.String("persona-name"),
		Handle: client.Handle(),
		Bio:    cctx.String("persona-bio"),
		Topics: cctx.StringSlice("persona-topics"),
	}
	config.Segment = segment.Options{
		AllowThreads:       cctx.Bool("allow-threads"),
		PreserveFormatting: cctx.Bool("preserve-formatting"),
		MaxLength:          cctx.Int("max-length"),
	}
	config.DryRun = cctx.Bool("dry-run")
	config.TimelineLimit = cctx.Int("timeline-limit")
	config.ActionTimeout = cctx.Duration("action-timeout")
	config.Logger = logger

	a, err := agent.New(config, agent.Deps{
		Client:    client,
		Generator: gen,
		Queue:     queue,
		Cache:     cache,
		Store:     store,
		Templates: tmpls,
	})
	if err != nil {
		queue.Close()
		return nil, nil, err
	}
	return a, queue, nil
}
