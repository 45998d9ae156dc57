package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/herald/agent"
	"github.com/bluesky-social/herald/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "herald",
		Usage:   "autonomous posting and engagement agent for Bluesky",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"HERALD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"HERALD_LOG_FMT", "LOG_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "pds-host",
			Usage:   "method, hostname, and port of the account's PDS",
			Value:   "https://bsky.social",
			EnvVars: []string{"ATP_PDS_HOST"},
		},
		&cli.StringFlag{
			Name:     "username",
			Usage:    "account handle or email to log in with",
			Required: true,
			EnvVars:  []string{"HERALD_USERNAME"},
		},
		&cli.StringFlag{
			Name:     "password",
			Usage:    "account (app) password",
			Required: true,
			EnvVars:  []string{"HERALD_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "llm-provider",
			Usage:   "text generation provider (anthropic or openai)",
			Value:   "anthropic",
			EnvVars: []string{"HERALD_LLM_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "llm-model",
			Usage:   "model name; provider default if empty",
			EnvVars: []string{"HERALD_LLM_MODEL"},
		},
		&cli.StringFlag{
			Name:    "llm-api-key",
			Usage:   "API key for the text generation provider",
			EnvVars: []string{"HERALD_LLM_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "llm-base-url",
			Usage:   "override the provider API base URL",
			EnvVars: []string{"HERALD_LLM_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database for processed-content and post records",
			Value:   "sqlite://data/herald/herald.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   10,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OTEL spans for database queries",
			EnvVars: []string{"HERALD_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for scheduler and template state; in-process if empty",
			EnvVars: []string{"HERALD_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "persona-name",
			Value:   "Herald",
			EnvVars: []string{"HERALD_PERSONA_NAME"},
		},
		&cli.StringFlag{
			Name:    "persona-bio",
			EnvVars: []string{"HERALD_PERSONA_BIO"},
		},
		&cli.StringSliceFlag{
			Name:    "persona-topics",
			Usage:   "topics the agent posts about",
			EnvVars: []string{"HERALD_PERSONA_TOPICS"},
		},
		&cli.StringFlag{
			Name:    "templates-file",
			Usage:   "JSON file of prompt templates; built-in templates if empty",
			EnvVars: []string{"HERALD_TEMPLATES_FILE"},
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "generate and log content, but never publish or engage",
			EnvVars: []string{"HERALD_DRY_RUN"},
		},
		&cli.BoolFlag{
			Name:    "allow-threads",
			Usage:   "publish long content as a thread instead of truncating",
			EnvVars: []string{"HERALD_ALLOW_THREADS"},
		},
		&cli.BoolFlag{
			Name:    "preserve-formatting",
			Usage:   "keep paragraph breaks in generated content",
			EnvVars: []string{"HERALD_PRESERVE_FORMATTING"},
		},
		&cli.IntFlag{
			Name:    "max-length",
			Usage:   "maximum post length, in graphemes",
			Value:   300,
			EnvVars: []string{"HERALD_MAX_LENGTH"},
		},
		&cli.IntFlag{
			Name:    "timeline-limit",
			Usage:   "timeline items fetched per cycle",
			Value:   20,
			EnvVars: []string{"HERALD_TIMELINE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "action-timeout",
			Usage:   "upper bound on each platform call, including queueing and retries",
			Value:   10 * time.Minute,
			EnvVars: []string{"HERALD_ACTION_TIMEOUT"},
		},
		&cli.Float64Flag{
			Name:    "platform-rate-limit",
			Usage:   "max platform API requests per second",
			Value:   1,
			EnvVars: []string{"HERALD_PLATFORM_RATE_LIMIT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		postCmd,
	}

	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		return err
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the agent service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"HERALD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"HERALD_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "post-immediately",
			Usage:   "post on startup, regardless of when the agent last posted",
			EnvVars: []string{"HERALD_POST_IMMEDIATELY"},
		},
		&cli.DurationFlag{
			Name:    "post-min-delay",
			Value:   90 * time.Minute,
			EnvVars: []string{"HERALD_POST_MIN_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "post-max-delay",
			Value:   180 * time.Minute,
			EnvVars: []string{"HERALD_POST_MAX_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "quote-min-delay",
			Usage:   "zero disables quote posting",
			Value:   6 * time.Hour,
			EnvVars: []string{"HERALD_QUOTE_MIN_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "quote-max-delay",
			Value:   12 * time.Hour,
			EnvVars: []string{"HERALD_QUOTE_MAX_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "engage-min-delay",
			Usage:   "zero disables timeline engagement",
			Value:   20 * time.Minute,
			EnvVars: []string{"HERALD_ENGAGE_MIN_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "engage-max-delay",
			Value:   40 * time.Minute,
			EnvVars: []string{"HERALD_ENGAGE_MAX_DELAY"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		logger := slog.Default()

		shutdownOTEL, err := configOTEL(ctx, "herald")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		a, queue, err := setupAgent(ctx, cctx, logger, agent.Config{
			PostImmediately: cctx.Bool("post-immediately"),
			PostMinDelay:    cctx.Duration("post-min-delay"),
			PostMaxDelay:    cctx.Duration("post-max-delay"),
			QuoteMinDelay:   cctx.Duration("quote-min-delay"),
			QuoteMaxDelay:   cctx.Duration("quote-max-delay"),
			EngageMinDelay:  cctx.Duration("engage-min-delay"),
			EngageMaxDelay:  cctx.Duration("engage-max-delay"),
		})
		if err != nil {
			return err
		}
		defer queue.Close()

		srv := NewServer(a, Config{
			Bind:   cctx.String("bind"),
			Logger: logger,
		})

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()
		srv.RunAPI()

		// a second signal cancels in-flight cycles instead of waiting for them
		exitSignals := make(chan os.Signal, 2)
		signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-exitSignals
			slog.Info("received OS exit signal, stopping agent", "signal", sig)
			a.Stop()
			sig = <-exitSignals
			slog.Warn("received second exit signal, cancelling in-flight work", "signal", sig)
			cancel()
		}()

		runErr := a.Run(ctx)
		if err := srv.Shutdown(); err != nil {
			slog.Error("HTTP server shutdown error", "err", err)
		}
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("agent failed: %w", runErr)
		}
		slog.Info("graceful shutdown complete")
		return nil
	},
}

var postCmd = &cli.Command{
	Name:  "post",
	Usage: "generate and publish a single post, then exit (combine with --dry-run to preview)",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		a, queue, err := setupAgent(ctx, cctx, slog.Default(), agent.Config{
			// never scheduled; only needs to validate
			PostMinDelay: time.Hour,
			PostMaxDelay: time.Hour,
		})
		if err != nil {
			return err
		}
		defer queue.Close()
		return a.PostCycle(ctx)
	},
}
