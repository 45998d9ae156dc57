// Wires the scheduler streams to generation, segmentation, the dispatch queue, and the platform.
//
// An [Agent] runs up to three independent streams:
//
//   - "post": compose context, pick a prompt template, generate, segment, and publish (as a thread if allowed)
//   - "quote": pick the most popular unseen timeline item and publish a quote post about it
//   - "engage": run recent timeline items through the engagement engine
//
// Streams share one dispatch queue, so their platform calls never overlap.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/herald/cachestore"
	"github.com/bluesky-social/herald/dedupe"
	"github.com/bluesky-social/herald/dispatch"
	"github.com/bluesky-social/herald/engage"
	"github.com/bluesky-social/herald/generate"
	"github.com/bluesky-social/herald/memstore"
	"github.com/bluesky-social/herald/platform"
	"github.com/bluesky-social/herald/schedule"
	"github.com/bluesky-social/herald/segment"
	"github.com/bluesky-social/herald/templates"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("agent")

const (
	StreamPost   = "post"
	StreamQuote  = "quote"
	StreamEngage = "engage"
)

// Debug artifacts (last prompt per stream) are kept this long.
var DebugArtifactTTL = 24 * time.Hour

type Config struct {
	Persona templates.Persona
	Segment segment.Options
	// Generate and log content, but never publish or engage.
	DryRun bool
	// The post stream fires on its first iteration regardless of when it last posted.
	PostImmediately bool

	PostMinDelay time.Duration
	PostMaxDelay time.Duration
	// Zero disables the quote stream.
	QuoteMinDelay time.Duration
	QuoteMaxDelay time.Duration
	// Zero disables the engage stream.
	EngageMinDelay time.Duration
	EngageMaxDelay time.Duration

	// How many timeline items to fetch for context and engagement.
	TimelineLimit int
	// How many of the agent's own recent posts to include in prompts.
	RecentPostLimit int
	// Upper bound on each dispatched platform call, including queueing and retries. Zero means no bound.
	ActionTimeout time.Duration

	Logger *slog.Logger
}

type Deps struct {
	Client    platform.API
	Generator generate.Generator
	Queue     *dispatch.Queue
	Cache     cachestore.CacheStore
	Store     memstore.MemoryStore
	Templates []templates.Template
	// optional; defaults to wall clock
	Clock schedule.Clock
}

type Agent struct {
	config   Config
	client   platform.API
	gen      generate.Generator
	queue    *dispatch.Queue
	cache    cachestore.CacheStore
	selector *templates.Selector
	guard    *dedupe.Guard
	engine   *engage.Engine
	state    *schedule.StateStore
	streams  []*schedule.Stream
	logger   *slog.Logger
}

func New(config Config, deps Deps) (*Agent, error) {
	if deps.Client == nil || deps.Generator == nil || deps.Queue == nil || deps.Cache == nil || deps.Store == nil {
		return nil, fmt.Errorf("agent is missing a required dependency")
	}
	if config.TimelineLimit <= 0 {
		config.TimelineLimit = 20
	}
	if config.RecentPostLimit <= 0 {
		config.RecentPostLimit = 5
	}
	if config.Segment.MaxLength <= 0 {
		config.Segment.MaxLength = segment.DefaultMaxLength
	}
	if config.Persona.Handle == "" {
		config.Persona.Handle = deps.Client.Handle()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent", config.Persona.Handle)
	if config.DryRun {
		logger = logger.With("dryRun", true)
	}
	agentID := deps.Client.DID()

	if len(deps.Templates) == 0 {
		deps.Templates = templates.DefaultTemplates()
	}
	selector, err := templates.NewSelector(deps.Templates, deps.Cache, agentID, logger)
	if err != nil {
		return nil, err
	}
	guard, err := dedupe.NewGuard(deps.Store, agentID, logger)
	if err != nil {
		return nil, err
	}
	engine := engage.NewEngine(engage.Config{
		Persona:       config.Persona,
		Segment:       config.Segment,
		DryRun:        config.DryRun,
		ActionTimeout: config.ActionTimeout,
		Logger:        logger,
	}, guard, deps.Generator, deps.Queue, deps.Client)

	a := &Agent{
		config:   config,
		client:   deps.Client,
		gen:      deps.Generator,
		queue:    deps.Queue,
		cache:    deps.Cache,
		selector: selector,
		guard:    guard,
		engine:   engine,
		state:    &schedule.StateStore{Cache: deps.Cache, Namespace: agentID},
		logger:   logger,
	}

	type streamDef struct {
		config schedule.StreamConfig
		action schedule.Action
	}
	defs := []streamDef{{
		config: schedule.StreamConfig{Name: StreamPost, MinDelay: config.PostMinDelay, MaxDelay: config.PostMaxDelay, Immediate: config.PostImmediately},
		action: a.PostCycle,
	}}
	if config.QuoteMinDelay > 0 {
		defs = append(defs, streamDef{
			config: schedule.StreamConfig{Name: StreamQuote, MinDelay: config.QuoteMinDelay, MaxDelay: config.QuoteMaxDelay},
			action: a.QuoteCycle,
		})
	}
	if config.EngageMinDelay > 0 {
		defs = append(defs, streamDef{
			config: schedule.StreamConfig{Name: StreamEngage, MinDelay: config.EngageMinDelay, MaxDelay: config.EngageMaxDelay},
			action: a.EngageCycle,
		})
	}
	for _, def := range defs {
		s, err := schedule.NewStream(def.config, def.action, a.state, deps.Clock, logger)
		if err != nil {
			return nil, err
		}
		a.streams = append(a.streams, s)
	}
	return a, nil
}

// Runs all streams until Stop is called or ctx is done. In-flight cycles are allowed to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "streams", len(a.streams))
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range a.streams {
		g.Go(func() error {
			return s.Run(ctx)
		})
	}
	return g.Wait()
}

func (a *Agent) Stop() {
	for _, s := range a.streams {
		s.Stop()
	}
}

// Last successful action time per stream; zero if never.
func (a *Agent) Status(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(a.streams))
	for _, s := range a.streams {
		t, err := a.state.LastAction(ctx, s.Name())
		if err != nil {
			return nil, err
		}
		out[s.Name()] = t
	}
	return out, nil
}

func (a *Agent) dispatchCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.ActionTimeout > 0 {
		return context.WithTimeout(ctx, a.config.ActionTimeout)
	}
	return context.WithCancel(ctx)
}

func (a *Agent) fetchTimeline(ctx context.Context) ([]platform.Item, error) {
	ctx, cancel := a.dispatchCtx(ctx)
	defer cancel()
	return dispatch.Do(ctx, a.queue, "timeline", func(ctx context.Context) ([]platform.Item, error) {
		return a.client.FetchTimeline(ctx, a.config.TimelineLimit)
	})
}

func (a *Agent) saveDebug(ctx context.Context, stream, prompt string) {
	if err := a.cache.Set(ctx, "debug", a.client.DID()+"/"+stream, prompt, time.Now().Add(DebugArtifactTTL)); err != nil {
		a.logger.Warn("failed to save debug artifact", "stream", stream, "err", err)
	}
}

// Posts segments in order, each after the first as a reply to the previous one. Returns the refs of the segments which were published; on error this may be a non-empty prefix.
func (a *Agent) publishThread(ctx context.Context, segments []string, quote *platform.StrongRef) ([]platform.StrongRef, error) {
	var out []platform.StrongRef
	for i, text := range segments {
		post := platform.Post{Text: text}
		if i == 0 {
			post.Quote = quote
		} else {
			post.Reply = &platform.ReplyRef{Root: out[0], Parent: out[i-1]}
		}
		dctx, cancel := a.dispatchCtx(ctx)
		ref, err := dispatch.Do(dctx, a.queue, "post", func(ctx context.Context) (*platform.StrongRef, error) {
			return a.client.SendPost(ctx, post)
		})
		cancel()
		if err != nil {
			return out, fmt.Errorf("publishing segment %d of %d: %w", i+1, len(segments), err)
		}
		out = append(out, *ref)
	}
	return out, nil
}

func refURIs(refs []platform.StrongRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.URI
	}
	return out
}

// Publishes and records segments. A partially published thread counts as success, since the prefix is already public.
func (a *Agent) publish(ctx context.Context, stream, templateID string, segments []string, quote *platform.StrongRef) error {
	rec := dedupe.PostRecord{Stream: stream, Template: templateID, Segments: segments}
	if quote != nil {
		rec.QuoteOf = quote.URI
	}
	if a.config.DryRun {
		rec.DryRun = true
		for i, s := range segments {
			a.logger.Info("dry run segment", "stream", stream, "index", i, "text", s)
		}
		postCount.WithLabelValues(stream, "dry-run").Inc()
		return a.guard.RecordPost(ctx, rec)
	}

	refs, err := a.publishThread(ctx, segments, quote)
	if len(refs) == 0 {
		postCount.WithLabelValues(stream, "failed").Inc()
		return err
	}
	if err != nil {
		a.logger.Error("thread only partially published", "stream", stream, "published", len(refs), "segments", len(segments), "err", err)
		postCount.WithLabelValues(stream, "partial").Inc()
	} else {
		postCount.WithLabelValues(stream, "ok").Inc()
	}
	rec.URIs = refURIs(refs)
	if err := a.guard.RecordPost(ctx, rec); err != nil {
		// already published; don't fail the cycle and risk a duplicate post
		a.logger.Error("failed to record published post", "stream", stream, "err", err)
	}
	a.logger.Info("published", "stream", stream, "template", templateID, "segments", len(segments), "uris", rec.URIs)
	return nil
}

var errNoCandidate = fmt.Errorf("no unseen timeline item to quote: %w", schedule.ErrNothingToDo)

// Most engaged-with item which hasn't been processed and hasn't already been reposted by the agent.
func (a *Agent) PickTrending(ctx context.Context, items []platform.Item) (*platform.Item, error) {
	var best *platform.Item
	for i := range items {
		item := &items[i]
		if item.ViewerReposted || item.Text == "" {
			continue
		}
		if best != nil && score(item) <= score(best) {
			continue
		}
		seen, err := a.guard.Seen(ctx, item.URI)
		if err != nil {
			return nil, err
		}
		if !seen {
			best = item
		}
	}
	if best == nil {
		return nil, errNoCandidate
	}
	return best, nil
}

func score(item *platform.Item) int64 {
	return item.LikeCount + 2*item.RepostCount + item.ReplyCount
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
