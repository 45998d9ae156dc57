package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/herald/dedupe"
	"github.com/bluesky-social/herald/dispatch"
	"github.com/bluesky-social/herald/generate"
	"github.com/bluesky-social/herald/platform"
	"github.com/bluesky-social/herald/segment"
	"github.com/bluesky-social/herald/templates"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("engage")

type Config struct {
	Persona templates.Persona
	// Bounds reply and quote text. Always used in single-segment mode.
	Segment segment.Options
	// Evaluate and log, but don't execute actions or write processed records.
	DryRun bool
	// Upper bound on each dispatched action, including time spent waiting in the queue and retrying. Zero means no bound.
	ActionTimeout time.Duration
	Logger        *slog.Logger
}

type Outcome string

const (
	// already had a processed record; nothing was generated or called
	OutcomeSeen Outcome = "seen"
	// recommendation requested conflicting actions; nothing executed
	OutcomeRejected  Outcome = "rejected"
	OutcomeEvaluated Outcome = "evaluated"
	OutcomeDryRun    Outcome = "dry-run"
)

type Result struct {
	Outcome   Outcome
	Requested []string
	Executed  []string
}

type Engine struct {
	config    Config
	guard     *dedupe.Guard
	generator generate.Generator
	queue     *dispatch.Queue
	client    platform.API
	logger    *slog.Logger
}

func NewEngine(config Config, guard *dedupe.Guard, generator generate.Generator, queue *dispatch.Queue, client platform.API) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	config.Segment.AllowThreads = false
	return &Engine{
		config:    config,
		guard:     guard,
		generator: generator,
		queue:     queue,
		client:    client,
		logger:    logger.With("component", "engage"),
	}
}

// Runs one item through the engagement state machine.
//
// Returns an error (and leaves the item unrecorded, so it is evaluated again on a later poll) only if the item could not be evaluated: the dedupe check failed, or generation failed or returned garbage. Failures of individual actions are logged and reflected in Result.Executed, not returned.
func (e *Engine) Evaluate(ctx context.Context, item platform.Item) (*Result, error) {
	ctx, span := tracer.Start(ctx, "engage.evaluate")
	span.SetAttributes(attribute.String("uri", item.URI))
	defer span.End()

	logger := e.logger.With("uri", item.URI, "author", item.AuthorHandle)

	seen, err := e.guard.Seen(ctx, item.URI)
	if err != nil {
		itemCount.WithLabelValues("error").Inc()
		return nil, err
	}
	if seen {
		itemCount.WithLabelValues(string(OutcomeSeen)).Inc()
		logger.Debug("skipping already processed item")
		return &Result{Outcome: OutcomeSeen}, nil
	}

	action, err := e.recommend(ctx, item)
	if err != nil {
		itemCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("recommending engagement for %s: %w", item.URI, err)
	}
	res := &Result{Requested: action.Requested()}

	if err := action.Validate(); err != nil {
		logger.Warn("rejecting engagement recommendation", "requested", res.Requested, "err", err)
		res.Outcome = OutcomeRejected
		itemCount.WithLabelValues(string(OutcomeRejected)).Inc()
		if !e.config.DryRun {
			if err := e.guard.Record(ctx, dedupe.ProcessedRecord{ContentID: item.URI, Rejected: true}); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	if e.config.DryRun {
		logger.Info("dry run engagement", "requested", res.Requested)
		res.Outcome = OutcomeDryRun
		itemCount.WithLabelValues(string(OutcomeDryRun)).Inc()
		return res, nil
	}

	if action.Like {
		if item.ViewerLiked {
			logger.Debug("item already liked")
		} else if _, err := e.dispatch(ctx, "like", func(ctx context.Context) (*platform.StrongRef, error) {
			return e.client.Like(ctx, item.Ref())
		}); err != nil {
			logger.Error("like failed", "err", err)
			actionCount.WithLabelValues(ActionLike, "failed").Inc()
		} else {
			res.Executed = append(res.Executed, ActionLike)
			actionCount.WithLabelValues(ActionLike, "ok").Inc()
		}
	}

	if primary := action.Primary(); primary != "" {
		if err := e.executePrimary(ctx, primary, item); err != nil {
			logger.Error("engagement action failed", "action", primary, "err", err)
			actionCount.WithLabelValues(primary, "failed").Inc()
		} else {
			res.Executed = append(res.Executed, primary)
			actionCount.WithLabelValues(primary, "ok").Inc()
		}
	}

	res.Outcome = OutcomeEvaluated
	itemCount.WithLabelValues(string(OutcomeEvaluated)).Inc()
	if err := e.guard.Record(ctx, dedupe.ProcessedRecord{ContentID: item.URI, Executed: res.Executed}); err != nil {
		return res, err
	}
	logger.Info("engagement evaluated", "requested", res.Requested, "executed", res.Executed)
	return res, nil
}

func (e *Engine) recommend(ctx context.Context, item platform.Item) (Action, error) {
	vars := e.config.Persona.Vars()
	vars["author"] = item.AuthorHandle
	vars["text"] = item.Text
	prompt, err := recommendTemplate.Render(vars)
	if err != nil {
		return Action{}, err
	}
	raw, err := e.generator.Generate(ctx, generate.Request{Prompt: prompt, MaxTokens: 200})
	if err != nil {
		return Action{}, err
	}
	return ParseAction(raw)
}

func (e *Engine) executePrimary(ctx context.Context, primary string, item platform.Item) error {
	var err error
	switch primary {
	case ActionRetweet:
		_, err = e.dispatch(ctx, "repost", func(ctx context.Context) (*platform.StrongRef, error) {
			return e.client.Repost(ctx, item.Ref())
		})
	case ActionQuote:
		var text string
		text, err = Compose(ctx, e.generator, quoteTemplate, e.config.Persona, item, e.config.Segment)
		if err != nil {
			return err
		}
		ref := item.Ref()
		_, err = e.dispatch(ctx, "quote", func(ctx context.Context) (*platform.StrongRef, error) {
			return e.client.SendPost(ctx, platform.Post{Text: text, Quote: &ref})
		})
	case ActionReply:
		var text string
		text, err = Compose(ctx, e.generator, replyTemplate, e.config.Persona, item, e.config.Segment)
		if err != nil {
			return err
		}
		_, err = e.dispatch(ctx, "reply", func(ctx context.Context) (*platform.StrongRef, error) {
			return e.client.SendPost(ctx, platform.Post{Text: text, Reply: item.ReplyRef()})
		})
	default:
		err = fmt.Errorf("unknown primary action: %s", primary)
	}
	return err
}

func (e *Engine) dispatch(ctx context.Context, name string, fn func(ctx context.Context) (*platform.StrongRef, error)) (*platform.StrongRef, error) {
	if e.config.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ActionTimeout)
		defer cancel()
	}
	return dispatch.Do(ctx, e.queue, name, fn)
}

// Writes single-segment text about an item, using the given prompt template.
func Compose(ctx context.Context, gen generate.Generator, tmpl *templates.Template, persona templates.Persona, item platform.Item, opts segment.Options) (string, error) {
	opts.AllowThreads = false
	if opts.MaxLength <= 0 {
		opts.MaxLength = segment.DefaultMaxLength
	}
	vars := persona.Vars()
	vars["author"] = item.AuthorHandle
	vars["text"] = item.Text
	vars["maxLength"] = opts.MaxLength
	prompt, err := tmpl.Render(vars)
	if err != nil {
		return "", err
	}
	raw, err := gen.Generate(ctx, generate.Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	text, err := generate.Unwrap(raw)
	if err != nil {
		return "", err
	}
	segs, err := segment.Process(text, opts)
	if err != nil {
		return "", err
	}
	return segs[0], nil
}

// Evaluates items in order. Errors are logged per item and do not stop the rest; only context cancellation does.
func (e *Engine) EvaluateAll(ctx context.Context, items []platform.Item) ([]*Result, error) {
	var out []*Result
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := e.Evaluate(ctx, item)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return out, err
			}
			e.logger.Error("failed to evaluate item", "uri", item.URI, "err", err)
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
