package agent

import (
	"context"
	"fmt"

	"github.com/bluesky-social/herald/dedupe"
	"github.com/bluesky-social/herald/engage"
	"github.com/bluesky-social/herald/generate"
	"github.com/bluesky-social/herald/segment"
)

type timelineEntry struct {
	Author string
	Text   string
}

// Generates and publishes one original post (or thread).
func (a *Agent) PostCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "agent.post_cycle")
	defer span.End()

	tmpl, err := a.selector.Select(ctx)
	if tmpl == nil {
		return err
	}
	if err != nil {
		a.logger.Warn("template selection", "template", tmpl.ID, "err", err)
	}

	// context is best-effort; a post without it is still a post
	var timeline []timelineEntry
	items, err := a.fetchTimeline(ctx)
	if err != nil {
		if isCancel(err) {
			return err
		}
		a.logger.Warn("failed to fetch timeline for post context", "err", err)
	}
	for _, item := range items {
		timeline = append(timeline, timelineEntry{Author: item.AuthorHandle, Text: item.Text})
	}
	recent, err := a.guard.RecentPosts(ctx, a.config.RecentPostLimit)
	if err != nil {
		a.logger.Warn("failed to load recent posts", "err", err)
	}

	vars := a.config.Persona.Vars()
	vars["timeline"] = timeline
	vars["recentPosts"] = recent
	vars["maxLength"] = a.config.Segment.MaxLength
	vars["allowThreads"] = a.config.Segment.AllowThreads
	prompt, err := tmpl.Render(vars)
	if err != nil {
		return err
	}
	a.saveDebug(ctx, StreamPost, prompt)

	raw, err := a.gen.Generate(ctx, generate.Request{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("generating post: %w", err)
	}
	text, err := generate.Unwrap(raw)
	if err != nil {
		return err
	}
	segments, err := segment.Process(text, a.config.Segment)
	if err != nil {
		return err
	}
	return a.publish(ctx, StreamPost, tmpl.ID, segments, nil)
}

// Publishes a quote post about the most popular unseen timeline item.
func (a *Agent) QuoteCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "agent.quote_cycle")
	defer span.End()

	items, err := a.fetchTimeline(ctx)
	if err != nil {
		return fmt.Errorf("fetching timeline: %w", err)
	}
	item, err := a.PickTrending(ctx, items)
	if err != nil {
		return err
	}

	quoteTemplate := engage.QuoteTemplate()
	text, err := engage.Compose(ctx, a.gen, quoteTemplate, a.config.Persona, *item, a.config.Segment)
	if err != nil {
		return err
	}
	ref := item.Ref()
	if err := a.publish(ctx, StreamQuote, quoteTemplate.ID, []string{text}, &ref); err != nil {
		return err
	}
	if a.config.DryRun {
		return nil
	}
	// don't quote it again, or engage with it. The quote is already published, so a failure here must not fail the cycle
	if err := a.guard.Record(ctx, dedupe.ProcessedRecord{ContentID: item.URI, Executed: []string{engage.ActionQuote}}); err != nil {
		a.logger.Error("failed to record quoted item as processed", "uri", item.URI, "err", err)
	}
	return nil
}

// Runs recent timeline items through the engagement engine.
func (a *Agent) EngageCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "agent.engage_cycle")
	defer span.End()

	items, err := a.fetchTimeline(ctx)
	if err != nil {
		return fmt.Errorf("fetching timeline: %w", err)
	}
	results, err := a.engine.EvaluateAll(ctx, items)
	if err != nil {
		return err
	}
	counts := make(map[engage.Outcome]int)
	executed := 0
	for _, res := range results {
		counts[res.Outcome]++
		executed += len(res.Executed)
	}
	a.logger.Info("engagement cycle complete", "items", len(items), "evaluated", counts[engage.OutcomeEvaluated], "seen", counts[engage.OutcomeSeen], "rejected", counts[engage.OutcomeRejected], "actions", executed)
	return nil
}
