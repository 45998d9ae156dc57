package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bluesky-social/herald/cachestore"
)

// Number of recent choices kept.
const HistoryLength = 3

var ErrNoTemplates = errors.New("no templates configured")

type Selector struct {
	Templates []Template
	Cache     cachestore.CacheStore
	// cache key for the persisted history; one per agent
	HistoryKey string
	Logger     *slog.Logger

	// returns a float in [0, 1); overridable for tests
	random func() float64
}

func NewSelector(templates []Template, cache cachestore.CacheStore, historyKey string, logger *slog.Logger) (*Selector, error) {
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}
	seen := make(map[string]bool, len(templates))
	for i := range templates {
		if seen[templates[i].ID] {
			return nil, fmt.Errorf("duplicate template id: %s", templates[i].ID)
		}
		seen[templates[i].ID] = true
		if err := templates[i].Compile(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		Templates:  templates,
		Cache:      cache,
		HistoryKey: historyKey,
		Logger:     logger,
		random:     rand.Float64,
	}, nil
}

// Picks the template for the next cycle, and persists the updated history.
//
// A cache read failure is treated as an empty history (the rotation rule is a quality concern, not worth skipping a cycle over); a write failure is returned along with the selected template.
func (s *Selector) Select(ctx context.Context) (*Template, error) {
	if len(s.Templates) == 0 {
		return nil, ErrNoTemplates
	}

	history, err := s.History(ctx)
	if err != nil {
		s.Logger.Warn("failed to read template history, using empty history", "err", err)
		history = nil
	}

	var idx int
	if repeated, ok := Repeated(history); ok {
		idx = forcedChoice(s.Templates, repeated, s.random())
		selectionCount.WithLabelValues(s.Templates[idx].ID, "forced").Inc()
		s.Logger.Debug("forcing template switch", "repeated", repeated, "selected", s.Templates[idx].ID)
	} else {
		idx = weightedChoice(s.Templates, s.random())
		selectionCount.WithLabelValues(s.Templates[idx].ID, "weighted").Inc()
	}
	tmpl := &s.Templates[idx]

	history = AppendHistory(history, tmpl.ID)
	if err := s.saveHistory(ctx, history); err != nil {
		return tmpl, fmt.Errorf("persisting template history: %w", err)
	}
	return tmpl, nil
}

func (s *Selector) History(ctx context.Context) ([]string, error) {
	raw, err := s.Cache.Get(ctx, "template-history", s.HistoryKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var history []string
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("parsing template history: %w", err)
	}
	return history, nil
}

func (s *Selector) saveHistory(ctx context.Context, history []string) error {
	b, err := json.Marshal(history)
	if err != nil {
		return err
	}
	// history is only meaningful across nearby cycles
	return s.Cache.Set(ctx, "template-history", s.HistoryKey, string(b), time.Now().Add(7*24*time.Hour))
}

// If the last two entries of history are the same template, returns that template ID.
func Repeated(history []string) (string, bool) {
	if len(history) < 2 {
		return "", false
	}
	a, b := history[len(history)-2], history[len(history)-1]
	if a != b {
		return "", false
	}
	return a, true
}

// Appends id and keeps only the most recent [HistoryLength] entries. Does not modify the input slice.
func AppendHistory(history []string, id string) []string {
	out := make([]string, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, id)
	if len(out) > HistoryLength {
		out = out[len(out)-HistoryLength:]
	}
	return out
}

// Uniform choice among templates other than the repeated one. With a single template configured there is nothing else to pick, and it is returned anyway.
func forcedChoice(templates []Template, repeated string, r float64) int {
	var candidates []int
	for i := range templates {
		if templates[i].ID != repeated {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	n := int(r * float64(len(candidates)))
	if n >= len(candidates) {
		n = len(candidates) - 1
	}
	return candidates[n]
}

// Weighted choice across all templates. If no template has a positive weight, the choice is uniform.
func weightedChoice(templates []Template, r float64) int {
	total := 0.0
	for i := range templates {
		if templates[i].Weight > 0 {
			total += templates[i].Weight
		}
	}
	if total <= 0 {
		n := int(r * float64(len(templates)))
		if n >= len(templates) {
			n = len(templates) - 1
		}
		return n
	}
	target := r * total
	last := 0
	for i := range templates {
		w := templates[i].Weight
		if w <= 0 {
			continue
		}
		last = i
		if target < w {
			return i
		}
		target -= w
	}
	// floating point remainder
	return last
}
