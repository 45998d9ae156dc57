// Prevents reprocessing of third-party content, and keeps an audit trail of what the agent did.
//
// A processed item is stored in the memory store under a name-based UUID derived from the item's identity and the agent's identity, so presence of that memory means "already evaluated". Records are created once per item and never updated; there is no path from evaluated back to unseen.
package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/herald/memstore"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Namespace for name-based memory IDs. Changing this orphans all existing records.
var namespace = uuid.MustParse("5f1d3a2e-8c0b-4e57-9a61-2d7c94b0e3f4")

func MemoryID(contentID, agentID string) string {
	return uuid.NewSHA1(namespace, []byte(contentID+"-"+agentID)).String()
}

type ProcessedRecord struct {
	ContentID string `json:"contentId"`
	// Actions which actually executed, in order; not the ones requested.
	Executed []string `json:"executed"`
	// Recommendation was refused by validation
	Rejected    bool      `json:"rejected,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Audit entry for content the agent published.
type PostRecord struct {
	Stream   string   `json:"stream"`
	Template string   `json:"template,omitempty"`
	Segments []string `json:"segments"`
	// URIs of successfully published segments; may be a prefix of Segments
	URIs     []string `json:"uris"`
	QuoteOf  string   `json:"quoteOf,omitempty"`
	DryRun   bool     `json:"dryRun,omitempty"`
}

type Guard struct {
	store   memstore.MemoryStore
	agentID string
	logger  *slog.Logger
	// memory IDs known to exist in the store
	seen *lru.Cache[string, bool]
}

func NewGuard(store memstore.MemoryStore, agentID string, logger *slog.Logger) (*Guard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen, err := lru.New[string, bool](10_000)
	if err != nil {
		return nil, err
	}
	return &Guard{
		store:   store,
		agentID: agentID,
		logger:  logger.With("component", "dedupe"),
		seen:    seen,
	}, nil
}

func (g *Guard) Seen(ctx context.Context, contentID string) (bool, error) {
	id := MemoryID(contentID, g.agentID)
	if g.seen.Contains(id) {
		seenCount.WithLabelValues("cache").Inc()
		return true, nil
	}
	_, err := g.store.GetMemoryByID(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		seenCount.WithLabelValues("unseen").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking processed record: %w", err)
	}
	g.seen.Add(id, true)
	seenCount.WithLabelValues("store").Inc()
	return true, nil
}

func (g *Guard) Lookup(ctx context.Context, contentID string) (*ProcessedRecord, error) {
	m, err := g.store.GetMemoryByID(ctx, MemoryID(contentID, g.agentID))
	if err != nil {
		return nil, err
	}
	var rec ProcessedRecord
	if err := json.Unmarshal([]byte(m.Body), &rec); err != nil {
		return nil, fmt.Errorf("invalid processed record %s: %w", m.ID, err)
	}
	return &rec, nil
}

// Marks the item as evaluated. Recording an item which already has a record is not an error; the first record wins.
func (g *Guard) Record(ctx context.Context, rec ProcessedRecord) error {
	if rec.EvaluatedAt.IsZero() {
		rec.EvaluatedAt = time.Now()
	}
	if rec.Executed == nil {
		rec.Executed = []string{}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	id := MemoryID(rec.ContentID, g.agentID)
	err = g.store.CreateMemory(ctx, &memstore.Memory{
		ID:        id,
		AgentID:   g.agentID,
		Kind:      memstore.KindProcessed,
		ContentID: rec.ContentID,
		Body:      string(body),
		CreatedAt: rec.EvaluatedAt,
	})
	if errors.Is(err, memstore.ErrDuplicate) {
		g.logger.Warn("item already had a processed record", "content", rec.ContentID)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("persisting processed record: %w", err)
	}
	g.seen.Add(id, true)
	return nil
}

func (g *Guard) RecordPost(ctx context.Context, rec PostRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	contentID := ""
	if len(rec.URIs) > 0 {
		contentID = rec.URIs[0]
	}
	return g.store.CreateMemory(ctx, &memstore.Memory{
		ID:        uuid.New().String(),
		AgentID:   g.agentID,
		Kind:      memstore.KindPost,
		ContentID: contentID,
		Body:      string(body),
	})
}

// Text of the most recently published posts, newest first. Dry-run records are included.
func (g *Guard) RecentPosts(ctx context.Context, limit int) ([]string, error) {
	mems, err := g.store.RecentMemories(ctx, g.agentID, memstore.KindPost, limit)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range mems {
		var rec PostRecord
		if err := json.Unmarshal([]byte(m.Body), &rec); err != nil {
			g.logger.Warn("skipping invalid post record", "id", m.ID, "err", err)
			continue
		}
		if len(rec.Segments) > 0 {
			out = append(out, rec.Segments[0])
		}
	}
	return out, nil
}
