package templates

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluesky-social/herald/cachestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTemplates() []Template {
	return []Template{
		{ID: "feed", Weight: 10, Prompt: "feed prompt"},
		{ID: "question", Weight: 1, Prompt: "question prompt"},
		{ID: "observation", Weight: 1, Prompt: "observation prompt"},
	}
}

func testSelector(t *testing.T, templates []Template) *Selector {
	sel, err := NewSelector(templates, cachestore.NewMemCacheStore(100), "test-agent", nil)
	require.NoError(t, err)
	return sel
}

func TestForcedSwitch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	sel := testSelector(t, testTemplates())
	// would always pick "feed" on the weighted path
	sel.random = func() float64 { return 0.0 }

	require.NoError(t, sel.saveHistory(ctx, []string{"feed", "feed"}))
	tmpl, err := sel.Select(ctx)
	assert.NoError(err)
	assert.NotEqual("feed", tmpl.ID)

	history, err := sel.History(ctx)
	assert.NoError(err)
	assert.Equal([]string{"feed", "feed", tmpl.ID}, history)
}

func TestNeverThreeInARow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	r := rand.New(rand.NewPCG(7, 8))

	configs := [][]Template{
		testTemplates(),
		// overwhelmingly weighted toward one template
		{{ID: "a", Weight: 1000}, {ID: "b", Weight: 0.001}},
		// zero weights everywhere
		{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		// only one template is ever weighted-selectable
		{{ID: "a", Weight: 1}, {ID: "b", Weight: 0}},
	}
	for _, templates := range configs {
		sel := testSelector(t, templates)
		sel.random = r.Float64
		var picks []string
		for i := 0; i < 300; i++ {
			tmpl, err := sel.Select(ctx)
			assert.NoError(err)
			picks = append(picks, tmpl.ID)
		}
		for i := 2; i < len(picks); i++ {
			same := picks[i] == picks[i-1] && picks[i] == picks[i-2]
			assert.False(same, "template %s selected three times in a row", picks[i])
		}
	}
}

func TestWeightedChoice(t *testing.T) {
	assert := assert.New(t)
	templates := []Template{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 0},
		{ID: "c", Weight: 3},
	}

	assert.Equal(0, weightedChoice(templates, 0.0))
	assert.Equal(0, weightedChoice(templates, 0.24))
	assert.Equal(2, weightedChoice(templates, 0.25))
	assert.Equal(2, weightedChoice(templates, 0.9999))

	// roughly proportional to weight
	r := rand.New(rand.NewPCG(1, 1))
	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[templates[weightedChoice(templates, r.Float64())].ID]++
	}
	assert.Zero(counts["b"])
	assert.InDelta(7500, counts["c"], 300)
}

func TestForcedChoice(t *testing.T) {
	assert := assert.New(t)
	templates := testTemplates()

	assert.Equal(1, forcedChoice(templates, "feed", 0.0))
	assert.Equal(2, forcedChoice(templates, "feed", 0.99))
	assert.Equal(0, forcedChoice(templates, "question", 0.0))

	// nothing else to choose
	assert.Equal(0, forcedChoice([]Template{{ID: "only"}}, "only", 0.5))
}

func TestHistoryHelpers(t *testing.T) {
	assert := assert.New(t)

	_, ok := Repeated(nil)
	assert.False(ok)
	_, ok = Repeated([]string{"feed", "question"})
	assert.False(ok)
	id, ok := Repeated([]string{"question", "feed", "feed"})
	assert.True(ok)
	assert.Equal("feed", id)

	orig := []string{"a", "b", "c"}
	assert.Equal([]string{"b", "c", "d"}, AppendHistory(orig, "d"))
	assert.Equal([]string{"a", "b", "c"}, orig)
	assert.Equal([]string{"x"}, AppendHistory(nil, "x"))
}

func TestCorruptHistory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	sel := testSelector(t, testTemplates())

	require.NoError(t, sel.Cache.Set(ctx, "template-history", "test-agent", "not json", time.Time{}))
	tmpl, err := sel.Select(ctx)
	assert.NoError(err)
	assert.NotNil(tmpl)

	history, err := sel.History(ctx)
	assert.NoError(err)
	assert.Equal([]string{tmpl.ID}, history)
}

func TestNewSelectorValidation(t *testing.T) {
	assert := assert.New(t)
	cache := cachestore.NewMemCacheStore(10)

	_, err := NewSelector(nil, cache, "k", nil)
	assert.ErrorIs(err, ErrNoTemplates)

	_, err = NewSelector([]Template{{ID: "a"}, {ID: "a"}}, cache, "k", nil)
	assert.Error(err)

	_, err = NewSelector([]Template{{ID: "a", Prompt: "{% if %}"}}, cache, "k", nil)
	assert.Error(err)
}

func TestRender(t *testing.T) {
	assert := assert.New(t)

	for _, tmpl := range DefaultTemplates() {
		out, err := tmpl.Render(map[string]any{
			"agentName":    "Herald",
			"handle":       "herald.example.com",
			"bio":          "A test agent.",
			"topics":       []string{"go", "distributed systems"},
			"maxLength":    300,
			"allowThreads": true,
			"recentPosts":  []string{"an earlier post"},
			"timeline": []struct {
				Author string
				Text   string
			}{{Author: "alice.example.com", Text: "hello world"}},
		})
		assert.NoError(err, tmpl.ID)
		assert.Contains(out, "Herald")
		assert.Contains(out, "go, distributed systems")
		assert.Contains(out, "under 300 characters")
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	assert := assert.New(t)

	p := filepath.Join(t.TempDir(), "templates.json")
	raw := `[{"id": "feed", "weight": 2, "prompt": "hello {{ agentName }}"}, {"id": "other", "weight": 1, "prompt": "x"}]`
	assert.NoError(os.WriteFile(p, []byte(raw), 0644))

	templates, err := LoadFromFileJSON(p)
	assert.NoError(err)
	assert.Len(templates, 2)
	assert.Equal("feed", templates[0].ID)
	assert.Equal(2.0, templates[0].Weight)

	out, err := templates[0].Render(map[string]any{"agentName": "Herald"})
	assert.NoError(err)
	assert.Equal("hello Herald", out)
}

func TestRenderPlainText(t *testing.T) {
	tmpl := Template{ID: "raw", Prompt: "@{{ handle }} said: {{ text }}"}
	vars := Persona{Name: "Herald", Handle: "herald.example.com"}.Vars()
	vars["text"] = `it's "fine" & <b>bold</b>`
	out, err := tmpl.Render(vars)
	assert.NoError(t, err)
	assert.Equal(t, `@herald.example.com said: it's "fine" & <b>bold</b>`, out)
}
