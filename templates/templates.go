package templates

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/flosch/pongo2/v6"
)

type Template struct {
	ID string `json:"id"`
	// Relative selection weight; non-positive weights are never picked by the weighted path.
	Weight float64 `json:"weight"`
	// pongo2 template source
	Prompt string `json:"prompt"`

	compiled *pongo2.Template
}

// Compiles the prompt source. Called by [NewSelector]; only needed directly when rendering a template outside a selector.
func (t *Template) Compile() error {
	// prompts are plain text; HTML escaping would mangle quoted posts
	tpl, err := pongo2.FromString("{% autoescape off %}" + t.Prompt + "{% endautoescape %}")
	if err != nil {
		return fmt.Errorf("compiling template %s: %w", t.ID, err)
	}
	t.compiled = tpl
	return nil
}

func (t *Template) Render(vars map[string]any) (string, error) {
	if t.compiled == nil {
		if err := t.Compile(); err != nil {
			return "", err
		}
	}
	out, err := t.compiled.Execute(pongo2.Context(vars))
	if err != nil {
		return "", fmt.Errorf("rendering template %s: %w", t.ID, err)
	}
	return out, nil
}

// Reads a JSON array of templates (id, weight, prompt) from a file.
func LoadFromFileJSON(p string) ([]Template, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var out []Template
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

const outputInstructions = `
Respond with only a fenced JSON code block, containing an object with a single "text" field holding the post. Keep it under {{ maxLength }} characters{% if allowThreads %}, unless a short thread (paragraphs separated by blank lines) is truly needed{% endif %}. No hashtags unless essential. Never use emojis.`

// Post shapes used for regular posting when no template file is configured.
func DefaultTemplates() []Template {
	return []Template{
		{
			ID:     "feed",
			Weight: 3,
			Prompt: `You are {{ agentName }} (@{{ handle }}). {{ bio }}
Topics you care about: {{ topics|join:", " }}.
{% if timeline %}Recent posts from your timeline:
{% for item in timeline %}- @{{ item.Author }}: {{ item.Text }}
{% endfor %}{% endif %}{% if recentPosts %}Your own recent posts (do not repeat them):
{% for p in recentPosts %}- {{ p }}
{% endfor %}{% endif %}
Write a new post reacting to what is happening in your feed, in your own voice.` + outputInstructions,
		},
		{
			ID:     "observation",
			Weight: 2,
			Prompt: `You are {{ agentName }} (@{{ handle }}). {{ bio }}
Topics you care about: {{ topics|join:", " }}.
{% if recentPosts %}Your own recent posts (do not repeat them):
{% for p in recentPosts %}- {{ p }}
{% endfor %}{% endif %}
Share one specific, concrete observation about one of your topics. State it plainly.` + outputInstructions,
		},
		{
			ID:     "question",
			Weight: 1,
			Prompt: `You are {{ agentName }} (@{{ handle }}). {{ bio }}
Topics you care about: {{ topics|join:", " }}.
Ask your followers one open question about one of your topics that you genuinely want answered.` + outputInstructions,
		},
		{
			ID:     "hot-take",
			Weight: 1,
			Prompt: `You are {{ agentName }} (@{{ handle }}). {{ bio }}
Topics you care about: {{ topics|join:", " }}.
{% if recentPosts %}Your own recent posts (do not repeat them):
{% for p in recentPosts %}- {{ p }}
{% endfor %}{% endif %}
Write a short, confident opinion on one of your topics that some people would disagree with.` + outputInstructions,
		},
	}
}
