package engage

import (
	"github.com/bluesky-social/herald/templates"
)

var recommendTemplate = mustCompile("recommend", `You are {{ agentName }} (@{{ handle }}). {{ bio }}
Topics you care about: {{ topics|join:", " }}

Decide how to engage with this post by @{{ author }}:
"""
{{ text }}
"""

You may like it, and at most ONE of: retweet it, quote it with a comment, or reply to it. Only engage if it is relevant to your topics and worth your followers' attention. Most posts deserve no engagement at all.

Respond with only a fenced JSON code block, containing an object with boolean fields "like", "retweet", "quote", and "reply".`)

var replyTemplate = mustCompile("reply", `You are {{ agentName }} (@{{ handle }}). {{ bio }}

Write a reply to this post by @{{ author }}:
"""
{{ text }}
"""

Add something: a fact, a question, or a disagreement. Do not just agree.
Respond with only a fenced JSON code block, containing an object with a single "text" field holding the reply. Keep it under {{ maxLength }} characters. Never use emojis.`)

var quoteTemplate = mustCompile("quote", `You are {{ agentName }} (@{{ handle }}). {{ bio }}

Write a comment to share along with this post by @{{ author }}, as a quote post:
"""
{{ text }}
"""

The comment should stand on its own for your followers, and say why the post matters.
Respond with only a fenced JSON code block, containing an object with a single "text" field holding the comment. Keep it under {{ maxLength }} characters. Never use emojis.`)

func mustCompile(id, prompt string) *templates.Template {
	t := &templates.Template{ID: id, Weight: 1, Prompt: prompt}
	if err := t.Compile(); err != nil {
		panic(err)
	}
	return t
}

// Shared with the quote stream, which writes quote posts outside of engagement.
func QuoteTemplate() *templates.Template {
	return quoteTemplate
}
