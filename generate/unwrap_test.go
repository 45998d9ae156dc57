package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwrap(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		raw  string
		text string
	}{
		{raw: "```json\n{\"user\": \"herald\", \"text\": \"gm, builders\"}\n```", text: "gm, builders"},
		{raw: "Sure! Here you go:\n```json\n{\"text\": \"  padded  \"}\n```\nHope that helps", text: "padded"},
		{raw: `{"text": "bare json"}`, text: "bare json"},
		{raw: "just some plain words", text: "just some plain words"},
		// JSON without a text field falls back to the raw output
		{raw: `{"action": "post"}`, text: `{"action": "post"}`},
		// broken JSON inside a fence falls back to the fence contents
		{raw: "```json\n{\"text\": \"unterminated\n```", text: "{\"text\": \"unterminated"},
		{raw: "text with {braces} in it", text: "text with {braces} in it"},
	}

	for _, tc := range tests {
		out, err := Unwrap(tc.raw)
		assert.NoError(err, tc.raw)
		assert.Equal(tc.text, out, tc.raw)
	}
}

func TestUnwrapEmpty(t *testing.T) {
	assert := assert.New(t)

	for _, raw := range []string{"", "   \n", "```json\n{\"text\": \"\"}\n```", "```\n```"} {
		_, err := Unwrap(raw)
		assert.ErrorIs(err, ErrMalformedOutput, raw)
	}
}

func TestParseFlags(t *testing.T) {
	assert := assert.New(t)

	flags, err := ParseFlags("```json\n{\"like\": true, \"retweet\": false, \"quote\": \"true\"}\n```", "like", "retweet", "quote", "reply")
	assert.NoError(err)
	assert.Equal(map[string]bool{"like": true, "retweet": false, "quote": true, "reply": false}, flags)

	flags, err = ParseFlags(`I think {"reply": true} is right`, "like", "reply")
	assert.NoError(err)
	assert.True(flags["reply"])
	assert.False(flags["like"])

	_, err = ParseFlags("no opinion", "like")
	assert.ErrorIs(err, ErrMalformedOutput)
}
