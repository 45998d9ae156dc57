package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n?(.*?)```")

// Finds a JSON object in raw model output: the first fenced code block if there is one, otherwise the outermost braces.
func extractJSON(raw string) (string, bool) {
	candidates := []string{}
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}
	for _, c := range candidates {
		if gjson.Valid(c) && gjson.Parse(c).IsObject() {
			return c, true
		}
	}
	return "", false
}

// Extracts the post text from raw model output. Output which contains a JSON object with a "text" field yields that field; anything else is treated as plain text. Returns [ErrMalformedOutput] if nothing usable remains.
func Unwrap(raw string) (string, error) {
	if obj, ok := extractJSON(raw); ok {
		text := gjson.Get(obj, "text")
		if text.Type == gjson.String {
			out := strings.TrimSpace(text.String())
			if out == "" {
				return "", fmt.Errorf("%w: empty text field", ErrMalformedOutput)
			}
			return out, nil
		}
	}

	out := strings.TrimSpace(fencedBlock.ReplaceAllStringFunc(raw, func(s string) string {
		return strings.TrimSpace(fencedBlock.FindStringSubmatch(s)[1])
	}))
	if out == "" {
		return "", fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}
	return out, nil
}

// Extracts the named boolean fields from a JSON object in raw model output. Missing fields are false; string values like "true" are accepted.
func ParseFlags(raw string, keys ...string) (map[string]bool, error) {
	obj, ok := extractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedOutput)
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = gjson.Get(obj, k).Bool()
	}
	return out, nil
}
