package segment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrEmptyContent  = errors.New("empty content")
	ErrInvalidLength = errors.New("invalid maximum segment length")
)

// Bluesky post text limit, in graphemes.
const DefaultMaxLength = 300

const DefaultEllipsis = "..."

type Options struct {
	// Split into multiple segments (a thread) instead of truncating.
	AllowThreads bool
	// Keep paragraph (blank line) structure. When false, all whitespace runs are collapsed to single spaces.
	PreserveFormatting bool
	// Maximum length of each segment, in graphemes. Defaults to [DefaultMaxLength].
	MaxLength int
	// Appended when text is cut mid-sentence in single-segment mode. Defaults to [DefaultEllipsis].
	Ellipsis string
}

var blankLineRegex = regexp.MustCompile(`\n[ \t\r]*\n`)

// Turns raw text into a non-empty list of segments, each at most opts.MaxLength graphemes. When threads are not allowed, the result always has exactly one element.
func Process(raw string, opts Options) ([]string, error) {
	if opts.MaxLength == 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxLength < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, opts.MaxLength)
	}
	if opts.Ellipsis == "" {
		opts.Ellipsis = DefaultEllipsis
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrEmptyContent
	}
	if !opts.PreserveFormatting {
		text = strings.Join(strings.Fields(text), " ")
	}

	var out []string
	if opts.AllowThreads {
		out = Thread(text, opts.MaxLength, opts.PreserveFormatting)
	} else {
		out = []string{Truncate(text, opts.MaxLength, opts.Ellipsis)}
	}
	segmentCount.Observe(float64(len(out)))
	return out, nil
}

// Returns text unchanged if it fits in max graphemes; otherwise cuts it down, preferring (in order) the last sentence end, the last word boundary plus ellipsis, or a hard cut plus ellipsis. The result is never longer than max.
func Truncate(text string, max int, ellipsis string) string {
	text = strings.TrimSpace(text)
	g := splitGraphemes(text)
	if g.Len() <= max {
		return text
	}
	if max <= 0 {
		return ""
	}

	// (a) sentence end: terminal punctuation followed by whitespace. Index i+1 always exists because the text is longer than max.
	for i := max - 1; i >= 0; i-- {
		if isTerminator(g.At(i)) && isSpace(g.At(i+1)) {
			if cand := strings.TrimSpace(text[:g.End(i)]); cand != "" {
				return cand
			}
		}
	}

	el := Length(ellipsis)
	if max <= el {
		// no room for an ellipsis at all
		return text[:g.End(max-1)]
	}

	// (b) word boundary; leaves room for the ellipsis
	for i := max - el; i > 0; i-- {
		if isSpace(g.At(i)) {
			if cand := strings.TrimSpace(text[:g.Start(i)]); cand != "" {
				return cand + ellipsis
			}
		}
	}

	// (c) hard cut
	return strings.TrimSpace(text[:g.End(max-el-1)]) + ellipsis
}

// Splits text into segments of at most max graphemes, without losing or re-ordering any words.
//
// If paragraphs is true, blank lines separate paragraphs, and paragraphs are kept whole (joined by a blank line) where they fit. A single word longer than max is the only thing ever split mid-word. Nothing fits in a non-positive max, so the result is empty.
func Thread(text string, max int, paragraphs bool) []string {
	if max <= 0 {
		return nil
	}
	var parts []string
	if paragraphs {
		for _, p := range blankLineRegex.Split(text, -1) {
			p = strings.TrimSpace(p)
			if p != "" {
				parts = append(parts, p)
			}
		}
	} else {
		text = strings.TrimSpace(text)
		if text != "" {
			parts = []string{text}
		}
	}
	return packGreedy(parts, "\n\n", max, func(p string) []string {
		return packGreedy(Sentences(p), " ", max, func(s string) []string {
			return packGreedy(strings.Fields(s), " ", max, func(w string) []string {
				return hardSplit(w, max)
			})
		})
	})
}

// Packs pieces into as few segments as possible, in order, joining with sep. A piece which alone exceeds max is handed to split, which must return a non-empty list of pieces that each fit; the last of those stays open for further packing.
func packGreedy(pieces []string, sep string, max int, split func(string) []string) []string {
	var out []string
	cur := ""
	for _, piece := range pieces {
		if cur == "" && Length(piece) <= max {
			cur = piece
			continue
		}
		if cur != "" && Length(cur+sep+piece) <= max {
			cur = cur + sep + piece
			continue
		}
		if cur != "" {
			out = append(out, cur)
			cur = ""
		}
		if Length(piece) <= max {
			cur = piece
			continue
		}
		chunks := split(piece)
		out = append(out, chunks[:len(chunks)-1]...)
		cur = chunks[len(chunks)-1]
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

var sentenceEndRegex = regexp.MustCompile(`[.!?。！？]+\s+`)

// Splits a paragraph after each run of terminal punctuation which is followed by whitespace. Sentences are returned trimmed; no words are lost.
func Sentences(p string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRegex.FindAllStringIndex(p, -1) {
		if s := strings.TrimSpace(p[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(p[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func hardSplit(word string, max int) []string {
	if max <= 0 {
		return []string{word}
	}
	g := splitGraphemes(word)
	var out []string
	for start := 0; start < g.Len(); start += max {
		end := start + max
		if end > g.Len() {
			end = g.Len()
		}
		out = append(out, word[g.Start(start):g.End(end-1)])
	}
	if len(out) == 0 {
		out = []string{word}
	}
	return out
}
