package segment

import (
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// byte offsets of each grapheme cluster in a string
type graphemes struct {
	s      string
	starts []int
	ends   []int
}

func splitGraphemes(s string) graphemes {
	g := graphemes{s: s}
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		from, to := gr.Positions()
		g.starts = append(g.starts, from)
		g.ends = append(g.ends, to)
	}
	return g
}

func (g graphemes) Len() int {
	return len(g.starts)
}

func (g graphemes) Start(i int) int {
	return g.starts[i]
}

func (g graphemes) End(i int) int {
	return g.ends[i]
}

func (g graphemes) At(i int) string {
	return g.s[g.starts[i]:g.ends[i]]
}

// Number of grapheme clusters in s.
func Length(s string) int {
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n++
	}
	return n
}

func isSpace(cluster string) bool {
	r, _ := utf8.DecodeRuneInString(cluster)
	return unicode.IsSpace(r)
}

func isTerminator(cluster string) bool {
	switch cluster {
	case ".", "!", "?", "。", "！", "？":
		return true
	}
	return false
}
