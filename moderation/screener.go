package moderation

import (
	"transfer-lab/errors"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Screener matches content against a blocklist of byte signatures with an
// Aho-Corasick automaton, so one pass over the content checks every
// signature at once regardless of how many are loaded.
type Screener struct {
	matcher *goahocorasick.Machine
	longest int
}

func NewScreener(signatures [][]byte) (*Screener, error) {
	if len(signatures) == 0 {
		return nil, errors.ErrEmptyPatterns
	}

	longest := 0
	patterns := make([][]rune, len(signatures))
	for i, sig := range signatures {
		patterns[i] = byteRunes(sig)
		if len(sig) > longest {
			longest = len(sig)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Screener{matcher: m, longest: longest}, nil
}

// Match reports whether content contains any loaded signature.
func (s *Screener) Match(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	return len(s.matcher.MultiPatternSearch(byteRunes(content), true)) > 0
}

// NewScan starts a streaming match. Feed the content block by block; the
// scan keeps a tail of the previous block so a signature straddling two
// blocks is still found.
func (s *Screener) NewScan() *Scan {
	return &Scan{screener: s}
}

type Scan struct {
	screener *Screener
	carry    []rune
}

// Feed reports whether any signature appears in the stream so far.
func (sc *Scan) Feed(block []byte) bool {
	if len(block) == 0 {
		return false
	}
	window := make([]rune, 0, len(sc.carry)+len(block))
	window = append(window, sc.carry...)
	for _, b := range block {
		window = append(window, rune(b))
	}

	if len(sc.screener.matcher.MultiPatternSearch(window, true)) > 0 {
		return true
	}

	keep := sc.screener.longest - 1
	if keep > len(window) {
		keep = len(window)
	}
	sc.carry = append(sc.carry[:0], window[len(window)-keep:]...)
	return false
}

// byteRunes widens raw bytes rune by rune. The automaton works on runes, and
// a one-to-one mapping keeps signature offsets exact for arbitrary binary
// content.
func byteRunes(b []byte) []rune {
	out := make([]rune, len(b))
	for i, c := range b {
		out[i] = rune(c)
	}
	return out
}
