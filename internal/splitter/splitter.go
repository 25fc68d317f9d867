// Package splitter cuts extracted document text into overlapping segments
// sized for embedding.
package splitter

import (
	"strings"
	"unicode"
)

// DefaultChunkSize is the default number of characters per segment.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by
// consecutive segments.
const DefaultChunkOverlap = 200

// breaks lists the natural boundaries tried before a hard cut, strongest
// first. A cut is placed right after the separator.
var breaks = [][]string{
	{"\n\n"},
	{". ", "! ", "? ", ".\n", "!\n", "?\n"},
	{"\n"},
	{" ", "\t"},
}

// Splitter splits text by character count. Segments are contiguous spans of
// the input, so dropping each segment's overlap with its predecessor and
// concatenating the rest reproduces the input exactly.
type Splitter struct {
	size    int
	overlap int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum segment length in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive segments in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// New creates a Splitter. An overlap that is not smaller than the size is
// reduced to a quarter of the size.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.size {
		s.overlap = s.size / 4
	}
	return s
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Span is a segment as rune offsets into the input, End exclusive.
type Span struct {
	Start int
	End   int
}

// Split returns the segments of text. Empty or whitespace-only text yields
// no segments.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	spans := s.spans(runes)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = string(runes[sp.Start:sp.End])
	}
	return out
}

// Spans returns the segment boundaries of text in rune offsets.
func (s *Splitter) Spans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.spans([]rune(text))
}

func (s *Splitter) spans(runes []rune) []Span {
	n := len(runes)
	var out []Span
	start := 0
	for {
		if n-start <= s.size {
			out = append(out, Span{Start: start, End: n})
			return out
		}
		end := s.cut(runes, start)
		out = append(out, Span{Start: start, End: end})
		start = s.nextStart(runes, start, end)
	}
}

// cut picks the end of the segment starting at start. The cut must leave room
// for the overlap so the next segment starts strictly later.
func (s *Splitter) cut(runes []rune, start int) int {
	limit := start + s.size
	minEnd := start + s.size/2
	if floor := start + s.overlap + 1; floor > minEnd {
		minEnd = floor
	}
	for _, group := range breaks {
		if end := lastBreak(runes, minEnd, limit, group); end > 0 {
			return end
		}
	}
	return limit
}

// nextStart backs up by the overlap from end and then moves forward to the
// first word start, staying before end.
func (s *Splitter) nextStart(runes []rune, prevStart, end int) int {
	target := end - s.overlap
	if target <= prevStart {
		target = prevStart + 1
	}
	if s.overlap == 0 {
		return end
	}
	for p := target; p < end; p++ {
		if p == 0 || (unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p])) {
			return p
		}
	}
	return target
}

// lastBreak returns the largest position in [minEnd, limit] that directly
// follows one of the separators, or 0.
func lastBreak(runes []rune, minEnd, limit int, separators []string) int {
	best := 0
	for _, sep := range separators {
		sr := []rune(sep)
		for end := limit; end >= minEnd && end > best; end-- {
			if hasSuffixAt(runes, end, sr) {
				best = end
				break
			}
		}
	}
	return best
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	if end-len(sep) < 0 || end > len(runes) {
		return false
	}
	for i, r := range sep {
		if runes[end-len(sep)+i] != r {
			return false
		}
	}
	return true
}
