package source

import "fmt"

// Span is a half-open byte range [Start, End) within a single file.
type Span struct {
	File  FileID
	Start uint32
	End   uint32
}

// Empty reports whether the span covers zero bytes.
func (s Span) Empty() bool {
	return s.Start == s.End
}

// Len returns the number of bytes the span covers.
func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover returns the smallest span containing both s and other. Spans from
// different files cannot be merged; s is returned unchanged in that case.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// ShiftLeft moves both endpoints left by shift bytes. If shift exceeds
// Start, s is returned unchanged rather than underflowing.
func (s Span) ShiftLeft(shift uint32) Span {
	if shift > s.Start {
		return s
	}
	s.Start -= shift
	s.End -= shift
	return s
}

// ShiftRight moves both endpoints right by shift bytes. If shift exceeds
// the span's length, s is returned unchanged.
func (s Span) ShiftRight(shift uint32) Span {
	if shift > s.End-s.Start {
		return s
	}
	s.Start += shift
	s.End += shift
	return s
}

// ZeroideToStart collapses s to a zero-length span at its start, useful for
// synthesizing an insertion point immediately before s.
func (s Span) ZeroideToStart() Span {
	s.End = s.Start
	return s
}

// ZeroideToEnd collapses s to a zero-length span at its end, useful for
// synthesizing an insertion point immediately after s.
func (s Span) ZeroideToEnd() Span {
	s.Start = s.End
	return s
}
