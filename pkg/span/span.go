// Package span provides the half-open integer text range used to address
// regions of a document.
package span

import "fmt"

// Span is the half-open range [Begin, End) over a document's text.
type Span struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// New returns a validated Span.
func New(begin, end int) (Span, error) {
	s := Span{Begin: begin, End: end}
	if err := s.Validate(); err != nil {
		return Span{}, err
	}
	return s, nil
}

// Validate reports whether the span is well formed.
func (s Span) Validate() error {
	if s.Begin < 0 {
		return fmt.Errorf("span begin %d is negative", s.Begin)
	}
	if s.End < s.Begin {
		return fmt.Errorf("span end %d precedes begin %d", s.End, s.Begin)
	}
	return nil
}

// Compare orders spans by (Begin, End).
func (s Span) Compare(o Span) int {
	switch {
	case s.Begin < o.Begin:
		return -1
	case s.Begin > o.Begin:
		return 1
	case s.End < o.End:
		return -1
	case s.End > o.End:
		return 1
	}
	return 0
}

func (s Span) Less(o Span) bool {
	return s.Compare(o) < 0
}

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool {
	return o.Begin >= s.Begin && o.End <= s.End
}

// Overlaps reports whether the two spans share at least one position.
// Zero-length spans overlap nothing.
func (s Span) Overlaps(o Span) bool {
	return !(s.Begin >= o.End || s.End <= o.Begin)
}

// Len returns the number of positions covered.
func (s Span) Len() int {
	return s.End - s.Begin
}

// Shift returns the span expressed relative to offset.
func (s Span) Shift(offset int) Span {
	return Span{Begin: s.Begin - offset, End: s.End - offset}
}

// Pair returns the span as a two-element array, the shape used in flat records.
func (s Span) Pair() [2]int {
	return [2]int{s.Begin, s.End}
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Begin, s.End)
}
