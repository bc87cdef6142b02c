package pagination

import (
	"math"
	"slices"
	"sync"

	"github.com/dgallion1/tategaki/internal/content"
)

// Marker is a presentation-only page-break decoration. It is regenerated on
// every pass and never persisted.
type Marker struct {
	NodeKey    content.NodeKey `json:"nodeKey"`
	ElementKey ElementKey      `json:"elementKey"`
	// Offset is how far the run sits into the horizontal scroll.
	Offset float64 `json:"offset"`
	// Position is measured from the container's trailing edge.
	Position   float64 `json:"position"`
	PageNumber int     `json:"pageNumber"`
}

// Decorations is the transient layer markers are attached to.
type Decorations interface {
	Clear()
	Attach(m Marker)
}

// IndicatorGap is the distance under which two indicators are considered
// the same break.
const IndicatorGap = 5

// Indicator is a rendered page-break line.
type Indicator struct {
	Position   float64 `json:"position"`
	PageNumber int     `json:"pageNumber"`
}

// MarkerSet is an in-memory Decorations layer safe for concurrent use.
type MarkerSet struct {
	mu      sync.RWMutex
	markers []Marker
}

// NewMarkerSet returns an empty set.
func NewMarkerSet() *MarkerSet { return &MarkerSet{} }

func (s *MarkerSet) Clear() {
	s.mu.Lock()
	s.markers = nil
	s.mu.Unlock()
}

func (s *MarkerSet) Attach(m Marker) {
	s.mu.Lock()
	s.markers = append(s.markers, m)
	s.mu.Unlock()
}

// Replace swaps in markers wholesale.
func (s *MarkerSet) Replace(markers []Marker) {
	s.mu.Lock()
	s.markers = slices.Clone(markers)
	s.mu.Unlock()
}

// Len returns the number of attached markers.
func (s *MarkerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

// Markers returns the attached markers in page order.
func (s *MarkerSet) Markers() []Marker {
	s.mu.RLock()
	out := slices.Clone(s.markers)
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b Marker) int { return a.PageNumber - b.PageNumber })
	return out
}

// Indicators returns one indicator per distinct break position, sorted by
// position. Breaks closer than IndicatorGap to an earlier one are dropped.
func (s *MarkerSet) Indicators() []Indicator {
	return Indicators(s.Markers())
}

// Indicators collapses markers into sorted indicator lines.
func Indicators(markers []Marker) []Indicator {
	var out []Indicator
	for _, m := range markers {
		dup := slices.ContainsFunc(out, func(in Indicator) bool {
			return math.Abs(in.Position-m.Position) < IndicatorGap
		})
		if !dup {
			out = append(out, Indicator{Position: m.Position, PageNumber: m.PageNumber})
		}
	}
	slices.SortStableFunc(out, func(a, b Indicator) int {
		switch {
		case a.Position < b.Position:
			return -1
		case a.Position > b.Position:
			return 1
		}
		return 0
	})
	return out
}
