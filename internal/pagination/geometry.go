package pagination

import (
	"errors"

	"github.com/dgallion1/tategaki/internal/content"
)

// ErrElementNotFound is returned by a GeometryProvider when a run has no
// rendered element, typically because the tree changed after layout.
var ErrElementNotFound = errors.New("pagination: element not found")

// ElementKey identifies a rendered element that holds one or more runs.
type ElementKey string

// Rect is an axis-aligned box in surface units. X grows rightwards, Y grows
// downwards.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// GeometryProvider exposes the rendered layout the engine measures. It hides
// whatever surface produced the layout.
type GeometryProvider interface {
	// ContainerHeight is the cross-axis extent of the writing surface. Zero
	// means the surface has not been laid out.
	ContainerHeight() float64
	// ContainerRight is the trailing (right) edge of the container.
	ContainerRight() float64
	// ViewportEdge is the trailing edge of the viewport.
	ViewportEdge() float64
	// ScrollOffset is the current horizontal scroll position.
	ScrollOffset() float64
	// RunElement resolves the element containing a text run and its box.
	RunElement(key content.NodeKey) (ElementKey, Rect, error)
}
