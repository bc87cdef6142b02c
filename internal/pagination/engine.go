package pagination

import (
	"errors"
	"log/slog"

	"github.com/dgallion1/tategaki/internal/content"
)

// Defaults for the page capacity derivation.
const (
	DefaultPageWidth       = 800
	DefaultReferenceHeight = 400
)

// Engine classifies page-break positions over measured run geometry.
//
// Capacity is derived one way only: ContainerHeight / ReferenceHeight *
// PageWidth. A taller container holds proportionally more per page.
type Engine struct {
	PageWidth       float64
	ReferenceHeight float64
	log             *slog.Logger
}

// NewEngine returns an engine; non-positive values take the defaults.
func NewEngine(pageWidth, referenceHeight float64, log *slog.Logger) *Engine {
	if pageWidth <= 0 {
		pageWidth = DefaultPageWidth
	}
	if referenceHeight <= 0 {
		referenceHeight = DefaultReferenceHeight
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{PageWidth: pageWidth, ReferenceHeight: referenceHeight, log: log}
}

// Capacity returns the page capacity for a container height.
func (e *Engine) Capacity(containerHeight float64) float64 {
	return containerHeight / e.ReferenceHeight * e.PageWidth
}

// Placement records where one run landed.
type Placement struct {
	NodeKey content.NodeKey `json:"nodeKey"`
	Offset  float64         `json:"offset"`
	Page    int             `json:"page"`
	Break   bool            `json:"break,omitempty"`
}

// Result summarizes one pass.
type Result struct {
	Markers    []Marker    `json:"markers"`
	Placements []Placement `json:"placements"`
	// PageCount is the number of pages; zero when the pass was deferred.
	PageCount int     `json:"pageCount"`
	Capacity  float64 `json:"capacity"`
	Runs      int     `json:"runs"`
	Skipped   int     `json:"skipped"`
	// Deferred is set when the container had no height yet.
	Deferred bool `json:"deferred,omitempty"`
}

// Run executes one pass. It reads t and geom and writes only to deco.
//
// Markers are reset first, so running twice over the same tree and geometry
// yields the same markers. Runs whose element cannot be resolved are
// skipped without failing the pass.
func (e *Engine) Run(t *content.Tree, geom GeometryProvider, deco Decorations) Result {
	deco.Clear()

	height := geom.ContainerHeight()
	if height <= 0 {
		return Result{Deferred: true}
	}
	res := Result{Capacity: e.Capacity(height), PageCount: 1}

	viewport := geom.ViewportEdge()
	scroll := geom.ScrollOffset()
	right := geom.ContainerRight()

	var lastBreak float64
	page := 1
	for _, key := range t.TextNodes() {
		res.Runs++
		el, rect, err := geom.RunElement(key)
		if err != nil {
			if !errors.Is(err, ErrElementNotFound) {
				e.log.Debug("run measurement failed", "node", key, "error", err)
			}
			res.Skipped++
			continue
		}
		offset := viewport - rect.Left - scroll
		p := Placement{NodeKey: key, Offset: offset, Page: page}
		if offset-lastBreak > res.Capacity {
			m := Marker{
				NodeKey:    key,
				ElementKey: el,
				Offset:     offset,
				Position:   right - rect.Right,
				PageNumber: page,
			}
			deco.Attach(m)
			res.Markers = append(res.Markers, m)
			page++
			lastBreak = offset
			p.Page, p.Break = page, true
		}
		res.Placements = append(res.Placements, p)
	}
	res.PageCount = page
	return res
}
