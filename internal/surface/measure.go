package surface

import (
	"fmt"
	"image/color"
	"os"
	"sync"

	"github.com/tdewolff/canvas"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/text/width"
)

// Measurer returns the vertical advance of a glyph, in pixels, for a given
// font size in pixels.
type Measurer interface {
	Advance(r rune, size float64) float64
}

// FullWidth reports whether r occupies a full em square in vertical text.
func FullWidth(r rune) bool {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return false
}

// FixedMeasurer advances full-width glyphs by one em and everything else by
// half an em.
type FixedMeasurer struct{}

func (FixedMeasurer) Advance(r rune, size float64) float64 {
	if FullWidth(r) {
		return size
	}
	return size / 2
}

const (
	pxPerPt = 96.0 / 72.0
	pxPerMM = 96.0 / 25.4
)

// FontMeasurer measures half-width glyphs with a real font. Full-width
// glyphs still advance one em: vertical CJK text sits on an em grid.
type FontMeasurer struct {
	family *canvas.FontFamily

	mu    sync.Mutex
	faces map[float64]*canvas.FontFace
	cache map[advanceKey]float64
}

type advanceKey struct {
	r    rune
	size float64
}

// NewFontMeasurer loads the font at path, or the embedded Go font when path
// is empty.
func NewFontMeasurer(path string) (*FontMeasurer, error) {
	data := goregular.TTF
	name := "go-regular"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading font: %w", err)
		}
		data, name = b, path
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("loading font %s: %w", name, err)
	}
	return &FontMeasurer{
		family: family,
		faces:  make(map[float64]*canvas.FontFace),
		cache:  make(map[advanceKey]float64),
	}, nil
}

func (m *FontMeasurer) Advance(r rune, size float64) float64 {
	if FullWidth(r) {
		return size
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := advanceKey{r, size}
	if adv, ok := m.cache[k]; ok {
		return adv
	}
	face, ok := m.faces[size]
	if !ok {
		face = m.family.Face(size/pxPerPt, color.Black, canvas.FontRegular, canvas.FontNormal)
		m.faces[size] = face
	}
	adv := face.TextWidth(string(r)) * pxPerMM
	if adv <= 0 {
		adv = size / 2
	}
	m.cache[k] = adv
	return adv
}
