package bubble

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// ErrUnsupportedGlyph is returned by [Face.Measure] when the font has no
// glyph for a rune in the measured string.
var ErrUnsupportedGlyph = errors.New("unsupported glyph")

// Measurer reports the advance width of a string in pixels.
type Measurer interface {
	Measure(s string) (float64, error)
}

// Face is a sized font face with glyph coverage checks.
//
// A Face carries scratch buffers and must not be shared between goroutines.
// The parsed [opentype.Font] it is built from may be shared freely.
type Face struct {
	// font is the parsed font used for glyph lookups.
	font *opentype.Font
	// face performs measurement and rasterization.
	face font.Face
	// buf is scratch space for sfnt glyph lookups.
	buf sfnt.Buffer
}

// NewFace creates a face for f at the given pixel size (72 DPI, unhinted so
// advances keep their fractional widths).
func NewFace(f *opentype.Font, size float64) (*Face, error) {
	if f == nil {
		return nil, errors.New("nil font")
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return &Face{font: f, face: face}, nil
}

// Close releases the underlying face.
func (f *Face) Close() error {
	return f.face.Close()
}

// Supports reports whether the font has a glyph for r.
func (f *Face) Supports(r rune) bool {
	idx, err := f.font.GlyphIndex(&f.buf, r)
	return err == nil && idx != 0
}

// Measure returns the advance width of s. It fails with
// [ErrUnsupportedGlyph] if any rune in s has no glyph.
func (f *Face) Measure(s string) (float64, error) {
	for _, r := range s {
		if !f.Supports(r) {
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedGlyph, r)
		}
	}
	return f.Advance(s), nil
}

// Printable returns s with every rune the font has no glyph for replaced by
// a space, the same substitution [WrapText] makes for bubble text.
func (f *Face) Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || f.Supports(r) {
			return r
		}
		return ' '
	}, s)
}

// Advance returns the advance width of s without checking glyph coverage.
// Missing glyphs contribute the width of the font's notdef glyph.
func (f *Face) Advance(s string) float64 {
	return fixedToFloat(font.MeasureString(f.face, s))
}

// InkHeight returns the height of the ink bounding box of s.
func (f *Face) InkHeight(s string) float64 {
	b, _ := font.BoundString(f.face, s)
	return fixedToFloat(b.Max.Y - b.Min.Y)
}

// RuneHeight returns the ink height of r, or the face's ascent plus descent
// when the font has no glyph for r.
func (f *Face) RuneHeight(r rune) float64 {
	if f.Supports(r) {
		return f.InkHeight(string(r))
	}
	m := f.face.Metrics()
	return fixedToFloat(m.Ascent + m.Descent)
}

// Ascent returns the distance from the top of a line to its baseline.
func (f *Face) Ascent() int {
	return f.face.Metrics().Ascent.Ceil()
}

// DrawString draws s onto dst with its ascender line at y.
func (f *Face) DrawString(dst draw.Image, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: f.face,
		Dot:  fixed.P(x, y+f.Ascent()),
	}
	d.DrawString(s)
}

// fixedToFloat converts a 26.6 fixed-point value to float64 pixels.
func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
