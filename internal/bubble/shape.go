package bubble

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
)

// ///////////////////////////////////////////////
// Shapes
// ///////////////////////////////////////////////

// fillRoundedRect fills dst with a rounded rectangle spanning its bounds.
// A positive lineWidth also strokes the border with outline, inset so the
// stroke stays inside dst.
func fillRoundedRect(dst *image.RGBA, radius float64, fill, outline color.Color, lineWidth float64) {
	b := dst.Bounds()
	inset := lineWidth / 2
	x1, y1 := float64(b.Min.X)+inset, float64(b.Min.Y)+inset
	x2, y2 := float64(b.Max.X)-inset, float64(b.Max.Y)-inset
	radius = clampRadius(radius, x2-x1, y2-y1)

	gc := draw2dimg.NewGraphicContext(dst)
	gc.SetFillColor(fill)
	draw2dkit.RoundedRectangle(gc, x1, y1, x2, y2, 2*radius, 2*radius)
	if lineWidth > 0 {
		gc.SetStrokeColor(outline)
		gc.SetLineWidth(lineWidth)
		gc.FillStroke()
		return
	}
	gc.Fill()
}

// clampRadius keeps a corner radius within half of the shorter side.
func clampRadius(radius, w, h float64) float64 {
	limit := min(w, h) / 2
	if radius > limit {
		radius = limit
	}
	if radius < 0 {
		radius = 0
	}
	return radius
}

// RoundedMask returns a w×h mask that is opaque inside a rounded rectangle
// with the given corner radius.
func RoundedMask(w, h int, radius float64) *image.RGBA {
	mask := image.NewRGBA(image.Rect(0, 0, w, h))
	fillRoundedRect(mask, radius, color.White, nil, 0)
	return mask
}

// CircleMask returns a size×size mask that is opaque inside the inscribed
// circle.
func CircleMask(size int) *image.RGBA {
	mask := image.NewRGBA(image.Rect(0, 0, size, size))
	r := float64(size) / 2
	gc := draw2dimg.NewGraphicContext(mask)
	gc.SetFillColor(color.White)
	draw2dkit.Circle(gc, r, r, r)
	gc.Fill()
	return mask
}

// ApplyMask copies src onto a transparent canvas of the same size through
// the alpha channel of mask.
func ApplyMask(src image.Image, mask image.Image) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.DrawMask(out, out.Bounds(), src, b.Min, mask, mask.Bounds().Min, draw.Over)
	return out
}
