package bubble

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
)

// Scale is the supersampling factor. Bubbles and badges are drawn at Scale
// times their final size and downsampled once before composition.
const Scale = 4

// ///////////////////////////////////////////////
// Layout
// ///////////////////////////////////////////////

// Layout holds the geometry and colors of a rendered message. Sizes are in
// final-canvas pixels unless a field says otherwise.
type Layout struct {
	// BubbleFontSize is the bubble text size.
	BubbleFontSize float64
	// NicknameFontSize is the display name size.
	NicknameFontSize float64
	// TitleFontSize is the title badge text size.
	TitleFontSize float64

	// BubblePadding is the inner bubble padding, also added to name and title
	// widths when sizing the canvas.
	BubblePadding int
	// TitlePaddingX is the horizontal badge padding in supersampled pixels.
	TitlePaddingX int
	// TitlePaddingY is the vertical badge padding unit in supersampled pixels.
	TitlePaddingY int
	// TitleTextOffsetY is the badge text top offset in supersampled pixels.
	TitleTextOffsetY int
	// TitleBubbleOffset moves the badge down from the avatar top.
	TitleBubbleOffset int
	// TitleNameOffset is added between the title and the display name.
	TitleNameOffset int

	// CornerRadius is the bubble corner radius.
	CornerRadius int
	// TitleCornerRadius is the badge corner radius.
	TitleCornerRadius int
	// OutlineWidth is the bubble outline width.
	OutlineWidth int
	// LineGap is added to the glyph height to form the line height.
	LineGap int
	// TitleTextGap is added to the title text height to form the badge
	// text height.
	TitleTextGap int

	// AvatarSize is the side of the square avatar.
	AvatarSize int
	// Margin is kept between content and the canvas edge.
	Margin int
	// MaxWidth is the widest a bubble may grow.
	MaxWidth int
	// BubblePosition is the top-left corner of the bubble.
	BubblePosition image.Point
	// AvatarPosition is the top-left corner of the avatar.
	AvatarPosition image.Point

	// ImageScale shrinks embedded images before fitting.
	ImageScale float64
	// ImageRadiusRatio is the image corner radius relative to its short side.
	ImageRadiusRatio float64
	// ImageMaxRadius caps the image corner radius.
	ImageMaxRadius int

	// Background is the canvas color.
	Background color.NRGBA
	// BubbleFill is the bubble background.
	BubbleFill color.NRGBA
	// BubbleOutline is the bubble border.
	BubbleOutline color.NRGBA
	// TextColor is the bubble and display name text color.
	TextColor color.NRGBA
	// TitleTextColor is the badge text color.
	TitleTextColor color.NRGBA
	// AvatarPlaceholder fills the avatar square when no avatar can be loaded.
	AvatarPlaceholder color.NRGBA

	// MaxCanvasPixels bounds every raster allocation.
	MaxCanvasPixels int
}

// DefaultLayout returns the reference layout.
func DefaultLayout() Layout {
	return Layout{
		BubbleFontSize:   34,
		NicknameFontSize: 25,
		TitleFontSize:    19,

		BubblePadding:     20,
		TitlePaddingX:     25,
		TitlePaddingY:     15,
		TitleTextOffsetY:  8,
		TitleBubbleOffset: 5,
		TitleNameOffset:   -1,

		CornerRadius:      27,
		TitleCornerRadius: 8,
		OutlineWidth:      2,
		LineGap:           4,
		TitleTextGap:      4,

		AvatarSize:     89,
		Margin:         20,
		MaxWidth:       640,
		BubblePosition: image.Pt(120, 60),
		AvatarPosition: image.Pt(23, 10),

		ImageScale:       0.8,
		ImageRadiusRatio: 0.05,
		ImageMaxRadius:   50,

		Background:        color.NRGBA{R: 0xF0, G: 0xF0, B: 0xF2, A: 0xFF},
		BubbleFill:        color.NRGBA{R: 255, G: 255, B: 255, A: 220},
		BubbleOutline:     color.NRGBA{R: 230, G: 230, B: 230, A: 255},
		TextColor:         color.NRGBA{A: 255},
		TitleTextColor:    color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		AvatarPlaceholder: color.NRGBA{R: 200, G: 200, B: 200, A: 255},

		MaxCanvasPixels: 40_000_000,
	}
}

// Validate checks that the layout can produce a canvas.
func (l Layout) Validate() error {
	if l.BubbleFontSize <= 0 || l.NicknameFontSize <= 0 || l.TitleFontSize <= 0 {
		return fmt.Errorf("font sizes must be > 0, got %v/%v/%v",
			l.BubbleFontSize, l.NicknameFontSize, l.TitleFontSize)
	}
	if l.BubblePadding < 0 || l.TitlePaddingX < 0 || l.TitlePaddingY < 0 {
		return fmt.Errorf("paddings must be >= 0")
	}
	if l.LineGap < 0 || l.TitleTextGap < 0 {
		return fmt.Errorf("text gaps must be >= 0, got %d/%d", l.LineGap, l.TitleTextGap)
	}
	if l.MaxWidth <= 2*l.BubblePadding {
		return fmt.Errorf("max_width %d must exceed twice the bubble padding %d", l.MaxWidth, l.BubblePadding)
	}
	if l.AvatarSize <= 0 {
		return fmt.Errorf("avatar_size must be > 0, got %d", l.AvatarSize)
	}
	if l.ImageScale <= 0 {
		return fmt.Errorf("image_scale must be > 0, got %v", l.ImageScale)
	}
	if l.MaxCanvasPixels <= 0 {
		return fmt.Errorf("max_canvas_pixels must be > 0, got %d", l.MaxCanvasPixels)
	}
	return nil
}

// ///////////////////////////////////////////////
// Palette
// ///////////////////////////////////////////////

// DefaultColorID is the palette entry used for unknown color ids.
const DefaultColorID = 1

// Palette maps title color ids to badge fills.
var Palette = map[int]color.NRGBA{
	1: {R: 181, G: 182, B: 181, A: 220}, // gray
	2: {R: 214, G: 154, B: 255, A: 220}, // purple
	3: {R: 255, G: 198, B: 41, A: 220},  // yellow
	4: {R: 82, G: 215, B: 197, A: 220},  // green
}

// PaletteNames are the human-readable names of the palette entries.
var PaletteNames = map[int]string{
	1: "gray",
	2: "purple",
	3: "yellow",
	4: "green",
}

// ColorFor returns the palette entry for id, or the default entry.
func ColorFor(id int) color.NRGBA {
	if c, ok := Palette[id]; ok {
		return c
	}
	return Palette[DefaultColorID]
}

// ColorForString parses id as a decimal palette id. Non-numeric and unknown
// ids map to the default entry.
func ColorForString(id string) color.NRGBA {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return Palette[DefaultColorID]
	}
	return ColorFor(n)
}

// ParseHexColor parses a "#RRGGBB" hex color string into an opaque color.NRGBA.
func ParseHexColor(hex string) (color.NRGBA, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: must be 6 hex digits", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
