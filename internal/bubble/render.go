package bubble

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// ErrCanvasTooLarge is returned when a raster would exceed the layout's
// MaxCanvasPixels.
var ErrCanvasTooLarge = errors.New("canvas too large")

// fullWidthRef is the glyph whose height sets the bubble line height.
const fullWidthRef = '字'

// ///////////////////////////////////////////////
// Rasters
// ///////////////////////////////////////////////

// checkSize rejects rasters that are empty or exceed the pixel budget.
func (c *Compositor) checkSize(w, h int) error {
	return checkPixels(w, h, c.layout.MaxCanvasPixels)
}

// checkPixels rejects a w×h raster that is empty or holds more than
// maxPixels pixels. maxPixels <= 0 only rejects empty sizes.
func checkPixels(w, h, maxPixels int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid raster size %dx%d", w, h)
	}
	if maxPixels > 0 && w > maxPixels/h {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrCanvasTooLarge, w, h, maxPixels)
	}
	return nil
}

// newRGBA allocates a transparent supersampled raster.
func (c *Compositor) newRGBA(w, h int) (*image.RGBA, error) {
	if err := c.checkSize(w, h); err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

// downsample shrinks a supersampled raster by [Scale] with a Lanczos filter.
func downsample(img image.Image) *image.NRGBA {
	b := img.Bounds()
	return imaging.Resize(img, max(1, b.Dx()/Scale), max(1, b.Dy()/Scale), imaging.Lanczos)
}

// ///////////////////////////////////////////////
// Text Blocks
// ///////////////////////////////////////////////

// textBlock is wrapped bubble text with its supersampled metrics.
type textBlock struct {
	lines      []string
	lineHeight int
	width      float64
}

// height is the summed height of all lines, without padding.
func (t textBlock) height() int {
	return t.lineHeight * len(t.lines)
}

// padding returns the supersampled bubble padding.
func (c *Compositor) padding() int {
	return c.layout.BubblePadding * Scale
}

// layoutText wraps text against the bubble width budget.
func (c *Compositor) layoutText(face *Face, text string) textBlock {
	budget := float64((c.layout.MaxWidth - 2*c.layout.BubblePadding) * Scale)
	lines := WrapText(text, face, budget)

	blk := textBlock{
		lines:      lines,
		lineHeight: int(face.RuneHeight(fullWidthRef)) + c.layout.LineGap*Scale,
	}
	for _, line := range lines {
		blk.width = max(blk.width, face.Advance(line))
	}
	return blk
}

// drawBubble paints the bubble background over all of dst.
func (c *Compositor) drawBubble(dst *image.RGBA) {
	fillRoundedRect(dst,
		float64(c.layout.CornerRadius*Scale),
		c.layout.BubbleFill,
		c.layout.BubbleOutline,
		float64(c.layout.OutlineWidth*Scale),
	)
}

// drawLines draws the text block top-down starting at the padding offset.
func (c *Compositor) drawLines(dst *image.RGBA, face *Face, blk textBlock) {
	p := c.padding()
	y := p
	for _, line := range blk.lines {
		face.DrawString(dst, p, y, line, c.layout.TextColor)
		y += blk.lineHeight + p
	}
}

// ///////////////////////////////////////////////
// Bubbles
// ///////////////////////////////////////////////

// renderBubble renders content with the variant-specific renderer.
func (c *Compositor) renderBubble(face *Face, content Content) (*image.NRGBA, error) {
	switch v := content.(type) {
	case TextContent:
		return c.renderTextBubble(face, v.Text)
	case ImageContent:
		return c.renderImageBubble(v.Image)
	case TextImageContent:
		return c.renderTextImageBubble(face, v.Text, v.Image)
	case nil:
		return nil, ErrEmptyMessage
	default:
		return nil, fmt.Errorf("unknown content type %T", content)
	}
}

// renderTextBubble renders a text-only bubble.
func (c *Compositor) renderTextBubble(face *Face, text string) (*image.NRGBA, error) {
	blk := c.layoutText(face, text)
	p := c.padding()

	w := int(blk.width + float64(2*p))
	h := blk.height() + p*(2+len(blk.lines))
	img, err := c.newRGBA(w, h)
	if err != nil {
		return nil, fmt.Errorf("text bubble: %w", err)
	}

	c.drawBubble(img)
	c.drawLines(img, face, blk)
	return downsample(img), nil
}

// renderImageBubble renders an image-only bubble.
func (c *Compositor) renderImageBubble(src image.Image) (*image.NRGBA, error) {
	img, err := c.roundImage(src, c.layout.MaxWidth*Scale)
	if err != nil {
		return nil, fmt.Errorf("image bubble: %w", err)
	}
	return downsample(img), nil
}

// renderTextImageBubble renders text with an image below it in one bubble.
func (c *Compositor) renderTextImageBubble(face *Face, text string, src image.Image) (*image.NRGBA, error) {
	pic, err := c.roundImage(src, (c.layout.MaxWidth-2*c.layout.BubblePadding)*Scale)
	if err != nil {
		return nil, fmt.Errorf("text image bubble: %w", err)
	}
	blk := c.layoutText(face, text)
	p := c.padding()
	pw, ph := pic.Bounds().Dx(), pic.Bounds().Dy()

	w := max(int(blk.width), pw) + 2*p
	h := blk.height() + p*(2+len(blk.lines)) + ph
	img, err := c.newRGBA(w, h)
	if err != nil {
		return nil, fmt.Errorf("text image bubble: %w", err)
	}

	c.drawBubble(img)
	c.drawLines(img, face, blk)

	at := image.Pt(p, blk.height()+p*(1+len(blk.lines)))
	draw.Draw(img, image.Rectangle{Min: at, Max: at.Add(image.Pt(pw, ph))}, pic, image.Point{}, draw.Over)
	return downsample(img), nil
}

// roundImage scales src into the supersampled space, fits it to maxWidth
// and rounds its corners. The result is not downsampled.
func (c *Compositor) roundImage(src image.Image, maxWidth int) (*image.NRGBA, error) {
	if src == nil {
		return nil, ErrEmptyMessage
	}
	b := src.Bounds()
	factor := c.layout.ImageScale * Scale
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w > maxWidth {
		h = int(float64(h) * float64(maxWidth) / float64(w))
		w = maxWidth
	}
	w, h = max(1, w), max(1, h)
	if err := c.checkSize(w, h); err != nil {
		return nil, err
	}

	scaled := imaging.Resize(src, w, h, imaging.Lanczos)
	radius := min(int(float64(min(w, h))*c.layout.ImageRadiusRatio), c.layout.ImageMaxRadius*Scale)
	return ApplyMask(scaled, RoundedMask(w, h, float64(radius))), nil
}

// ///////////////////////////////////////////////
// Title Badge
// ///////////////////////////////////////////////

// renderBadge renders a title badge with the supersampled title face.
// The badge is three padding units taller than its text.
func (c *Compositor) renderBadge(face *Face, text string, fill color.NRGBA) (*image.NRGBA, error) {
	text = face.Printable(text)
	tw := int(face.Advance(text))
	th := int(face.InkHeight(text)) + c.layout.TitleTextGap*Scale

	w := tw + 2*c.layout.TitlePaddingX
	h := th + 3*c.layout.TitlePaddingY
	img, err := c.newRGBA(w, h)
	if err != nil {
		return nil, fmt.Errorf("title badge: %w", err)
	}

	fillRoundedRect(img, float64(c.layout.TitleCornerRadius*Scale), fill, nil, 0)
	face.DrawString(img, c.layout.TitlePaddingX, c.layout.TitleTextOffsetY, text, c.layout.TitleTextColor)
	return downsample(img), nil
}
