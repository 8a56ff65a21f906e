package profile

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"tools.zach/dev/chatbubble/internal/bubble"
)

const (
	// DefaultAvatarSize is the side of a generated avatar.
	DefaultAvatarSize = 200
	// defaultInitialSize is the font size of the generated initial.
	defaultInitialSize = 80
	// defaultInitial is drawn when the name has no drawable first letter.
	defaultInitial = "Q"
)

// defaultAvatarFill is the background of generated avatars.
var defaultAvatarFill = color.NRGBA{R: 100, G: 150, B: 200, A: 255}

// CircleAvatar center-crops img to a square, shrinks it to at most maxSize
// pixels, and masks it to the inscribed circle.
func CircleAvatar(img image.Image, maxSize int) (*image.NRGBA, error) {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	if side <= 0 {
		return nil, errors.New("avatar image is empty")
	}
	square := imaging.CropCenter(img, side, side)
	if maxSize > 0 && side > maxSize {
		square = imaging.Resize(square, maxSize, maxSize, imaging.Lanczos)
		side = maxSize
	}
	return bubble.ApplyMask(square, bubble.CircleMask(side)), nil
}

// DefaultAvatar draws the upper-cased first letter of name in white on a
// blue square and masks it to a circle.
func DefaultAvatar(name string) (*image.NRGBA, error) {
	f, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse avatar font: %w", err)
	}
	letter := initial(name, f)

	img := image.NewRGBA(image.Rect(0, 0, DefaultAvatarSize, DefaultAvatarSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(defaultAvatarFill), image.Point{}, draw.Src)

	face := truetype.NewFace(f, &truetype.Options{Size: defaultInitialSize, DPI: 72})
	defer face.Close()
	bounds, _ := font.BoundString(face, letter)
	w := (bounds.Max.X - bounds.Min.X).Ceil()
	h := (bounds.Max.Y - bounds.Min.Y).Ceil()
	// Center the ink box, then shift by its offset from the pen origin.
	x := (DefaultAvatarSize-w)/2 - bounds.Min.X.Floor()
	y := (DefaultAvatarSize-h)/2 - bounds.Min.Y.Floor()

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(defaultInitialSize)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.White)
	c.SetHinting(font.HintingFull)
	if _, err := c.DrawString(letter, freetype.Pt(x, y)); err != nil {
		return nil, fmt.Errorf("draw initial: %w", err)
	}
	return CircleAvatar(img, 0)
}

// initial returns the upper-cased first rune of name, or "Q" when the name
// is empty or the font cannot draw that rune.
func initial(name string, f *truetype.Font) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultInitial
	}
	r := unicode.ToUpper([]rune(name)[0])
	if f.Index(r) == 0 {
		return defaultInitial
	}
	return string(r)
}
