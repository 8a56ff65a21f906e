// Package bubble renders chat messages as images: an avatar, a speech bubble
// holding text and/or an image, a display name, and an optional colored
// title badge.
//
// Bubbles and badges are drawn at [Scale] times their final size and
// downsampled once with a Lanczos filter before being placed on the
// unscaled canvas. A [Compositor] holds no mutable state and may be shared
// between goroutines.
package bubble

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font/opentype"
	"tools.zach/dev/chatbubble/internal/titles"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Fonts holds the parsed fonts for each text role.
type Fonts struct {
	// Bubble renders message text.
	Bubble *opentype.Font
	// Nickname renders the display name.
	Nickname *opentype.Font
	// Title renders the badge text.
	Title *opentype.Font
}

// TitleLookup resolves a user's title record.
type TitleLookup interface {
	Lookup(userID string) (titles.Record, bool)
}

// Message is one chat message to render.
type Message struct {
	// UserID keys the title lookup.
	UserID string
	// Content is the bubble body.
	Content Content
	// DisplayName is shown unless the title record carries a note.
	DisplayName string
	// AvatarPath is a pre-cropped avatar image. Empty or unreadable paths
	// render a placeholder square.
	AvatarPath string
}

// Placement is the computed geometry of a composed message.
type Placement struct {
	// Size is the canvas size.
	Size image.Point
	// Bubble is the bubble rectangle.
	Bubble image.Rectangle
	// Avatar is the avatar rectangle.
	Avatar image.Rectangle
	// Name is the effective display name as drawn. Runes the nickname
	// font cannot draw are spaces.
	Name string
	// NameAt is the top-left of the display name text.
	NameAt image.Point
	// NameWidth is the measured name width plus padding.
	NameWidth int
	// HasTitle is true when a title record exists for the user.
	HasTitle bool
	// Title is the badge text.
	Title string
	// TitleColor is the badge fill.
	TitleColor color.NRGBA
	// TitleWidth is the measured title width plus padding.
	TitleWidth int
	// BadgeAt is the top-left of the badge.
	BadgeAt image.Point
}

// Compositor renders messages with a fixed set of fonts and layout.
type Compositor struct {
	// fonts are shared read-only; faces are created per call.
	fonts Fonts
	// layout is the immutable geometry.
	layout Layout
}

// NewCompositor validates layout and returns a compositor using fonts.
func NewCompositor(fonts Fonts, layout Layout) (*Compositor, error) {
	if fonts.Bubble == nil || fonts.Nickname == nil || fonts.Title == nil {
		return nil, fmt.Errorf("bubble, nickname and title fonts are required")
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return &Compositor{fonts: fonts, layout: layout}, nil
}

// Layout returns the compositor's layout.
func (c *Compositor) Layout() Layout {
	return c.layout
}

// ///////////////////////////////////////////////
// Faces
// ///////////////////////////////////////////////

// faceSet holds the faces used by one composition.
type faceSet struct {
	bubble      *Face // supersampled
	nickname    *Face
	title       *Face
	titleScaled *Face
}

// openFaces creates a fresh set of faces. Faces keep scratch buffers, so
// concurrent compositions must not share them.
func (c *Compositor) openFaces() (*faceSet, error) {
	fs := &faceSet{}
	var err error
	if fs.bubble, err = NewFace(c.fonts.Bubble, c.layout.BubbleFontSize*Scale); err != nil {
		return nil, fmt.Errorf("bubble font: %w", err)
	}
	if fs.nickname, err = NewFace(c.fonts.Nickname, c.layout.NicknameFontSize); err != nil {
		fs.Close()
		return nil, fmt.Errorf("nickname font: %w", err)
	}
	if fs.title, err = NewFace(c.fonts.Title, c.layout.TitleFontSize); err != nil {
		fs.Close()
		return nil, fmt.Errorf("title font: %w", err)
	}
	if fs.titleScaled, err = NewFace(c.fonts.Title, c.layout.TitleFontSize*Scale); err != nil {
		fs.Close()
		return nil, fmt.Errorf("title font: %w", err)
	}
	return fs, nil
}

// Close releases every opened face.
func (fs *faceSet) Close() {
	for _, f := range []*Face{fs.bubble, fs.nickname, fs.title, fs.titleScaled} {
		if f != nil {
			f.Close()
		}
	}
}

// ///////////////////////////////////////////////
// Composition
// ///////////////////////////////////////////////

// Compose renders msg onto a new opaque canvas. lookup may be nil.
func (c *Compositor) Compose(msg Message, lookup TitleLookup) (*image.NRGBA, error) {
	faces, err := c.openFaces()
	if err != nil {
		return nil, err
	}
	defer faces.Close()

	bubble, err := c.renderBubble(faces.bubble, msg.Content)
	if err != nil {
		return nil, err
	}
	pl := c.place(faces, msg, lookup, bubble.Bounds().Size())

	if err := c.checkSize(pl.Size.X, pl.Size.Y); err != nil {
		return nil, fmt.Errorf("canvas: %w", err)
	}
	canvas := imaging.New(pl.Size.X, pl.Size.Y, c.layout.Background)
	canvas = imaging.Overlay(canvas, bubble, pl.Bubble.Min, 1.0)
	canvas = imaging.Overlay(canvas, c.loadAvatar(msg.AvatarPath), pl.Avatar.Min, 1.0)

	if pl.HasTitle {
		badge, err := c.renderBadge(faces.titleScaled, pl.Title, pl.TitleColor)
		if err != nil {
			return nil, err
		}
		canvas = imaging.Overlay(canvas, badge, pl.BadgeAt, 1.0)
	}
	faces.nickname.DrawString(canvas, pl.NameAt.X, pl.NameAt.Y, pl.Name, c.layout.TextColor)
	return canvas, nil
}

// Place computes where each element of msg would go without drawing the
// canvas. The bubble is still rendered to learn its size.
func (c *Compositor) Place(msg Message, lookup TitleLookup) (Placement, error) {
	faces, err := c.openFaces()
	if err != nil {
		return Placement{}, err
	}
	defer faces.Close()

	bubble, err := c.renderBubble(faces.bubble, msg.Content)
	if err != nil {
		return Placement{}, err
	}
	return c.place(faces, msg, lookup, bubble.Bounds().Size()), nil
}

// CanvasSize returns the canvas size Compose would allocate for msg.
func (c *Compositor) CanvasSize(msg Message, lookup TitleLookup) (image.Point, error) {
	pl, err := c.Place(msg, lookup)
	if err != nil {
		return image.Point{}, err
	}
	return pl.Size, nil
}

// RenderBadge renders a standalone title badge in palette color colorID.
func (c *Compositor) RenderBadge(text string, colorID int) (*image.NRGBA, error) {
	face, err := NewFace(c.fonts.Title, c.layout.TitleFontSize*Scale)
	if err != nil {
		return nil, fmt.Errorf("title font: %w", err)
	}
	defer face.Close()
	return c.renderBadge(face, text, ColorFor(colorID))
}

// place sizes the canvas as the largest of the bubble, avatar and name
// extents, and positions the name and badge.
func (c *Compositor) place(faces *faceSet, msg Message, lookup TitleLookup, bubble image.Point) Placement {
	l := c.layout
	bp, ap := l.BubblePosition, l.AvatarPosition

	pl := Placement{
		Bubble: image.Rectangle{Min: bp, Max: bp.Add(bubble)},
		Avatar: image.Rectangle{Min: ap, Max: ap.Add(image.Pt(l.AvatarSize, l.AvatarSize))},
		Name:   faces.nickname.Printable(msg.DisplayName),
		NameAt: image.Pt(bp.X, ap.Y),
	}

	var rec titles.Record
	if lookup != nil {
		rec, pl.HasTitle = lookup.Lookup(msg.UserID)
	}
	if pl.HasTitle {
		if note := rec.Note(); note != "" {
			pl.Name = faces.nickname.Printable(note)
		}
		pl.Title = faces.title.Printable(rec.Title())
		pl.TitleColor = ColorFor(rec.ColorID())
		pl.TitleWidth = int(faces.title.Advance(pl.Title)) + l.BubblePadding
		pl.BadgeAt = image.Pt(bp.X, ap.Y+l.TitleBubbleOffset)
		pl.NameAt = image.Pt(bp.X+pl.TitleWidth+l.TitleNameOffset, ap.Y)
	}
	pl.NameWidth = int(faces.nickname.Advance(pl.Name)) + l.BubblePadding

	nameExtent := bp.X + pl.NameWidth
	if pl.HasTitle {
		nameExtent += pl.TitleWidth + l.TitleNameOffset
	}
	pl.Size.X = max(
		pl.Bubble.Max.X+l.Margin,
		pl.Avatar.Max.X+l.Margin,
		nameExtent,
	)
	pl.Size.Y = max(
		pl.Bubble.Max.Y+l.Margin,
		pl.Avatar.Max.Y+l.Margin,
	)
	return pl
}

// loadAvatar opens and resizes the avatar at path, or returns a placeholder
// square when it cannot be read.
func (c *Compositor) loadAvatar(path string) *image.NRGBA {
	size := c.layout.AvatarSize
	if path != "" {
		img, err := imaging.Open(path)
		if err == nil {
			return imaging.Resize(img, size, size, imaging.Lanczos)
		}
		slog.Warn("avatar unavailable, using placeholder", "path", path, "error", err)
	}
	return imaging.New(size, size, c.layout.AvatarPlaceholder)
}

// ///////////////////////////////////////////////
// Encoding
// ///////////////////////////////////////////////

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
