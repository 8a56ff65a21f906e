package bubble

import (
	"errors"
	"image"
)

// ErrEmptyMessage is returned when a message has neither text nor image.
var ErrEmptyMessage = errors.New("message has no text and no image")

// Content is the body of a message bubble: one of [TextContent],
// [ImageContent] or [TextImageContent].
type Content interface {
	isContent()
}

// TextContent is a text-only bubble.
type TextContent struct {
	Text string
}

// ImageContent is an image-only bubble.
type ImageContent struct {
	Image image.Image
}

// TextImageContent is a bubble with text above an image.
type TextImageContent struct {
	Text  string
	Image image.Image
}

func (TextContent) isContent()      {}
func (ImageContent) isContent()     {}
func (TextImageContent) isContent() {}

// NewContent picks the bubble variant for a text/image pair. An empty text
// counts as absent.
func NewContent(text string, img image.Image) (Content, error) {
	switch {
	case text != "" && img != nil:
		return TextImageContent{Text: text, Image: img}, nil
	case img != nil:
		return ImageContent{Image: img}, nil
	case text != "":
		return TextContent{Text: text}, nil
	default:
		return nil, ErrEmptyMessage
	}
}
