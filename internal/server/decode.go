package server

import (
	"errors"
	"fmt"
	"image"

	_ "golang.org/x/image/webp"
	"tools.zach/dev/chatbubble/internal/bubble"
)

// decodeImage decodes an uploaded PNG, JPEG, GIF, BMP, TIFF or WebP image.
// Images above maxPixels keep [bubble.ErrCanvasTooLarge] so they map to
// 413; other failures are bad requests.
func decodeImage(data []byte, maxPixels int) (image.Image, error) {
	img, err := bubble.DecodeImage(data, maxPixels)
	if errors.Is(err, bubble.ErrCanvasTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return img, nil
}
