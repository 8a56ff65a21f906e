package bubble

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DecodeImage decodes PNG, JPEG, GIF, BMP or TIFF data (and any format
// registered with the image package) and applies the EXIF orientation.
//
// The header is read first: an image holding more than maxPixels pixels
// fails with [ErrCanvasTooLarge] before its pixels are allocated.
// maxPixels <= 0 disables the limit.
func DecodeImage(data []byte, maxPixels int) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if err := checkPixels(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
