// Package fonts loads the fonts used by the renderer from local files, a
// font directory, or Google Fonts, and falls back to the built-in Go fonts
// so a missing font never stops rendering.
package fonts

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Load reads and parses the font file at path. See [Parse].
func Load(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses TrueType, OpenType, WOFF and WOFF2 data. Collections (.ttc)
// yield their first face.
func Parse(data []byte) (*opentype.Font, error) {
	switch {
	case isWOFF(data):
		sfnt, err := toSFNT(data)
		if err != nil {
			return nil, err
		}
		data = sfnt
	case bytes.HasPrefix(data, []byte("ttcf")):
		coll, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parse font collection: %w", err)
		}
		if coll.NumFonts() == 0 {
			return nil, fmt.Errorf("font collection is empty")
		}
		return coll.Font(0)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return f, nil
}

// isWOFF reports whether data starts with a WOFF or WOFF2 signature.
func isWOFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("wOFF")) || bytes.HasPrefix(data, []byte("wOF2"))
}

// ///////////////////////////////////////////////
// Built-in Fonts
// ///////////////////////////////////////////////

// Builtin names one of the embedded Go fonts.
type Builtin int

const (
	// Regular is Go Regular.
	Regular Builtin = iota
	// Bold is Go Bold.
	Bold
)

// Font parses the built-in font. The embedded data is known to be valid.
func (b Builtin) Font() *opentype.Font {
	data := goregular.TTF
	if b == Bold {
		data = gobold.TTF
	}
	f, err := opentype.Parse(data)
	if err != nil {
		panic(fmt.Sprintf("built-in font: %v", err))
	}
	return f
}

func (b Builtin) String() string {
	if b == Bold {
		return "go-bold"
	}
	return "go-regular"
}
