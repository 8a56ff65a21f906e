package fonts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	tdfont "github.com/tdewolff/font"
	"golang.org/x/image/font/opentype"
	"tools.zach/dev/chatbubble/internal/bubble"
)

// Sources names the font source for each text role. A source is one of:
//
//   - "" for the built-in fallback
//   - "google:Family:Weight" for a Google font
//   - a glob such as "**/msyh*.tt?" matched inside the font directory
//   - a file path, relative paths resolved against the font directory
type Sources struct {
	// Bubble is the message text font.
	Bubble string
	// Nickname is the display-name font.
	Nickname string
	// Title is the badge font.
	Title string
}

// Resolver turns sources into parsed fonts.
type Resolver struct {
	// dir is the font directory for relative paths and globs.
	dir string
	// google fetches "google:" sources; nil disables them.
	google *GoogleFetcher
}

// NewResolver returns a resolver searching dir. google may be nil.
func NewResolver(dir string, google *GoogleFetcher) *Resolver {
	return &Resolver{dir: dir, google: google}
}

// Resolve loads source, falling back to the built-in font with a warning
// when it is empty or cannot be loaded.
func (r *Resolver) Resolve(ctx context.Context, source string, fallback Builtin) *opentype.Font {
	if strings.TrimSpace(source) == "" {
		return fallback.Font()
	}
	f, err := r.load(ctx, source)
	if err != nil {
		slog.Warn("font unavailable, using built-in", "source", source, "fallback", fallback.String(), "error", err)
		return fallback.Font()
	}
	slog.Debug("font loaded", "source", source)
	return f
}

// ResolveSet resolves all three roles. The title falls back to bold, the
// others to regular.
func (r *Resolver) ResolveSet(ctx context.Context, s Sources) bubble.Fonts {
	return bubble.Fonts{
		Bubble:   r.Resolve(ctx, s.Bubble, Regular),
		Nickname: r.Resolve(ctx, s.Nickname, Regular),
		Title:    r.Resolve(ctx, s.Title, Bold),
	}
}

func (r *Resolver) load(ctx context.Context, source string) (*opentype.Font, error) {
	if strings.HasPrefix(source, "google:") {
		if r.google == nil {
			return nil, fmt.Errorf("google fonts disabled")
		}
		data, err := r.google.Fetch(ctx, source)
		if err != nil {
			return nil, err
		}
		return Parse(data)
	}

	path := source
	if isGlob(source) {
		match, err := r.find(source)
		if err != nil {
			return nil, err
		}
		path = match
	} else if !filepath.IsAbs(path) && r.dir != "" {
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(r.dir, path)
		}
	}
	return Load(path)
}

// find returns the first file in the font directory matching pattern.
func (r *Resolver) find(pattern string) (string, error) {
	if r.dir == "" {
		return "", fmt.Errorf("no font directory for pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(r.dir), filepath.ToSlash(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("font pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no font in %s matches %q", r.dir, pattern)
	}
	return filepath.Join(r.dir, filepath.FromSlash(matches[0])), nil
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func toSFNT(data []byte) ([]byte, error) {
	out, err := tdfont.ToSFNT(data)
	if err != nil {
		return nil, fmt.Errorf("convert web font: %w", err)
	}
	return out, nil
}
