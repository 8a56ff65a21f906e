package fonts

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"tools.zach/dev/chatbubble/internal/atomicfile"
	"tools.zach/dev/chatbubble/internal/fetch"
)

// GoogleCSSURL is the Google Fonts CSS endpoint.
const GoogleCSSURL = "https://fonts.googleapis.com/css2"

// googleUserAgent makes the CSS API answer with WOFF2 sources.
const googleUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

const (
	maxCSSBytes  = 1 << 20
	maxFontBytes = 20 << 20
)

// fontURLRe extracts the first font file URL from a CSS response.
var fontURLRe = regexp.MustCompile(`url\((https?://[^)]+)\)`)

// ParseGoogleSpec splits a "google:Family:Weight" source. Family may contain
// spaces; weight defaults to 400 when omitted.
func ParseGoogleSpec(spec string) (family, weight string, ok bool) {
	rest, found := strings.CutPrefix(spec, "google:")
	if !found {
		return "", "", false
	}
	family, weight, _ = strings.Cut(rest, ":")
	family = strings.TrimSpace(family)
	weight = strings.TrimSpace(weight)
	if family == "" {
		return "", "", false
	}
	if weight == "" {
		weight = "400"
	}
	return family, weight, true
}

// GoogleFetcher downloads Google Fonts and keeps converted copies in a
// cache directory.
type GoogleFetcher struct {
	// client performs the CSS and font downloads.
	client *fetch.Client
	// cacheDir holds "{Family}-{weight}.ttf" files.
	cacheDir string
	// cssURL is the CSS endpoint; overridden in tests.
	cssURL string
}

// NewGoogleFetcher returns a fetcher caching into cacheDir. A nil client
// gets a default one.
func NewGoogleFetcher(client *fetch.Client, cacheDir string) *GoogleFetcher {
	if client == nil {
		client = fetch.New(fetch.Options{RetryMax: 2, UserAgent: googleUserAgent})
	}
	return &GoogleFetcher{client: client, cacheDir: cacheDir, cssURL: GoogleCSSURL}
}

// cachePath returns the cache file for family and weight.
func (g *GoogleFetcher) cachePath(family, weight string) string {
	name := strings.ReplaceAll(family, " ", "_") + "-" + weight + ".ttf"
	return filepath.Join(g.cacheDir, name)
}

// Fetch returns SFNT font data for spec, downloading it on a cache miss.
func (g *GoogleFetcher) Fetch(ctx context.Context, spec string) ([]byte, error) {
	family, weight, ok := ParseGoogleSpec(spec)
	if !ok {
		return nil, fmt.Errorf("invalid google font %q: want google:FAMILY:WEIGHT", spec)
	}

	cache := g.cachePath(family, weight)
	if data, err := os.ReadFile(cache); err == nil {
		return data, nil
	}

	q := url.Values{"family": {family + ":wght@" + weight}}
	css, err := g.client.Get(ctx, g.cssURL+"?"+q.Encode(), maxCSSBytes)
	if err != nil {
		return nil, fmt.Errorf("google fonts css for %s %s: %w", family, weight, err)
	}
	m := fontURLRe.FindSubmatch(css)
	if m == nil {
		return nil, fmt.Errorf("no font url in google fonts css for %s %s", family, weight)
	}

	data, err := g.client.Get(ctx, string(m[1]), maxFontBytes)
	if err != nil {
		return nil, fmt.Errorf("download %s %s: %w", family, weight, err)
	}
	if isWOFF(data) {
		if data, err = toSFNT(data); err != nil {
			return nil, err
		}
	}

	if err := atomicfile.WriteDir(cache, data, 0o644); err != nil {
		slog.Warn("font cache write failed", "path", cache, "error", err)
	}
	return data, nil
}
