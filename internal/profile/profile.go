// Package profile resolves a user's display name and avatar, caching both as
// a single "{id}-{name}.png" file in the avatar directory.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/disintegration/imaging"
	"tools.zach/dev/chatbubble/internal/atomicfile"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/fetch"
)

// ErrInvalidUserID is returned for ids that are empty or not all digits.
var ErrInvalidUserID = errors.New("invalid user id")

// Default lookup endpoints. "{id}" is replaced with the user id.
var (
	DefaultNicknameAPIs = []string{
		"https://api.mmp.cc/api/qqname?qq={id}",
		"https://api.uomg.com/api/qq.info?qq={id}",
	}
	DefaultAvatarURL = "https://q1.qlogo.cn/g?b=qq&nk={id}&s=640"
)

const (
	maxNicknameBytes = 64 << 10
	// DefaultMaxAvatarBytes caps avatar downloads.
	DefaultMaxAvatarBytes = 8 << 20
	// maxAvatarSide caps the stored avatar resolution.
	maxAvatarSide = 640
	// maxNameRunes caps the name part of a cache filename.
	maxNameRunes = 64
)

// Profile is a resolved user.
type Profile struct {
	// UserID is the numeric user id.
	UserID string
	// Name is the nickname, or the id when no lookup succeeded.
	Name string
	// AvatarPath is the circular PNG avatar on disk.
	AvatarPath string
	// Cached is true when no network lookup was needed.
	Cached bool
}

// ValidUserID reports whether id is a non-empty string of ASCII digits.
func ValidUserID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Resolver
// ///////////////////////////////////////////////

// Options configures a [Resolver].
type Options struct {
	// AvatarDir holds cached avatars. Created if missing.
	AvatarDir string
	// NicknameAPIs are tried in order. Each is a URL template with "{id}".
	NicknameAPIs []string
	// AvatarURL is the avatar URL template with "{id}".
	AvatarURL string
	// MaxAvatarBytes caps an avatar download. Zero uses the default.
	MaxAvatarBytes int64
	// MaxAvatarPixels caps the decoded size of a downloaded avatar. Zero
	// uses the default.
	MaxAvatarPixels int
}

// Resolver looks up profiles through the cache, then the network.
type Resolver struct {
	// client performs nickname and avatar requests.
	client *fetch.Client
	// opts holds the endpoints and cache location.
	opts Options
	// locks serializes resolutions of the same id.
	locks keyedMutex
}

// NewResolver creates the avatar directory and returns a resolver.
func NewResolver(client *fetch.Client, opts Options) (*Resolver, error) {
	if opts.AvatarDir == "" {
		return nil, errors.New("avatar directory is required")
	}
	if err := os.MkdirAll(opts.AvatarDir, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar dir: %w", err)
	}
	if opts.NicknameAPIs == nil {
		opts.NicknameAPIs = DefaultNicknameAPIs
	}
	if opts.AvatarURL == "" {
		opts.AvatarURL = DefaultAvatarURL
	}
	if opts.MaxAvatarBytes <= 0 {
		opts.MaxAvatarBytes = DefaultMaxAvatarBytes
	}
	if opts.MaxAvatarPixels <= 0 {
		opts.MaxAvatarPixels = bubble.DefaultLayout().MaxCanvasPixels
	}
	if client == nil {
		client = fetch.New(fetch.Options{RetryMax: 2})
	}
	return &Resolver{client: client, opts: opts}, nil
}

// Resolve returns the profile for id. A cached avatar file is used as is;
// otherwise the nickname and avatar are fetched and cached. Network failures
// degrade to the id as name and a generated avatar; only invalid ids and
// local I/O failures are errors.
func (r *Resolver) Resolve(ctx context.Context, id string) (Profile, error) {
	if err := ValidUserID(id); err != nil {
		return Profile{}, err
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	if p, ok := r.Cached(id); ok {
		return p, nil
	}

	name := r.Nickname(ctx, id)
	path := filepath.Join(r.opts.AvatarDir, id+"-"+SanitizeName(name, id)+".png")

	avatar, err := r.downloadAvatar(ctx, id)
	if err != nil {
		slog.Warn("avatar download failed, generating default", "user", id, "error", err)
		if avatar, err = DefaultAvatar(name); err != nil {
			return Profile{}, err
		}
	}
	if err := savePNG(path, avatar); err != nil {
		return Profile{}, err
	}
	slog.Debug("profile cached", "user", id, "path", path)
	return Profile{UserID: id, Name: name, AvatarPath: path}, nil
}

// Cached returns the profile stored in the avatar directory, if any.
func (r *Resolver) Cached(id string) (Profile, bool) {
	prefix := id + "-"
	matches, err := doublestar.Glob(os.DirFS(r.opts.AvatarDir), prefix+"*.png", doublestar.WithFilesOnly())
	if err != nil || len(matches) == 0 {
		return Profile{}, false
	}
	file := matches[0]
	return Profile{
		UserID:     id,
		Name:       strings.TrimSuffix(strings.TrimPrefix(file, prefix), ".png"),
		AvatarPath: filepath.Join(r.opts.AvatarDir, file),
		Cached:     true,
	}, true
}

// Forget removes every cached avatar for id so the next Resolve refetches.
func (r *Resolver) Forget(id string) error {
	if err := ValidUserID(id); err != nil {
		return err
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	matches, err := doublestar.Glob(os.DirFS(r.opts.AvatarDir), id+"-*.png", doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("scan avatar dir: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(filepath.Join(r.opts.AvatarDir, m)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cached avatar: %w", err)
		}
	}
	return nil
}

// Nickname asks each nickname API in order and returns the first name
// found, or id when every API fails.
func (r *Resolver) Nickname(ctx context.Context, id string) string {
	for _, tmpl := range r.opts.NicknameAPIs {
		u := expand(tmpl, id)
		body, err := r.client.Get(ctx, u, maxNicknameBytes)
		if err != nil {
			slog.Debug("nickname api failed", "url", u, "error", err)
			continue
		}
		if name := parseNickname(body); name != "" {
			return name
		}
		slog.Debug("nickname api returned no name", "url", u)
	}
	return id
}

// parseNickname accepts both {"data":{"name":...}} and {"name":...}.
func parseNickname(body []byte) string {
	var resp struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if len(resp.Data) > 0 {
		var data struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(resp.Data, &data) == nil && strings.TrimSpace(data.Name) != "" {
			return strings.TrimSpace(data.Name)
		}
	}
	return strings.TrimSpace(resp.Name)
}

func (r *Resolver) downloadAvatar(ctx context.Context, id string) (*image.NRGBA, error) {
	body, err := r.client.Get(ctx, expand(r.opts.AvatarURL, id), r.opts.MaxAvatarBytes)
	if err != nil {
		return nil, err
	}
	img, err := bubble.DecodeImage(body, r.opts.MaxAvatarPixels)
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	return CircleAvatar(img, maxAvatarSide)
}

func expand(tmpl, id string) string {
	return strings.ReplaceAll(tmpl, "{id}", url.QueryEscape(id))
}

func savePNG(path string, img image.Image) error {
	err := atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	})
	if err != nil {
		return fmt.Errorf("save avatar: %w", err)
	}
	return nil
}

// SanitizeName makes name safe as part of a filename on every platform.
// Separators, reserved and control characters become "_", surrounding
// spaces and dots are trimmed, and an empty result becomes fallback.
func SanitizeName(name, fallback string) string {
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n == maxNameRunes {
			break
		}
		if strings.ContainsRune(`/\:*?"<>|`, r) || unicode.IsControl(r) {
			r = '_'
		}
		b.WriteRune(r)
		n++
	}
	out := strings.Trim(b.String(), " .")
	if out == "" {
		return fallback
	}
	return out
}
