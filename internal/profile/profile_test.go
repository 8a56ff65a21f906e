// profile_test.go tests [Resolver]: cache hits, nickname API fallback order,
// avatar download and default avatar generation, id validation, and
// filename sanitizing.

package profile

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"tools.zach/dev/chatbubble/internal/fetch"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// fakeAPI serves nickname and avatar endpoints and counts requests.
type fakeAPI struct {
	srv    *httptest.Server
	hits   atomic.Int32
	first  string // response of the first nickname API; "" means 500
	second string
	avatar bool // serve a PNG avatar; otherwise 404
}

func newFakeAPI(t *testing.T, first, second string, avatar bool) *fakeAPI {
	t.Helper()
	f := &fakeAPI{first: first, second: second, avatar: avatar}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		switch r.URL.Path {
		case "/name1":
			if f.first == "" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(f.first))
		case "/name2":
			w.Write([]byte(f.second))
		case "/avatar":
			if !f.avatar {
				http.NotFound(w, r)
				return
			}
			var buf bytes.Buffer
			imaging.Encode(&buf, imaging.New(300, 200, color.NRGBA{R: 255, A: 255}), imaging.PNG)
			w.Write(buf.Bytes())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) resolver(t *testing.T, dir string) *Resolver {
	t.Helper()
	client := fetch.New(fetch.Options{RetryMax: 0, Timeout: 2 * time.Second})
	r, err := NewResolver(client, Options{
		AvatarDir:    dir,
		NicknameAPIs: []string{f.srv.URL + "/name1?qq={id}", f.srv.URL + "/name2?qq={id}"},
		AvatarURL:    f.srv.URL + "/avatar?nk={id}",
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

// ///////////////////////////////////////////////
// Resolution
// ///////////////////////////////////////////////

func TestResolveNicknameFallback(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
		want   string
	}{
		{"first api data.name", `{"data":{"name":"Alice"}}`, `{"name":"Bob"}`, "Alice"},
		{"first api top-level name", `{"name":"Carol"}`, `{"name":"Bob"}`, "Carol"},
		{"first api fails", "", `{"code":1,"name":"Bob"}`, "Bob"},
		{"first api has no name", `{"code":0,"msg":"limited"}`, `{"name":"Bob"}`, "Bob"},
		{"first api not json", `<html>`, `{"name":"Bob"}`, "Bob"},
		{"all fail", "", `{"code":0}`, "10001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t, tt.first, tt.second, true)
			p, err := api.resolver(t, t.TempDir()).Resolve(context.Background(), "10001")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if p.Name != tt.want {
				t.Errorf("Name = %q, want %q", p.Name, tt.want)
			}
			if p.Cached {
				t.Error("first resolution reported Cached")
			}
		})
	}
}

func TestResolveWritesCircularAvatar(t *testing.T) {
	api := newFakeAPI(t, `{"name":"Alice"}`, "", true)
	dir := t.TempDir()
	p, err := api.resolver(t, dir).Resolve(context.Background(), "10001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(dir, "10001-Alice.png"); p.AvatarPath != want {
		t.Errorf("AvatarPath = %q, want %q", p.AvatarPath, want)
	}
	img, err := imaging.Open(p.AvatarPath)
	if err != nil {
		t.Fatalf("open avatar: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(200, 200) {
		t.Errorf("avatar size = %v, want 200x200 center crop", got)
	}
	nrgba := imaging.Clone(img)
	if a := nrgba.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("corner alpha = %d, want 0", a)
	}
	if c := nrgba.NRGBAAt(100, 100); c.R != 255 || c.A != 255 {
		t.Errorf("center = %v, want opaque red", c)
	}
}

func TestResolveDefaultAvatarOnDownloadFailure(t *testing.T) {
	api := newFakeAPI(t, `{"name":"alice"}`, "", false)
	p, err := api.resolver(t, t.TempDir()).Resolve(context.Background(), "10001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	img, err := imaging.Open(p.AvatarPath)
	if err != nil {
		t.Fatalf("open avatar: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(DefaultAvatarSize, DefaultAvatarSize) {
		t.Errorf("default avatar size = %v", got)
	}
	// Just inside the left edge of the circle, away from the initial.
	c := imaging.Clone(img).NRGBAAt(15, DefaultAvatarSize/2)
	if c.R != 100 || c.G != 150 || c.B != 200 {
		t.Errorf("background = %v, want (100,150,200)", c)
	}
}

func TestResolveDefaultAvatarWhenTooLarge(t *testing.T) {
	api := newFakeAPI(t, `{"name":"alice"}`, "", true)
	client := fetch.New(fetch.Options{RetryMax: 0, Timeout: 2 * time.Second})
	r, err := NewResolver(client, Options{
		AvatarDir:       t.TempDir(),
		NicknameAPIs:    []string{api.srv.URL + "/name1?qq={id}"},
		AvatarURL:       api.srv.URL + "/avatar?nk={id}",
		MaxAvatarPixels: 300*200 - 1,
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	p, err := r.Resolve(context.Background(), "10001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	img, err := imaging.Open(p.AvatarPath)
	if err != nil {
		t.Fatalf("open avatar: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(DefaultAvatarSize, DefaultAvatarSize) {
		t.Errorf("avatar size = %v, want the generated default", got)
	}
	c := imaging.Clone(img).NRGBAAt(15, DefaultAvatarSize/2)
	if c.R != 100 || c.G != 150 || c.B != 200 {
		t.Errorf("background = %v, want (100,150,200)", c)
	}
}

func TestResolveUsesCache(t *testing.T) {
	api := newFakeAPI(t, `{"name":"Alice"}`, "", true)
	dir := t.TempDir()
	r := api.resolver(t, dir)

	if _, err := r.Resolve(context.Background(), "10001"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	before := api.hits.Load()

	p, err := r.Resolve(context.Background(), "10001")
	if err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	if api.hits.Load() != before {
		t.Errorf("cached resolution made %d requests", api.hits.Load()-before)
	}
	if !p.Cached || p.Name != "Alice" {
		t.Errorf("cached profile = %+v", p)
	}

	// A prefix of another id must not match.
	if _, ok := r.Cached("1000"); ok {
		t.Error("Cached(1000) matched 10001's avatar")
	}
}

func TestResolveConcurrentSameID(t *testing.T) {
	api := newFakeAPI(t, `{"name":"Alice"}`, "", true)
	r := api.resolver(t, t.TempDir())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), "10001"); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	// One nickname request and one avatar request.
	if got := api.hits.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestResolveInvalidID(t *testing.T) {
	api := newFakeAPI(t, `{"name":"Alice"}`, "", true)
	r := api.resolver(t, t.TempDir())
	for _, id := range []string{"", "abc", "12 3", "../1", "１２"} {
		if _, err := r.Resolve(context.Background(), id); !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalidUserID", id, err)
		}
	}
	if api.hits.Load() != 0 {
		t.Errorf("invalid ids made %d requests", api.hits.Load())
	}
}

func TestForget(t *testing.T) {
	api := newFakeAPI(t, `{"name":"Alice"}`, "", true)
	dir := t.TempDir()
	r := api.resolver(t, dir)
	p, err := r.Resolve(context.Background(), "10001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := r.Forget("10001"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, err := os.Stat(p.AvatarPath); !os.IsNotExist(err) {
		t.Errorf("avatar still present: %v", err)
	}
	if _, ok := r.Cached("10001"); ok {
		t.Error("Cached after Forget")
	}
}

func TestNewResolverRequiresDir(t *testing.T) {
	if _, err := NewResolver(nil, Options{}); err == nil {
		t.Error("expected error without avatar dir")
	}
}

// ///////////////////////////////////////////////
// Helpers Under Test
// ///////////////////////////////////////////////

func TestValidUserID(t *testing.T) {
	for _, id := range []string{"1", "10001", "0123456789"} {
		if err := ValidUserID(id); err != nil {
			t.Errorf("ValidUserID(%q) = %v", id, err)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice", "Alice"},
		{"a/b\\c", "a_b_c"},
		{`what?*"<>|:`, "what_______"},
		{"  spaced.  ", "spaced"},
		{"...", "10001"},
		{"", "10001"},
		{"tab\there", "tab_here"},
		{"小明", "小明"},
		{strings.Repeat("x", 100), strings.Repeat("x", 64)},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in, "10001"); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCircleAvatar(t *testing.T) {
	img := imaging.New(1000, 800, color.NRGBA{G: 255, A: 255})
	out, err := CircleAvatar(img, 640)
	if err != nil {
		t.Fatalf("CircleAvatar: %v", err)
	}
	if got := out.Bounds().Size(); got != image.Pt(640, 640) {
		t.Errorf("size = %v, want 640x640", got)
	}
	if _, err := CircleAvatar(image.NewNRGBA(image.Rect(0, 0, 0, 5)), 640); err == nil {
		t.Error("CircleAvatar(empty) expected error")
	}
}

func TestInitial(t *testing.T) {
	av, err := DefaultAvatar("")
	if err != nil {
		t.Fatalf("DefaultAvatar: %v", err)
	}
	// Some white pixels from the initial must be present near the center.
	white := 0
	for y := 60; y < 140; y++ {
		for x := 60; x < 140; x++ {
			if c := av.NRGBAAt(x, y); c.R > 240 && c.G > 240 && c.B > 240 {
				white++
			}
		}
	}
	if white == 0 {
		t.Error("no initial drawn")
	}
}
