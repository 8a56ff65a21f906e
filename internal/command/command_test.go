// command_test.go tests parameter extraction, command dispatch and usage
// replies, the block list, and the bounded render workers.

package command

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/profile"
	"tools.zach/dev/chatbubble/internal/titles"
)

// ///////////////////////////////////////////////
// Fakes
// ///////////////////////////////////////////////

// fakeRenderer records messages and tracks concurrency.
type fakeRenderer struct {
	mu      sync.Mutex
	msgs    []bubble.Message
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	release chan struct{} // when set, Compose blocks until it is closed
}

func (r *fakeRenderer) Compose(msg bubble.Message, lookup bubble.TitleLookup) (*image.NRGBA, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if r.release != nil {
		<-r.release
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return imaging.New(4, 4, color.White), nil
}

type fakeProfiles struct{}

func (fakeProfiles) Resolve(_ context.Context, id string) (profile.Profile, error) {
	return profile.Profile{UserID: id, Name: "user" + id, AvatarPath: "/avatars/" + id + ".png"}, nil
}

func newService(t *testing.T, r Renderer, opts Options) (*Service, *titles.Store) {
	t.Helper()
	store, err := titles.Open(filepath.Join(t.TempDir(), "qq_data.json"), "")
	if err != nil {
		t.Fatalf("titles.Open: %v", err)
	}
	s, err := New(r, fakeProfiles{}, store, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, store
}

// ///////////////////////////////////////////////
// Parameters
// ///////////////////////////////////////////////

func TestExtractParams(t *testing.T) {
	tests := []struct {
		message   string
		directive string
		want      []string
	}{
		{"/QQbox_echo 10001 hello world", Echo, []string{"10001", "hello", "world"}},
		{"QQbox_echo   10001 \t spaced   out ", Echo, []string{"10001", "spaced", "out"}},
		{"/QQbox_echo", Echo, nil},
		{"/QQbox_echo ", Echo, nil},
		{"/QQbox_note \t  ", Note, nil},
		{"/QQbox_color 10001 3", Echo, nil},
		{"prefix QQbox_note 1 Al", Note, []string{"1", "Al"}},
		{"/QQbox_title 1 a.b*c", Title, []string{"1", "a.b*c"}},
	}
	for _, tt := range tests {
		got := ExtractParams(tt.message, tt.directive)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractParams(%q, %q) = %q, want %q", tt.message, tt.directive, got, tt.want)
		}
	}
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

func TestDispatchReplies(t *testing.T) {
	s, _ := newService(t, &fakeRenderer{}, Options{})
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"echo usage", "/QQbox_echo 10001", usage[Echo]},
		{"color usage", "/QQbox_color", usage[Color]},
		{"title usage", "/QQbox_title 1", usage[Title]},
		{"note usage", "/QQbox_note", usage[Note]},
		{"bad id", "/QQbox_title abc VIP", badUserIDReply},
		{"color set", "/QQbox_color 10001 3", "updated 10001: color 3"},
		{"title set", "/QQbox_title 10001 Big Boss", "updated 10001: title Big Boss"},
		{"note set", "QQbox_note 10001 Al", "updated 10001: note Al"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := s.Dispatch(context.Background(), tt.message)
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if reply.Text != tt.want {
				t.Errorf("reply = %q, want %q", reply.Text, tt.want)
			}
		})
	}
}

func TestDispatchUpdatesStore(t *testing.T) {
	s, store := newService(t, &fakeRenderer{}, Options{})
	ctx := context.Background()
	for _, m := range []string{"/QQbox_color 7 x4", "/QQbox_title 7 Night Owl", "/QQbox_note 7 Seven"} {
		if _, err := s.Dispatch(ctx, m); err != nil {
			t.Fatalf("Dispatch(%q): %v", m, err)
		}
	}
	rec, ok := store.Lookup("7")
	if !ok {
		t.Fatal("record missing")
	}
	if rec.ColorID() != 4 || rec.Title() != "Night Owl" || rec.Note() != "Seven" {
		t.Errorf("record = color %d, title %q, note %q", rec.ColorID(), rec.Title(), rec.Note())
	}
}

func TestDispatchEcho(t *testing.T) {
	r := &fakeRenderer{}
	s, _ := newService(t, r, Options{})
	reply, err := s.Dispatch(context.Background(), "/QQbox_echo 10001 hello   there")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !bytes.HasPrefix(reply.Image, []byte("\x89PNG")) {
		t.Fatalf("reply image is not PNG: %q", reply.Image[:min(8, len(reply.Image))])
	}
	if len(r.msgs) != 1 {
		t.Fatalf("renders = %d, want 1", len(r.msgs))
	}
	msg := r.msgs[0]
	if got, ok := msg.Content.(bubble.TextContent); !ok || got.Text != "hello there" {
		t.Errorf("content = %#v", msg.Content)
	}
	if msg.DisplayName != "user10001" || msg.AvatarPath != "/avatars/10001.png" {
		t.Errorf("message = %+v", msg)
	}
}

func TestDispatchHelp(t *testing.T) {
	s, _ := newService(t, &fakeRenderer{}, Options{})
	reply, err := s.Dispatch(context.Background(), "/QQbox_help")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for _, want := range []string{Echo, Color, Title, Note, "1 - gray (default)", "4 - green"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}

func TestDispatchUnknown(t *testing.T) {
	s, _ := newService(t, &fakeRenderer{}, Options{})
	for _, m := range []string{"", "hello", "/QQbox_unknown 1 2", "/qqbox_echo 1 hi"} {
		if _, err := s.Dispatch(context.Background(), m); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("Dispatch(%q) err = %v, want ErrUnknownCommand", m, err)
		}
	}
}

// ///////////////////////////////////////////////
// Block List
// ///////////////////////////////////////////////

func TestBlockedIDs(t *testing.T) {
	s, store := newService(t, &fakeRenderer{}, Options{BlockedIDs: []string{"10*", "42"}})
	ctx := context.Background()

	for _, m := range []string{"/QQbox_echo 10001 hi", "/QQbox_title 42 VIP", "/QQbox_note 1000 x"} {
		if _, err := s.Dispatch(ctx, m); !errors.Is(err, ErrBlocked) {
			t.Errorf("Dispatch(%q) err = %v, want ErrBlocked", m, err)
		}
	}
	if store.Len() != 0 {
		t.Errorf("blocked edits reached the store: %d records", store.Len())
	}
	if _, err := s.Dispatch(ctx, "/QQbox_title 420 VIP"); err != nil {
		t.Errorf("unblocked id: %v", err)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	store, err := titles.Open(filepath.Join(t.TempDir(), "t.json"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(&fakeRenderer{}, fakeProfiles{}, store, Options{BlockedIDs: []string{"[1-"}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
	if _, err := New(nil, fakeProfiles{}, store, Options{}); err == nil {
		t.Error("expected error for missing renderer")
	}
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

func TestEchoValidation(t *testing.T) {
	s, _ := newService(t, &fakeRenderer{}, Options{})
	ctx := context.Background()
	if _, err := s.Echo(ctx, EchoRequest{UserID: "1"}); !errors.Is(err, bubble.ErrEmptyMessage) {
		t.Errorf("empty message err = %v, want ErrEmptyMessage", err)
	}
	if _, err := s.Echo(ctx, EchoRequest{UserID: "x", Text: "hi"}); !errors.Is(err, profile.ErrInvalidUserID) {
		t.Errorf("bad id err = %v, want ErrInvalidUserID", err)
	}
	img := imaging.New(2, 2, color.Black)
	if _, err := s.Echo(ctx, EchoRequest{UserID: "1", Image: img}); err != nil {
		t.Errorf("image-only echo: %v", err)
	}
}

func TestEchoTimeout(t *testing.T) {
	r := &fakeRenderer{release: make(chan struct{})}
	defer close(r.release)
	s, _ := newService(t, r, Options{Timeout: 50 * time.Millisecond})

	_, err := s.Echo(context.Background(), EchoRequest{UserID: "1", Text: "slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestEchoWorkerLimit(t *testing.T) {
	r := &fakeRenderer{delay: 20 * time.Millisecond}
	s, _ := newService(t, r, Options{Workers: 2})

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Echo(context.Background(), EchoRequest{UserID: "1", Text: "hi"}); err != nil {
				t.Errorf("Echo: %v", err)
			}
		}()
	}
	wg.Wait()
	if p := r.peak.Load(); p > 2 {
		t.Errorf("peak concurrent renders = %d, want at most 2", p)
	}
	if len(r.msgs) != 6 {
		t.Errorf("renders = %d, want 6", len(r.msgs))
	}
}
