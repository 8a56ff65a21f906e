package command

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/profile"
	"tools.zach/dev/chatbubble/internal/titles"
)

var (
	// ErrBlocked is returned for user ids matching a blocked pattern.
	ErrBlocked = errors.New("user id is blocked")
	// ErrUnknownCommand is returned by Dispatch for messages that do not
	// start with a known command.
	ErrUnknownCommand = errors.New("unknown command")
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Renderer composes a message image.
type Renderer interface {
	Compose(msg bubble.Message, lookup bubble.TitleLookup) (*image.NRGBA, error)
}

// Profiles resolves a user's name and avatar.
type Profiles interface {
	Resolve(ctx context.Context, userID string) (profile.Profile, error)
}

// TitleStore reads and edits title records.
type TitleStore interface {
	bubble.TitleLookup
	SetColor(userID, color string) (titles.Record, error)
	SetTitle(userID, title string) (titles.Record, error)
	SetNote(userID, note string) (titles.Record, error)
}

// ///////////////////////////////////////////////
// Service
// ///////////////////////////////////////////////

// Options configures a [Service].
type Options struct {
	// BlockedIDs are doublestar patterns of user ids that are refused.
	BlockedIDs []string
	// Workers bounds concurrent renders. Zero means 1.
	Workers int
	// Timeout bounds waiting for a worker plus rendering. Zero means none.
	Timeout time.Duration
}

// Service executes commands against the renderer, profile resolver and
// title store.
type Service struct {
	renderer Renderer
	profiles Profiles
	titles   TitleStore
	// blocked holds validated patterns.
	blocked []string
	// slots is a semaphore of render workers.
	slots chan struct{}
	// timeout applies to each render.
	timeout time.Duration
}

// New validates opts and returns a service.
func New(renderer Renderer, profiles Profiles, store TitleStore, opts Options) (*Service, error) {
	if renderer == nil || profiles == nil || store == nil {
		return nil, errors.New("renderer, profiles and title store are required")
	}
	for _, p := range opts.BlockedIDs {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid blocked id pattern %q", p)
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		renderer: renderer,
		profiles: profiles,
		titles:   store,
		blocked:  opts.BlockedIDs,
		slots:    make(chan struct{}, workers),
		timeout:  opts.Timeout,
	}, nil
}

// Blocked reports whether userID matches a blocked pattern.
func (s *Service) Blocked(userID string) bool {
	for _, p := range s.blocked {
		if ok, _ := doublestar.Match(p, userID); ok {
			return true
		}
	}
	return false
}

// checkUser validates userID and applies the block list.
func (s *Service) checkUser(userID string) error {
	if err := profile.ValidUserID(userID); err != nil {
		return err
	}
	if s.Blocked(userID) {
		return fmt.Errorf("%w: %s", ErrBlocked, userID)
	}
	return nil
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// EchoRequest is a message to render as userID.
type EchoRequest struct {
	// UserID is the speaking user.
	UserID string
	// Text is the message text, possibly empty.
	Text string
	// Image is an attached picture, possibly nil.
	Image image.Image
}

// Echo renders req as a chat bubble from req.UserID.
func (s *Service) Echo(ctx context.Context, req EchoRequest) (*image.NRGBA, error) {
	if err := s.checkUser(req.UserID); err != nil {
		return nil, err
	}
	content, err := bubble.NewContent(req.Text, req.Image)
	if err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	p, err := s.profiles.Resolve(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}
	msg := bubble.Message{
		UserID:      req.UserID,
		Content:     content,
		DisplayName: p.Name,
		AvatarPath:  p.AvatarPath,
	}
	return s.render(ctx, msg)
}

// EchoPNG is [Service.Echo] followed by PNG encoding.
func (s *Service) EchoPNG(ctx context.Context, req EchoRequest) ([]byte, error) {
	img, err := s.Echo(ctx, req)
	if err != nil {
		return nil, err
	}
	return bubble.EncodePNG(img)
}

type renderResult struct {
	img *image.NRGBA
	err error
}

// render composes msg on a worker slot. The composition itself cannot be
// interrupted; when ctx ends first the caller gets ctx's error and the
// worker finishes in the background before releasing its slot.
func (s *Service) render(ctx context.Context, msg bubble.Message) (*image.NRGBA, error) {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for render worker: %w", ctx.Err())
	}

	done := make(chan renderResult, 1)
	go func() {
		defer func() { <-s.slots }()
		start := time.Now()
		img, err := s.renderer.Compose(msg, s.titles)
		slog.Debug("message rendered", "user", msg.UserID, "elapsed", time.Since(start), "error", err)
		done <- renderResult{img, err}
	}()

	select {
	case r := <-done:
		return r.img, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("render: %w", ctx.Err())
	}
}

// ///////////////////////////////////////////////
// Title Edits
// ///////////////////////////////////////////////

// SetColor sets userID's badge color. Input without a digit 1-4 becomes 1.
func (s *Service) SetColor(userID, color string) (titles.Record, error) {
	if err := s.checkUser(userID); err != nil {
		return titles.Record{}, err
	}
	return s.titles.SetColor(userID, color)
}

// SetTitle sets userID's badge text.
func (s *Service) SetTitle(userID, title string) (titles.Record, error) {
	if err := s.checkUser(userID); err != nil {
		return titles.Record{}, err
	}
	return s.titles.SetTitle(userID, title)
}

// SetNote sets userID's display-name override.
func (s *Service) SetNote(userID, note string) (titles.Record, error) {
	if err := s.checkUser(userID); err != nil {
		return titles.Record{}, err
	}
	return s.titles.SetNote(userID, note)
}

// Title returns userID's record.
func (s *Service) Title(userID string) (titles.Record, bool, error) {
	if err := s.checkUser(userID); err != nil {
		return titles.Record{}, false, err
	}
	rec, ok := s.titles.Lookup(userID)
	return rec, ok, nil
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

// Reply is the outcome of a command: a text answer or a PNG image.
type Reply struct {
	// Text is set for text answers.
	Text string
	// Image holds PNG bytes for rendered messages.
	Image []byte
}

// usage strings per command.
var usage = map[string]string{
	Echo:  "usage: /" + Echo + " <user id> <text>",
	Color: "usage: /" + Color + " <user id> <color 1-4>",
	Title: "usage: /" + Title + " <user id> <title>",
	Note:  "usage: /" + Note + " <user id> <note>",
}

const badUserIDReply = "user id must be digits only"

// Dispatch parses and runs a command message. Malformed arguments produce a
// usage reply rather than an error; blocked ids, unknown commands and
// render failures are errors.
func (s *Service) Dispatch(ctx context.Context, message string) (Reply, error) {
	directive, ok := directiveOf(message)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, firstWord(message))
	}
	if directive == Help {
		return Reply{Text: HelpText()}, nil
	}

	params := ExtractParams(message, directive)
	slog.Info("command received", "command", directive, "params", len(params))
	if len(params) < 2 {
		return Reply{Text: usage[directive]}, nil
	}
	id, rest := params[0], strings.Join(params[1:], " ")
	if profile.ValidUserID(id) != nil {
		return Reply{Text: badUserIDReply}, nil
	}

	switch directive {
	case Echo:
		png, err := s.EchoPNG(ctx, EchoRequest{UserID: id, Text: rest})
		if err != nil {
			return Reply{}, err
		}
		return Reply{Image: png}, nil
	case Color:
		// Only the first word counts, as the color is a single id.
		if _, err := s.SetColor(id, params[1]); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf("updated %s: color %s", id, params[1])}, nil
	case Title:
		if _, err := s.SetTitle(id, rest); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf("updated %s: title %s", id, rest)}, nil
	case Note:
		if _, err := s.SetNote(id, rest); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf("updated %s: note %s", id, rest)}, nil
	}
	return Reply{}, fmt.Errorf("%w: %s", ErrUnknownCommand, directive)
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// HelpText describes every command and the color palette.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Chat bubble commands\n\n")
	b.WriteString("1. Render a chat bubble\n   /" + Echo + " <user id> <text>\n\n")
	b.WriteString("2. Set title color\n   /" + Color + " <user id> <color>\n")
	for id := 1; id <= len(bubble.Palette); id++ {
		fmt.Fprintf(&b, "   %d - %s", id, bubble.PaletteNames[id])
		if id == bubble.DefaultColorID {
			b.WriteString(" (default)")
		}
		b.WriteByte('\n')
	}
	b.WriteString("\n3. Set title text\n   /" + Title + " <user id> <title>\n\n")
	b.WriteString("4. Set display-name note\n   /" + Note + " <user id> <note>\n   The note replaces the nickname.\n\n")
	b.WriteString("User ids must be digits only.")
	return b.String()
}
