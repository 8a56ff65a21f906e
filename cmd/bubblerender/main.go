// Package main implements bubblerender, which composes a single chat bubble
// PNG from the command line without running the daemon.
//
// Usage:
//
//	bubblerender -user 10001 -name Alice -text "hello" -o out.png
//	bubblerender -user 10001 -image cat.jpg -title Admin -color 2 -o out.png
//	bubblerender -user 10001 -text "hi" -titles ~/.chatbubble/avatars/qq_data.json -fetch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/config"
	"tools.zach/dev/chatbubble/internal/fetch"
	"tools.zach/dev/chatbubble/internal/fonts"
	"tools.zach/dev/chatbubble/internal/logger"
	"tools.zach/dev/chatbubble/internal/paths"
	"tools.zach/dev/chatbubble/internal/profile"
	"tools.zach/dev/chatbubble/internal/titles"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "bubblerender: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	dataDir    string
	userID     string
	name       string
	text       string
	imagePath  string
	avatarPath string
	titlesPath string
	title      string
	color      string
	note       string
	out        string
	fetch      bool
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("bubblerender", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.dataDir, "data-dir", "", "Data directory holding config.toml (defaults apply when empty)")
	fs.StringVar(&o.userID, "user", "10000", "Speaking user id")
	fs.StringVar(&o.name, "name", "", "Display name (defaults to the user id)")
	fs.StringVar(&o.text, "text", "", "Message text")
	fs.StringVar(&o.imagePath, "image", "", "Attached image file")
	fs.StringVar(&o.avatarPath, "avatar", "", "Avatar image file (a generated initial when empty)")
	fs.StringVar(&o.titlesPath, "titles", "", "Title store JSON to read badges from")
	fs.StringVar(&o.title, "title", "", "Badge text for this render")
	fs.StringVar(&o.color, "color", "", "Badge color 1-4 for this render")
	fs.StringVar(&o.note, "note", "", "Display-name override for this render")
	fs.StringVar(&o.out, "o", "bubble.png", "Output PNG path")
	fs.BoolVar(&o.fetch, "fetch", false, "Look up nickname and avatar over the network")
	fs.BoolVar(&o.verbose, "v", false, "Log at debug level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.text == "" && o.imagePath == "" {
		return o, errors.New("one of -text or -image is required")
	}
	if err := profile.ValidUserID(o.userID); err != nil {
		return o, err
	}
	if o.name == "" {
		o.name = o.userID
	}
	return o, nil
}

// run renders one bubble as described by args.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	level := logger.LevelWarn
	if o.verbose {
		level = logger.LevelDebug
	}
	log, closer, err := logger.New(logger.Options{Level: level, Console: stderr})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(log)

	cfg := config.DefaultConfig()
	root := o.dataDir
	if root != "" {
		if cfg, err = config.Load(root); err != nil {
			return err
		}
	} else {
		root = "."
	}

	client := fetch.New(cfg.FetchOptions(paths.BinaryName + "-render"))
	fontsDir := cfg.FontsDir(root)
	resolver := fonts.NewResolver(fontsDir, fonts.NewGoogleFetcher(client, fontsDir))
	compositor, err := newCompositor(ctx, cfg, resolver)
	if err != nil {
		return err
	}

	lookup, err := titleLookup(o, cfg.Titles.DefaultTitle)
	if err != nil {
		return err
	}

	var img image.Image
	if o.imagePath != "" {
		data, err := os.ReadFile(o.imagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if img, err = bubble.DecodeImage(data, cfg.Render.MaxCanvasPixels); err != nil {
			return err
		}
	}
	content, err := bubble.NewContent(o.text, img)
	if err != nil {
		return err
	}

	msg := bubble.Message{UserID: o.userID, Content: content, DisplayName: o.name, AvatarPath: o.avatarPath}
	if o.fetch {
		profiles, err := profile.NewResolver(client, cfg.ProfileOptions(root))
		if err != nil {
			return err
		}
		p, err := profiles.Resolve(ctx, o.userID)
		if err != nil {
			return fmt.Errorf("resolve profile: %w", err)
		}
		msg.DisplayName, msg.AvatarPath = p.Name, p.AvatarPath
	} else if msg.AvatarPath == "" {
		tmp, err := os.MkdirTemp("", "bubblerender-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		if msg.AvatarPath, err = writeInitialAvatar(tmp, o.name); err != nil {
			return err
		}
	}

	out, err := compositor.Compose(msg, lookup)
	if err != nil {
		return err
	}
	data, err := bubble.EncodePNG(out)
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Debug("bubble written", "path", o.out, "width", out.Bounds().Dx(), "height", out.Bounds().Dy())
	return nil
}

func newCompositor(ctx context.Context, cfg *config.Config, resolver *fonts.Resolver) (*bubble.Compositor, error) {
	layout, err := cfg.BubbleLayout()
	if err != nil {
		return nil, err
	}
	set := resolver.ResolveSet(ctx, fonts.Sources{
		Bubble:   cfg.Fonts.Bubble,
		Nickname: cfg.Fonts.Nickname,
		Title:    cfg.Fonts.Title,
	})
	return bubble.NewCompositor(set, layout)
}

// titleLookup reads the store named by -titles, then layers the -color,
// -title and -note flags on top of the user's record.
func titleLookup(o options, defaultTitle string) (titles.Map, error) {
	m := titles.Map{}
	if o.titlesPath != "" {
		store, err := titles.Open(o.titlesPath, defaultTitle)
		if err != nil {
			return nil, fmt.Errorf("open titles: %w", err)
		}
		m = store.Snapshot()
	}

	updates := []struct {
		field titles.Field
		value string
	}{
		{titles.FieldColor, o.color},
		{titles.FieldTitle, o.title},
		{titles.FieldNote, o.note},
	}
	for _, u := range updates {
		if u.value == "" {
			continue
		}
		var existing *titles.Record
		if rec, ok := m[o.userID]; ok {
			existing = &rec
		}
		m[o.userID] = titles.ApplyUpdate(existing, u.field, u.value, defaultTitle)
	}
	return m, nil
}

// writeInitialAvatar saves the generated initial avatar for name under dir.
func writeInitialAvatar(dir, name string) (string, error) {
	img, err := profile.DefaultAvatar(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "avatar.png")
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save avatar: %w", err)
	}
	return path, nil
}
