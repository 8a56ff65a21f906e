// Package main implements the chatbubble daemon, which renders chat messages
// as bubble images and manages per-user title badges over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"

	rootpkg "tools.zach/dev/chatbubble"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/command"
	"tools.zach/dev/chatbubble/internal/config"
	"tools.zach/dev/chatbubble/internal/fetch"
	"tools.zach/dev/chatbubble/internal/fonts"
	"tools.zach/dev/chatbubble/internal/logger"
	"tools.zach/dev/chatbubble/internal/paths"
	"tools.zach/dev/chatbubble/internal/profile"
	"tools.zach/dev/chatbubble/internal/server"
	"tools.zach/dev/chatbubble/internal/titles"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via -ldflags "-X main.version=...".
// Bare go builds fall back to the embedded VCS revision.
var version = "dev"

// resolveVersion returns [version] if set, else "dev+<hash>" from the VCS
// info the toolchain embeds, with ".dirty" for modified trees.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.chatbubble, or ./.chatbubble when the home
// directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, titles, avatars and logs")
	foreground := flag.Bool("foreground", false, "Also write logs to stderr")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	tail := flag.Int("tail", 0, "Print the last N log lines and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(resolveVersion())
		return
	}

	dp := paths.DataDir{Root: *dataDir}

	if *tail > 0 {
		out, err := logger.ReadTail(dp.Log(), *tail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read log: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}

	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		os.Exit(1)
	}

	lock, err := acquirePID(dp.PID())
	if err != nil {
		if isRunning(err) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		}
		os.Exit(1)
	}

	code := daemon(dp, *foreground)
	lock.Release()
	os.Exit(code)
}

// daemon runs the service until a shutdown signal and returns the exit code.
func daemon(dp paths.DataDir, foreground bool) int {
	if err := seedConfig(dp.Config()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := config.Load(dp.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		return 1
	}

	logOpts := logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
	}
	if foreground {
		logOpts.Console = os.Stderr
	}
	log, logCloser, err := logger.New(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("chatbubble starting", "version", ver, "data_dir", dp.Root)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	if err := run(ctx, cfg, dp, ver); err != nil {
		logger.Fail(log, "daemon stopped", "error", err)
		return 1
	}
	slog.Info("chatbubble stopped")
	return 0
}

// seedConfig writes the embedded default config when path does not exist.
func seedConfig(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}
	return os.WriteFile(path, rootpkg.DefaultConfigTOML, 0o644)
}

// ///////////////////////////////////////////////
// Wiring
// ///////////////////////////////////////////////

// components are the long-lived pieces built from a config.
type components struct {
	store   *titles.Store
	service *command.Service
	server  *server.Server
}

// build constructs every component. Font loading may download from Google
// Fonts and respects ctx.
func build(ctx context.Context, cfg *config.Config, dp paths.DataDir, ver string) (*components, error) {
	client := fetch.New(cfg.FetchOptions(paths.BinaryName + "/" + ver))

	fontsDir := cfg.FontsDir(dp.Root)
	resolver := fonts.NewResolver(fontsDir, fonts.NewGoogleFetcher(client, fontsDir))
	fontSet := resolver.ResolveSet(ctx, fonts.Sources{
		Bubble:   cfg.Fonts.Bubble,
		Nickname: cfg.Fonts.Nickname,
		Title:    cfg.Fonts.Title,
	})

	layout, err := cfg.BubbleLayout()
	if err != nil {
		return nil, err
	}
	compositor, err := bubble.NewCompositor(fontSet, layout)
	if err != nil {
		return nil, fmt.Errorf("create compositor: %w", err)
	}

	titlesPath := cfg.TitlesPath(dp.Root)
	if err := os.MkdirAll(filepath.Dir(titlesPath), 0o755); err != nil {
		return nil, fmt.Errorf("create titles dir: %w", err)
	}
	store, err := titles.Open(titlesPath, cfg.Titles.DefaultTitle)
	if err != nil {
		return nil, fmt.Errorf("open titles: %w", err)
	}
	slog.Info("titles loaded", "path", titlesPath, "records", store.Len())

	profiles, err := profile.NewResolver(client, cfg.ProfileOptions(dp.Root))
	if err != nil {
		return nil, fmt.Errorf("create profile resolver: %w", err)
	}

	service, err := command.New(compositor, profiles, store, command.Options{
		BlockedIDs: cfg.Render.BlockedIDs,
		Workers:    cfg.Render.Workers,
		Timeout:    cfg.RenderTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create command service: %w", err)
	}

	srv := server.New(service, server.Options{
		Version:        ver,
		MaxBodyBytes:   int64(cfg.Server.MaxBodyMB) << 20,
		MaxImagePixels: cfg.Render.MaxCanvasPixels,
	})
	return &components{store: store, service: service, server: srv}, nil
}

// run builds the components, serves until ctx is done, then saves the
// title store.
func run(ctx context.Context, cfg *config.Config, dp paths.DataDir, ver string) error {
	c, err := build(ctx, cfg, dp, ver)
	if err != nil {
		return err
	}

	ln, err := server.Listen(cfg.Server.Listen)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Titles.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.store.Watch(ctx, cfg.PollInterval()); err != nil {
				slog.Warn("titles watcher stopped", "error", err)
			}
		}()
	}

	serveErr := c.server.Serve(ctx, ln)
	cancel()
	wg.Wait()

	if err := c.store.Save(); err != nil {
		slog.Error("failed to save titles on shutdown", "error", err)
		serveErr = errors.Join(serveErr, err)
	}
	return serveErr
}
