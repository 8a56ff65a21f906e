// Package server exposes the chat commands over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/command"
	"tools.zach/dev/chatbubble/internal/titles"
)

// DefaultMaxBodyBytes caps request bodies, including uploaded images.
const DefaultMaxBodyBytes = 16 << 20

// shutdownTimeout bounds draining in-flight requests.
const shutdownTimeout = 5 * time.Second

// Commands is the command surface served over HTTP.
type Commands interface {
	Dispatch(ctx context.Context, message string) (command.Reply, error)
	EchoPNG(ctx context.Context, req command.EchoRequest) ([]byte, error)
	Title(userID string) (titles.Record, bool, error)
	SetColor(userID, color string) (titles.Record, error)
	SetTitle(userID, title string) (titles.Record, error)
	SetNote(userID, note string) (titles.Record, error)
}

// Options configures a [Server].
type Options struct {
	// Version is reported by the health endpoint.
	Version string
	// MaxBodyBytes caps request bodies. Zero uses the default.
	MaxBodyBytes int64
	// MaxImagePixels caps the decoded size of uploaded images. Zero uses
	// the default.
	MaxImagePixels int
}

// Server is the HTTP front end.
type Server struct {
	// cmds executes requests.
	cmds Commands
	// engine routes requests.
	engine *gin.Engine
	// opts holds the version and limits.
	opts Options
}

// New builds the router.
func New(cmds Commands, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = bubble.DefaultLayout().MaxCanvasPixels
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(recoverer(), accessLog(), limitBody(opts.MaxBodyBytes))

	s := &Server{cmds: cmds, engine: engine, opts: opts}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve serves on ln until ctx is canceled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
