package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "layout.max_width")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Fonts ─────────────────────────────────────────────────────
	"fonts": {
		Comment: "Font sources. Each is a file path, a glob matched under dir,\nor google:Family:Weight to download from Google Fonts.\nLeave empty to use the built-in Go fonts.",
	},
	"fonts.dir": {
		Comment: "Font search directory; also caches downloaded fonts. Defaults to <data>/fonts.",
		Alternatives: []string{
			`dir = "/usr/share/fonts"`,
		},
	},
	"fonts.bubble": {
		Comment: "Message text font",
		Alternatives: []string{
			`bubble = "SourceHanSansSC-Regular.otf"`,
			`bubble = "**/NotoSansSC-*.ttf"`,
			`bubble = "google:Noto Sans SC:400"`,
		},
	},
	"fonts.nickname": {
		Comment: "Display name font",
		Alternatives: []string{
			`nickname = "google:Noto Sans SC:400"`,
		},
	},
	"fonts.title": {
		Comment: "Title badge font. Falls back to Go Bold.",
		Alternatives: []string{
			`title = "google:Noto Sans SC:700"`,
		},
	},

	// ── Layout ────────────────────────────────────────────────────
	"layout.bubble_font_size": {
		Comment: "Font sizes in pixels",
	},
	"layout.nickname_font_size": {},
	"layout.title_font_size":    {},
	"layout.bubble_padding": {
		Comment: "Inner bubble padding in pixels",
	},
	"layout.corner_radius": {},
	"layout.avatar_size":   {},
	"layout.max_width": {
		Comment: "Widest a bubble may grow before text wraps and images shrink",
	},
	"layout.image_scale": {
		Comment: "Embedded images are scaled by this factor before fitting to max_width",
	},
	"layout.background": {
		Comment: "Colors as #RRGGBB",
	},
	"layout.bubble_fill": {},
	"layout.bubble_fill_alpha": {
		Comment: "Bubble opacity, 0 (transparent) to 255 (opaque)",
	},
	"layout.bubble_outline":   {},
	"layout.text_color":       {},
	"layout.title_text_color": {},

	// ── Profile ───────────────────────────────────────────────────
	"profile.avatar_dir": {
		Comment: "Avatar cache directory, relative to the data directory.\nDelete a file here to refresh that user's nickname and avatar.",
	},
	"profile.nickname_apis": {
		Comment: "Nickname lookup endpoints, tried in order. {id} is replaced by the user id.\nResponses may carry the name at data.name or name.",
	},
	"profile.avatar_url": {
		Comment: "Avatar download URL. {id} is replaced by the user id.",
	},
	"profile.timeout_seconds": {
		Comment: "Per-attempt request timeout",
	},
	"profile.retry_max": {
		Comment: "Retries for connection errors and 5xx responses",
	},
	"profile.max_avatar_mb": {},

	// ── Titles ────────────────────────────────────────────────────
	"titles.file": {
		Comment: "Title store, relative to the data directory",
	},
	"titles.default_title": {
		Comment: "Badge text for users who set a color before a title",
	},
	"titles.watch": {
		Comment: "Reload the store when the file is edited by hand",
	},
	"titles.poll_interval_seconds": {
		Comment: "Polling interval when file events are unavailable (e.g. network drives)",
	},

	// ── Render ────────────────────────────────────────────────────
	"render.workers": {
		Comment: "Concurrent compositions",
	},
	"render.timeout_seconds": {
		Comment: "Deadline for one echo, including profile lookup",
	},
	"render.max_canvas_pixels": {
		Comment: "Largest raster the compositor will allocate",
	},
	"render.blocked_ids": {
		Comment: "User ids refused by every command. Glob patterns are allowed.",
		Alternatives: []string{
			`blocked_ids = ["10001", "2333*"]`,
		},
	},

	// ── Server ────────────────────────────────────────────────────
	"server.listen": {
		Comment: "HTTP listen address",
		Alternatives: []string{
			`listen = "0.0.0.0:5701"`,
			`listen = "unix:/run/chatbubble.sock"`,
			`listen = 'pipe:\\.\pipe\chatbubble'`,
		},
	},
	"server.max_body_mb": {
		Comment: "Largest accepted request body",
	},

	// ── Log ───────────────────────────────────────────────────────
	"log.level": {
		Comment:      "Log level",
		Alternatives: []string{`level = "debug"`, `level = "trace"`},
	},
	"log.max_size_mb": {
		Comment: "Log file size before rotation",
	},
}
