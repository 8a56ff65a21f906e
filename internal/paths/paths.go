// Package paths names the files and directories kept in the data directory.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	ConfigFile = "config.toml"
	LogFile    = "chatbubble.log"
	PIDFile    = "chatbubble.pid"
	AvatarsDir = "avatars"
	FontsDir   = "fonts"
	// TitlesFile lives inside AvatarsDir, next to the cached avatars.
	TitlesFile = "qq_data.json"
)

// Binary and directory names.
const (
	BinaryName = "chatbubble"
	DataDirRel = ".chatbubble" // relative to $HOME
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir builds paths rooted at a data directory.
type DataDir struct {
	Root string
}

// Config returns the config file path.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the log file path.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// PID returns the PID file path.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Avatars returns the avatar cache directory.
func (d DataDir) Avatars() string { return filepath.Join(d.Root, AvatarsDir) }

// Titles returns the default title store path.
func (d DataDir) Titles() string { return filepath.Join(d.Avatars(), TitlesFile) }

// Fonts returns the font directory, which also caches downloaded fonts.
func (d DataDir) Fonts() string { return filepath.Join(d.Root, FontsDir) }

// Resolve returns p unchanged when absolute, else p joined to the root.
// An empty p yields def.
func (d DataDir) Resolve(p, def string) string {
	switch {
	case p == "":
		return def
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(d.Root, p)
	}
}
