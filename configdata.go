// Package chatbubble embeds the default configuration file.
//
// The root package exists to embed [config.default.toml] via
// [DefaultConfigTOML]. The daemon writes it to the data directory on first
// run so the generated comments reach the user.
package chatbubble

import _ "embed"

// DefaultConfigTOML holds config.default.toml, generated by cmd/genconfig
// from config.ExampleConfig and config.ConfigDocs.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
