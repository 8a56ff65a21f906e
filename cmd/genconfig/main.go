// Package main implements genconfig, which writes config.default.toml from
// config.ExampleConfig and annotates it with config.ConfigDocs.
//
// It runs through the go:generate directive in internal/config/config.go.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/chatbubble/internal/config"
)

const banner = "# ///////////////////////////////////////////////"

func main() {
	// go generate runs from internal/config, two levels below the module
	// root where configdata.go embeds the file.
	out := flag.String("o", "../../config.default.toml", "Output path")
	flag.Parse()

	data, err := generate(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

// ///////////////////////////////////////////////
// Generator
// ///////////////////////////////////////////////

// annotator rewrites encoder output line by line.
type annotator struct {
	docs map[string]config.FieldDoc
	out  []string
	// section is the current table path, empty at the root.
	section string
	// seen records documented keys that the encoder produced.
	seen map[string]bool
}

// generate encodes cfg and interleaves the comments from docs.
func generate(cfg *config.Config, docs map[string]config.FieldDoc) ([]byte, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	a := &annotator{docs: docs, seen: map[string]bool{}}
	a.out = append(a.out, banner, "# Chatbubble Configuration", banner, "")

	for _, line := range strings.Split(raw.String(), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case isTableHeader(line):
			a.flushOmitted()
			a.openTable(line)
		case strings.HasPrefix(line, "#") || !strings.Contains(line, "="):
			a.out = append(a.out, line)
		default:
			a.field(line)
		}
	}
	a.flushOmitted()

	return []byte(strings.TrimRight(strings.Join(a.out, "\n"), "\n") + "\n"), nil
}

func isTableHeader(line string) bool {
	return strings.HasPrefix(line, "[") && !strings.HasPrefix(line, "[[")
}

// openTable starts a new section with its separator and doc comment.
func (a *annotator) openTable(header string) {
	a.section = strings.Trim(header, "[] ")
	a.out = append(a.out, "", "# ///// "+sectionTitle(a.section)+" /////", "")
	if doc, ok := a.docs[a.section]; ok {
		a.comment(doc.Comment)
	}
	a.out = append(a.out, header)
}

// field emits a key = value line with its comment and alternatives.
func (a *annotator) field(line string) {
	key, _, _ := strings.Cut(line, "=")
	path := a.qualify(strings.TrimSpace(key))
	a.seen[path] = true

	doc, ok := a.docs[path]
	a.comment(doc.Comment)
	a.out = append(a.out, line)
	if ok {
		for _, alt := range doc.Alternatives {
			a.out = append(a.out, "# "+alt)
		}
	}
}

// flushOmitted writes commented blocks for documented keys of the current
// section that the encoder dropped, such as empty omitempty fields.
func (a *annotator) flushOmitted() {
	for _, path := range omittedKeys(a.docs, a.section, a.seen) {
		doc := a.docs[path]
		a.out = append(a.out, "")
		a.comment(doc.Comment)
		for _, alt := range doc.Alternatives {
			a.out = append(a.out, "# "+alt)
		}
		a.seen[path] = true
	}
}

func (a *annotator) comment(text string) {
	if text == "" {
		return
	}
	for _, l := range strings.Split(text, "\n") {
		a.out = append(a.out, "# "+l)
	}
}

func (a *annotator) qualify(key string) string {
	if a.section == "" {
		return key
	}
	return a.section + "." + key
}

// omittedKeys returns the sorted doc paths that are direct children of
// section and absent from seen. The root section has no omitted keys.
func omittedKeys(docs map[string]config.FieldDoc, section string, seen map[string]bool) []string {
	if section == "" {
		return nil
	}
	prefix := section + "."
	var keys []string
	for path := range docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || seen[path] {
			continue
		}
		keys = append(keys, path)
	}
	slices.Sort(keys)
	return keys
}

// sectionTitle capitalizes the last segment of a dotted table name.
func sectionTitle(section string) string {
	last := section[strings.LastIndex(section, ".")+1:]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
