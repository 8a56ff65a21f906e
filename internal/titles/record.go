// Package titles stores per-user title overrides: a badge color, a badge
// title and a display-name note.
//
// Records persist as a JSON object keyed by user id:
//
//	{"10001": {"color": "3", "content": "VIP", "notes": null}}
//
// Fields are nullable so that files written by earlier deployments keep their
// shape when rewritten.
package titles

import (
	"fmt"
	"regexp"
	"strconv"
)

// DefaultColor is the color id assigned when none is set or the input is
// not a palette id.
const DefaultColor = "1"

// DefaultTitle is the title given to a record first created by a color update.
const DefaultTitle = "头衔"

// ///////////////////////////////////////////////
// Record
// ///////////////////////////////////////////////

// Record is one user's title override.
type Record struct {
	// Color is the badge palette id, "1" through "4".
	Color *string `json:"color"`
	// Content is the badge text.
	Content *string `json:"content"`
	// Notes replaces the display name when non-empty.
	Notes *string `json:"notes"`
}

// ColorID returns the palette id, or 1 when the color is absent or invalid.
func (r Record) ColorID() int {
	if r.Color == nil {
		return 1
	}
	n, err := strconv.Atoi(*r.Color)
	if err != nil || n < 1 || n > 4 {
		return 1
	}
	return n
}

// Title returns the badge text, empty when unset.
func (r Record) Title() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

// Note returns the display-name override, empty when unset.
func (r Record) Note() string {
	if r.Notes == nil {
		return ""
	}
	return *r.Notes
}

// clone returns a deep copy of r.
func (r Record) clone() Record {
	return Record{
		Color:   cloneString(r.Color),
		Content: cloneString(r.Content),
		Notes:   cloneString(r.Notes),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ///////////////////////////////////////////////
// Updates
// ///////////////////////////////////////////////

// Field selects the record field an update targets.
type Field int

const (
	// FieldColor updates the badge color.
	FieldColor Field = iota
	// FieldTitle updates the badge text.
	FieldTitle
	// FieldNote updates the display-name override.
	FieldNote
)

// String returns the field's command name.
func (f Field) String() string {
	switch f {
	case FieldColor:
		return "color"
	case FieldTitle:
		return "title"
	case FieldNote:
		return "note"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// colorRe finds the first palette id in free-form color input.
var colorRe = regexp.MustCompile(`[1-4]`)

// NormalizeColor returns the first digit 1-4 found in s, or [DefaultColor].
func NormalizeColor(s string) string {
	if m := colorRe.FindString(s); m != "" {
		return m
	}
	return DefaultColor
}

// ApplyUpdate returns existing with field set to value. When existing is nil
// a new record is created with these defaults for the untouched fields:
//
//   - color update: title defaultTitle, no note
//   - title update: color 1, no note
//   - note update: no color, no title
//
// Color values are normalized with [NormalizeColor]. existing is not modified.
func ApplyUpdate(existing *Record, field Field, value, defaultTitle string) Record {
	var rec Record
	if existing != nil {
		rec = existing.clone()
	} else {
		switch field {
		case FieldColor:
			rec.Content = &defaultTitle
		case FieldTitle:
			c := DefaultColor
			rec.Color = &c
		}
	}

	switch field {
	case FieldColor:
		c := NormalizeColor(value)
		rec.Color = &c
	case FieldTitle:
		rec.Content = &value
	case FieldNote:
		rec.Notes = &value
	}
	return rec
}
