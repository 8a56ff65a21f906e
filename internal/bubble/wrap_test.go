// wrap_test.go tests [WrapText]: newline handling, width budgets, oversized
// runes, unmeasurable glyph substitution, and character preservation.

package bubble

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// fixedMeasurer measures every rune as 10 pixels wide. Runes listed in wide
// measure 100 pixels; runes listed in missing fail with ErrUnsupportedGlyph.
type fixedMeasurer struct {
	wide    string
	missing string
}

func (m fixedMeasurer) Measure(s string) (float64, error) {
	var w float64
	for _, r := range s {
		switch {
		case strings.ContainsRune(m.missing, r):
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedGlyph, r)
		case strings.ContainsRune(m.wide, r):
			w += 100
		default:
			w += 10
		}
	}
	return w, nil
}

// ///////////////////////////////////////////////
// Line Breaking
// ///////////////////////////////////////////////

func TestWrapText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		m      fixedMeasurer
		budget float64
		want   []string
	}{
		{"empty input", "", fixedMeasurer{}, 25, []string{""}},
		{"fits on one line", "ab", fixedMeasurer{}, 25, []string{"ab"}},
		{"breaks at budget", "abcde", fixedMeasurer{}, 25, []string{"ab", "cd", "e"}},
		{"exact budget fits", "abc", fixedMeasurer{}, 30, []string{"abc"}},
		{"newline splits", "ab\ncd", fixedMeasurer{}, 100, []string{"ab", "cd"}},
		{"leading newline keeps empty line", "\nab", fixedMeasurer{}, 100, []string{"", "ab"}},
		{"double newline keeps empty line", "a\n\nb", fixedMeasurer{}, 100, []string{"a", "", "b"}},
		{"trailing newline", "ab\n", fixedMeasurer{}, 100, []string{"ab"}},
		{"only newline", "\n", fixedMeasurer{}, 100, []string{""}},
		{"wide rune gets own line", "aWb", fixedMeasurer{wide: "W"}, 25, []string{"a", "W", "b"}},
		{"wide rune first", "Wa", fixedMeasurer{wide: "W"}, 25, []string{"W", "a"}},
		{"missing glyph becomes space", "a☃b", fixedMeasurer{missing: "☃"}, 100, []string{"a b"}},
		{"missing glyph at break", "ab☃", fixedMeasurer{missing: "☃"}, 25, []string{"ab", " "}},
		{"unmeasurable space kept", "a☃", fixedMeasurer{missing: "☃ "}, 100, []string{"a "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapText(tt.text, tt.m, tt.budget)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WrapText(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Properties
// ///////////////////////////////////////////////

func TestWrapTextKeepsCharacters(t *testing.T) {
	m := fixedMeasurer{wide: "W", missing: "☃"}
	inputs := []string{
		"",
		"hello world",
		"a much longer line that will certainly need to wrap several times",
		"line one\nline two\n\nline four",
		"WWW wide WWW",
		"snow ☃ man",
		"\n\n\n",
	}
	for _, in := range inputs {
		lines := WrapText(in, m, 55)
		got := strings.Join(lines, "")
		want := strings.ReplaceAll(strings.ReplaceAll(in, "\n", ""), "☃", " ")
		if got != want {
			t.Errorf("WrapText(%q) joined = %q, want %q", in, got, want)
		}
	}
}

func TestWrapTextRespectsMaxWidth(t *testing.T) {
	m := fixedMeasurer{wide: "W"}
	const budget = 55
	in := "the quick brown fox jumps over the lazy dog W and W again\nthen more"
	for _, line := range WrapText(in, m, budget) {
		w, err := m.Measure(line)
		if err != nil {
			t.Fatalf("Measure(%q): %v", line, err)
		}
		if w > budget && len([]rune(line)) > 1 {
			t.Errorf("line %q is %v wide, budget %v", line, w, budget)
		}
	}
}

func TestWrapTextWithFont(t *testing.T) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		t.Fatalf("parse gofont: %v", err)
	}
	face, err := NewFace(f, 34*Scale)
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	defer face.Close()

	budget := float64((640 - 2*20) * Scale)
	lines := WrapText("line one\nline two", face, budget)
	want := []string{"line one", "line two"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for _, line := range lines {
		if w := face.Advance(line); w > budget {
			t.Errorf("line %q is %v wide, budget %v", line, w, budget)
		}
	}

	long := strings.Repeat("wrap me please ", 40)
	for _, line := range WrapText(long, face, budget) {
		if w := face.Advance(line); w > budget {
			t.Errorf("line %q is %v wide, budget %v", line, w, budget)
		}
	}
}

func TestFaceMeasureUnsupported(t *testing.T) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		t.Fatalf("parse gofont: %v", err)
	}
	face, err := NewFace(f, 20)
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	defer face.Close()

	if _, err := face.Measure("abc"); err != nil {
		t.Errorf("Measure(abc): %v", err)
	}
	// Go Regular has no CJK glyphs.
	if _, err := face.Measure("a字"); err == nil {
		t.Error("Measure(a字) expected ErrUnsupportedGlyph, got nil")
	}
	if face.Supports('字') {
		t.Error("Supports(字) = true, want false")
	}
	if h := face.RuneHeight('字'); h <= 0 {
		t.Errorf("RuneHeight fallback = %v, want > 0", h)
	}
}

func TestFacePrintable(t *testing.T) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		t.Fatalf("parse gofont: %v", err)
	}
	face, err := NewFace(f, 20)
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	defer face.Close()

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"头衔", "  "},
		{"a字b", "a b"},
		{"two\nlines", "two\nlines"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := face.Printable(tt.in); got != tt.want {
				t.Errorf("Printable(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
