package bubble

import "strings"

// WrapText breaks text into lines no wider than maxWidth as measured by m.
//
// Lines are built rune by rune. A newline always ends the current line, even
// an empty one. A rune that would push the line past maxWidth starts a new
// line, so a single rune wider than the budget still gets a line of its own.
// A rune the font cannot measure is replaced by a space before the width
// check. The result always holds at least one line.
func WrapText(text string, m Measurer, maxWidth float64) []string {
	var lines []string
	var current strings.Builder

	for _, r := range text {
		if r == '\n' {
			lines = append(lines, current.String())
			current.Reset()
			continue
		}

		line := current.String()
		width, err := m.Measure(line + string(r))
		if err != nil {
			r = ' '
			width, err = m.Measure(line + " ")
			if err != nil {
				// The space itself is unmeasurable: keep it on the line.
				current.WriteRune(r)
				continue
			}
		}

		if width <= maxWidth {
			current.WriteRune(r)
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
		current.Reset()
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
