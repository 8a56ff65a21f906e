// Package command implements the chat commands: rendering a message as a
// bubble image and editing a user's title, title color and display-name
// note.
package command

import (
	"regexp"
	"strings"
)

// Command names as typed by users, with an optional leading "/".
const (
	Echo  = "QQbox_echo"
	Color = "QQbox_color"
	Title = "QQbox_title"
	Note  = "QQbox_note"
	Help  = "QQbox_help"
)

// commands lists every command for lookup and help output.
var commands = []string{Echo, Color, Title, Note, Help}

// ExtractParams returns the whitespace-separated words following the first
// occurrence of directive in message. It returns nil when the directive is
// absent or has nothing after it.
func ExtractParams(message, directive string) []string {
	re := regexp.MustCompile(regexp.QuoteMeta(directive) + `\s+(.*)`)
	m := re.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	params := strings.Fields(m[1])
	if len(params) == 0 {
		return nil
	}
	return params
}

// directiveOf returns the command named by the first word of message.
func directiveOf(message string) (string, bool) {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return "", false
	}
	name := strings.TrimPrefix(fields[0], "/")
	for _, c := range commands {
		if name == c {
			return c, true
		}
	}
	return "", false
}
