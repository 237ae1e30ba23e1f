package command

import (
	"strings"
	"unicode"
)

// DefaultPrefix marks the beginning of a command token.
const DefaultPrefix = "/"

// Command is the token extracted from the start of an update's text.
type Command struct {
	Name string // Token without prefix and without the @bot suffix, case preserved
	Args string // Remainder of the text after the token, trimmed
}

// Parse extracts a Command from text. The text must start with prefix directly
// followed by the token; the token ends at the first whitespace.
//
// Telegram appends "@botname" to commands sent in groups. When botUsername is set,
// a command addressed to a different bot is not a command for us. The comparison
// of the username is case-insensitive, the command name itself is not.
func Parse(text, prefix, botUsername string) (Command, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}

	rest := text[len(prefix):]
	token, args := rest, ""
	if idx := strings.IndexFunc(rest, unicode.IsSpace); idx >= 0 {
		token = rest[:idx]
		args = strings.TrimSpace(rest[idx:])
	}

	if at := strings.IndexByte(token, '@'); at >= 0 {
		mention := token[at+1:]
		if botUsername != "" && !strings.EqualFold(mention, botUsername) {
			return Command{}, false
		}
		token = token[:at]
	}

	if token == "" {
		return Command{}, false
	}
	return Command{Name: token, Args: args}, true
}
