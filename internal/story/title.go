package story

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayTitle normalizes a story title for interface display: collapses
// separator runs, strips stray punctuation, and title-cases the result.
func DisplayTitle(raw string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled Story"
	}
	return cases.Title(language.Und).String(title)
}
