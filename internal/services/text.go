package services

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxNoteLength   = 500
	maxReasonLength = 280
)

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizeFreeText strips markup from customer or operator supplied text and caps its length in runes.
func sanitizeFreeText(value string, limit int) string {
	cleaned := html.UnescapeString(plainTextPolicy.Sanitize(value))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if limit > 0 && utf8.RuneCountInString(cleaned) > limit {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:limit]))
	}
	return cleaned
}
