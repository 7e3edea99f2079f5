package pipeline

import (
	"errors"
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// ShortSuffix is appended to drafts below the minimum length.
const ShortSuffix = " Where in the world am I?"

var errEmptyDraft = errors.New("empty draft")

var (
	strictOnce   sync.Once
	strictPolicy *bluemonday.Policy
)

// plainText strips any markup a provider wrapped around the riddle and collapses whitespace.
func plainText(s string) string {
	strictOnce.Do(func() { strictPolicy = bluemonday.StrictPolicy() })
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// Repair fits text into [min, max] runes. Long text is cut and ends with an
// ellipsis, short text gets ShortSuffix. Blank text cannot be repaired.
func Repair(text string, min, max int) (string, error) {
	text = plainText(text)
	if text == "" {
		return "", errEmptyDraft
	}
	n := utf8.RuneCountInString(text)
	switch {
	case max > 0 && n > max:
		r := []rune(text)
		return strings.TrimRight(string(r[:max-1]), " ") + "…", nil
	case n < min:
		return text + ShortSuffix, nil
	}
	return text, nil
}
