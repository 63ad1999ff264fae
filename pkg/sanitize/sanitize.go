package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptRegex = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRegex  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRegex    = regexp.MustCompile(`<[^>]*>`)
	idRegex     = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)
)

// Text cleans free text typed by a user: markup and control characters
// are dropped, line breaks and tabs are kept, and the ends are trimmed.
func Text(input string) string {
	return strings.TrimSpace(stripControl(stripTags(input)))
}

// stripTags removes all HTML tags, together with the body of script
// and style elements
func stripTags(input string) string {
	input = scriptRegex.ReplaceAllString(input, "")
	input = styleRegex.ReplaceAllString(input, "")
	return tagRegex.ReplaceAllString(input, "")
}

// stripControl removes control characters other than newline and tab
func stripControl(input string) string {
	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ValidateStringLength checks if string length is within bounds
func ValidateStringLength(input string, minLen, maxLen int) bool {
	return len(input) >= minLen && len(input) <= maxLen
}

// ValidID reports whether s is usable as an appointment or user id
func ValidID(s string) bool {
	return idRegex.MatchString(s)
}
