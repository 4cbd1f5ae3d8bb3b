package validators

import (
	"strings"
	"unicode"
)

// SanitizeString collapses whitespace runs, drops control characters and
// truncates to maxLen runes. maxLen <= 0 disables truncation.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	count := 0
	for _, field := range strings.Fields(input) {
		if count > 0 {
			if maxLen > 0 && count >= maxLen {
				break
			}
			b.WriteByte(' ')
			count++
		}
		for _, r := range field {
			if unicode.IsControl(r) {
				continue
			}
			if maxLen > 0 && count >= maxLen {
				break
			}
			b.WriteRune(r)
			count++
		}
	}
	return strings.TrimSpace(b.String())
}
