package ocr

import (
	"regexp"
	"strings"
)

var horizontalSpace = regexp.MustCompile(`[\t\f\v\p{Zs}]+`)

// Normalize collapses horizontal whitespace runs to one space, trims every
// line and the whole text, and collapses blank-line runs to a single newline.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
