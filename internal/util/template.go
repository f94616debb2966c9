package util

import "regexp"

var namePlaceholder = regexp.MustCompile(`(?i)\{\{\s*name\s*\}\}`)

// RenderMessage substitutes the {{name}} placeholder (case-insensitive) with
// the recipient's name, falling back to a neutral literal when it is empty.
func RenderMessage(template, name, fallback string) string {
	v := name
	if v == "" {
		v = fallback
	}
	return namePlaceholder.ReplaceAllLiteralString(template, v)
}
