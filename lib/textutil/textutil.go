package textutil

import (
	"regexp"
	"strings"
)

var nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a title and joins its alphanumeric runs with dashes,
// "Missing Migrants Project Data" becomes "missing-migrants-project-data".
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = nonSlugRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
