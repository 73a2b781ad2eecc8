package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// cleanLine strips markup from single-line profile fields. Entities are
// decoded and runs of whitespace collapse to one space.
func cleanLine(value string) string {
	return strings.Join(strings.Fields(html.UnescapeString(textPolicy.Sanitize(value))), " ")
}
