package vault

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/oklog/ulid/v2"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// CleanName trims a display name and collapses internal whitespace.
// Case is preserved; folder names are labels, not keys.
func CleanName(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NewID returns a new ULID string. IDs are time-ordered and never reused.
func NewID() string {
	return ulid.Make().String()
}

// AccessURL derives the externally addressable URL of a stored file.
// An empty folder addresses the storage root.
func AccessURL(baseURL, folder, filename string) string {
	base := strings.TrimRight(baseURL, "/") + "/uploads"
	if folder != "" {
		base += "/" + url.PathEscape(folder)
	}
	return base + "/" + url.PathEscape(filename)
}
