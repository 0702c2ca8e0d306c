// Package cleanup holds filename checks and the best-effort routine that
// purges a file from the search index and object storage.
package cleanup

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	invalidChars = regexp.MustCompile(`[:<>"/\\|?*]`)
	urlReserved  = regexp.MustCompile(`[\\/*?:"<>|]`)
)

// ValidExtensions is the allow-list accepted by IsValidFileName. Matching
// is case sensitive.
var ValidExtensions = []string{".txt", ".pdf", ".docx", ".xlsx", ".png", ".jpg", ".jpeg", ".gif", ".csv", ".json", ".xml"}

// IsValidFileName reports whether the base name of path is safe to trust.
// The reason is empty for valid names. Rejections are logged at warn level.
func IsValidFileName(path string) (bool, string) {
	name := filepath.Base(path)
	if strings.TrimSpace(path) == "" {
		name = path
	}

	var reason string
	switch {
	case invalidChars.MatchString(name):
		reason = "invalid characters in file name"
	case strings.TrimSpace(name) == "":
		reason = "file name is empty or blank"
	case !hasValidExtension(name):
		reason = "file extension is not allowed"
	}
	if reason != "" {
		slog.Warn("rejected file name", "name", path, "reason", reason)
		return false, reason
	}
	return true, ""
}

func hasValidExtension(name string) bool {
	for _, ext := range ValidExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// SanitizeURLFilename turns a URL into a name without path or reserved
// characters, used as the logical filename of crawled content.
func SanitizeURLFilename(url string) string {
	return urlReserved.ReplaceAllString(url, "_")
}
