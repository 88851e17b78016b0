package internal

import (
	"net/url"
	"strings"
)

// CleanTarget normalizes an external-link relationship target to the path
// form an operator recognizes. Workbook packages store link targets as URIs:
// absolute paths come out as file:///C:/dir/Book.xlsx, UNC shares as
// file://server/share/Book.xlsx, and relative targets keep percent-escapes.
// http(s) targets are returned untouched so their own escaping survives.
func CleanTarget(raw string) string {
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}

	rest := raw
	if strings.HasPrefix(lower, "file:") {
		rest = raw[len("file:"):]
		switch {
		case strings.HasPrefix(rest, "///"):
			// Local path: file:///C:/dir/Book.xlsx
			rest = rest[3:]
		case strings.HasPrefix(rest, "//"):
			// UNC host: file://server/share/Book.xlsx
			// keep the leading slashes so the share form is recognizable
		default:
			rest = strings.TrimPrefix(rest, "/")
		}
	}

	if unescaped, err := url.PathUnescape(rest); err == nil {
		return unescaped
	}
	return rest
}
