package extract

import (
	"regexp"
	"strings"
)

var separatorSpacing = regexp.MustCompile(`\s*/\s*`)

// normalizeTag canonicalizes a raw tag match: surrounding whitespace and
// quotes trimmed, leading '#' stripped, path-separator variants
// collapsed ("a / b" -> "a/b"). Returns false for tags that are empty
// after normalization, over the length cap, over the nesting depth cap,
// or nested while nested tags are disabled.
func (e *Extractor) normalizeTag(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = separatorSpacing.ReplaceAllString(s, "/")
	s = strings.Trim(s, "/")

	if s == "" || len(s) > e.maxTagLength {
		return "", false
	}
	if strings.Contains(s, "/") {
		if !e.nestedTags {
			return "", false
		}
		if strings.Count(s, "/")+1 > e.maxTagDepth {
			return "", false
		}
	}
	return s, true
}

// normalizeLinkTarget canonicalizes a markdown-link target. External
// URLs and anchors are rejected; path separators are normalized and the
// length cap applies.
func (e *Extractor) normalizeLinkTarget(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "<>")
	if s == "" || len(s) > e.maxTagLength*2 {
		return "", false
	}
	if strings.HasPrefix(s, "#") {
		return "", false
	}
	if strings.Contains(s, "://") || strings.HasPrefix(s, "mailto:") {
		return "", false
	}
	s = strings.ReplaceAll(s, "\\", "/")
	return s, true
}
