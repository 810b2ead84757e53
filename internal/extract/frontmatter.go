package extract

import "strings"

// Restricted frontmatter scanner used on paths where a full YAML parse
// is not warranted: a single pass over the leading lines recognizing
// `key: value`, `key: [a, b]`, and `key:` followed by `- item` lines.
// It deliberately implements no more YAML than that (no anchors,
// multi-line scalars, or type coercion); anything unparsable is simply
// absent, matching the best-effort policy for uncontrolled note content.

const frontmatterDelim = "---"

// maxFrontmatterLines bounds how far into a file the scanner looks.
const maxFrontmatterLines = 50

// scanFrontmatter extracts string and string-list fields from a
// frontmatter block at the top of lines. Returns nil when no complete
// block is present.
func scanFrontmatter(lines []string) map[string][]string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start >= len(lines) || strings.TrimSpace(lines[start]) != frontmatterDelim {
		return nil
	}

	out := make(map[string][]string)
	var listKey string
	closed := false

	limit := start + 1 + maxFrontmatterLines
	if limit > len(lines) {
		limit = len(lines)
	}

	for i := start + 1; i < limit; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if trimmed == frontmatterDelim {
			closed = true
			break
		}

		// List item under the pending key: "  - item".
		if listKey != "" && strings.HasPrefix(trimmed, "- ") {
			item := cleanScalar(strings.TrimPrefix(trimmed, "- "))
			if item != "" {
				out[listKey] = append(out[listKey], item)
			}
			continue
		}
		listKey = ""

		key, rest, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		rest = strings.TrimSpace(rest)
		if key == "" {
			continue
		}

		switch {
		case rest == "":
			// Potential list follows.
			listKey = key
		case strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]"):
			inner := strings.TrimSuffix(strings.TrimPrefix(rest, "["), "]")
			for _, item := range strings.Split(inner, ",") {
				if v := cleanScalar(item); v != "" {
					out[key] = append(out[key], v)
				}
			}
		default:
			if v := cleanScalar(rest); v != "" {
				out[key] = append(out[key], v)
			}
		}
	}

	if !closed {
		return nil
	}
	return out
}

func cleanScalar(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
