package extract

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe  = regexp.MustCompile(`\[\[(.*?)\]\]`)
	inlineTagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// NoteDoc holds the parsed pieces of one markdown file.
type NoteDoc struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	Aliases     []string
	Tags        []string
	Links       []string
}

// ParseNote extracts frontmatter, title, aliases, tags, and wikilinks
// from raw markdown bytes. Invalid frontmatter is treated as absent, not
// an error.
func ParseNote(data []byte) *NoteDoc {
	fm, body := splitFrontmatter(data)
	return &NoteDoc{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Aliases:     frontmatterStrings(fm, "aliases", "alias"),
		Tags:        collectTags(body, fm),
		Links:       collectWikilinks(body),
	}
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the markdown body. If no complete block is found, or
// the YAML does not parse, the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(frontmatterDelim)) {
		return nil, string(data)
	}

	rest := trimmed[len(frontmatterDelim):]
	idx := bytes.Index(rest, []byte("\n"+frontmatterDelim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(frontmatterDelim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// collectWikilinks returns deduplicated wikilink targets, dropping alias
// display text ([[Target|Alias]] -> Target).
func collectWikilinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// collectTags gathers tags from the frontmatter "tags" field and inline
// #tags in the body, deduplicated in encounter order.
func collectTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, t := range frontmatterStrings(fm, "tags") {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	for _, m := range inlineTagRe.FindAllStringSubmatch(body, -1) {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// frontmatterStrings returns the string values under the first of the
// given keys, accepting both a single scalar and a list.
func frontmatterStrings(fm map[string]any, keys ...string) []string {
	if fm == nil {
		return nil
	}
	for _, key := range keys {
		raw, ok := fm[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return []string{s}
			}
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						out = append(out, s)
					}
				}
			}
			return out
		}
	}
	return nil
}

// deriveTitle returns the frontmatter title if present, otherwise the
// first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if titles := frontmatterStrings(fm, "title"); len(titles) > 0 {
		return titles[0]
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
