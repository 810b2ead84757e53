// Package complete implements the completion facade: cursor-context
// detection, extractor dispatch, scoring, and item sanitization. It is
// the single implementation every transport adapter (REST, MCP) wraps.
package complete

import "strings"

// Kind identifies which completion context the cursor is in.
type Kind int

const (
	// KindNone means no completion applies at the cursor.
	KindNone Kind = iota
	// KindTag means the cursor follows '#' plus optional word characters.
	KindTag
	// KindWikiLink means the cursor follows an unclosed '[['.
	KindWikiLink
	// KindMarkdownLink means the cursor follows an unclosed ']('.
	KindMarkdownLink
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindWikiLink:
		return "wikilink"
	case KindMarkdownLink:
		return "mdlink"
	default:
		return "none"
	}
}

// Context is a detected completion context with the partial query typed
// so far.
type Context struct {
	Kind  Kind
	Query string
}

// DetectContext inspects the line text before cursor column col (byte
// offset) and reports which completion context, if any, applies.
// Wikilink wins over markdown link wins over tag, matching the opener
// closest to the cursor taking precedence in practice.
func DetectContext(line string, col int) Context {
	if col < 0 {
		col = 0
	}
	if col > len(line) {
		col = len(line)
	}
	before := line[:col]

	if ok, q := wikiLinkContext(before); ok {
		return Context{Kind: KindWikiLink, Query: q}
	}
	if ok, q := markdownLinkContext(before); ok {
		return Context{Kind: KindMarkdownLink, Query: q}
	}
	if ok, q := tagContext(before); ok {
		return Context{Kind: KindTag, Query: q}
	}
	return Context{Kind: KindNone}
}

// wikiLinkContext reports whether the cursor follows an unclosed "[[",
// returning the partial target typed after it.
func wikiLinkContext(before string) (bool, string) {
	open := strings.LastIndex(before, "[[")
	if open < 0 {
		return false, ""
	}
	rest := before[open+2:]
	if strings.Contains(rest, "]]") {
		return false, ""
	}
	// A pipe starts the display alias; the target query ends there.
	if i := strings.IndexByte(rest, '|'); i >= 0 {
		rest = rest[:i]
	}
	return true, rest
}

// markdownLinkContext reports whether the cursor follows an unclosed "](".
func markdownLinkContext(before string) (bool, string) {
	open := strings.LastIndex(before, "](")
	if open < 0 {
		return false, ""
	}
	rest := before[open+2:]
	if strings.ContainsRune(rest, ')') {
		return false, ""
	}
	return true, rest
}

// tagContext reports whether the cursor follows '#' plus optional word
// characters, with the '#' at a word start.
func tagContext(before string) (bool, string) {
	hash := strings.LastIndexByte(before, '#')
	if hash < 0 {
		return false, ""
	}
	if hash > 0 {
		prev := before[hash-1]
		if prev != ' ' && prev != '\t' && prev != '(' && prev != '[' {
			return false, ""
		}
	}
	rest := before[hash+1:]
	for i := 0; i < len(rest); i++ {
		if !isTagChar(rest[i]) {
			return false, ""
		}
	}
	return true, rest
}

func isTagChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-' || b == '/':
		return true
	default:
		return false
	}
}
