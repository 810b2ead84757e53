package complete

// Length caps protecting the client UI from oversized renders.
const (
	maxLabelLen         = 200
	maxDetailLen        = 500
	maxInsertTextLen    = 200
	maxDocumentationLen = 1000
)

// sanitize truncates oversized item fields in place and returns the item.
func sanitize(item Item) Item {
	item.Label = truncate(item.Label, maxLabelLen)
	item.Detail = truncate(item.Detail, maxDetailLen)
	item.InsertText = truncate(item.InsertText, maxInsertTextLen)
	item.FilterText = truncate(item.FilterText, maxInsertTextLen)
	item.Documentation = truncate(item.Documentation, maxDocumentationLen)
	return item
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary.
	for max > 0 && s[max]&0xC0 == 0x80 {
		max--
	}
	return s[:max]
}
