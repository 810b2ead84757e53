// Package models defines the domain types for Ansuz.
package models

import "time"

// TagEntry is one ranked tag candidate produced by extraction.
// Tag is always normalized: no leading '#', no surrounding quotes or
// whitespace, nested segments joined with '/'.
type TagEntry struct {
	Tag       string    `json:"tag"`
	Frequency int       `json:"frequency"`
	Score     float64   `json:"score,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
}

// NoteMetadata identifies one markdown file for wikilink completion.
// Instances are recreated wholesale on every cache refresh and never
// mutated in place.
type NoteMetadata struct {
	Filename     string    `json:"filename"`
	Title        string    `json:"title,omitempty"`
	Aliases      []string  `json:"aliases,omitempty"`
	FilePath     string    `json:"file_path"`
	RelativePath string    `json:"relative_path"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"mtime"`
	Backlinks    int       `json:"backlinks,omitempty"`
}

// LinkEntry is one ranked markdown-link target.
type LinkEntry struct {
	Target    string  `json:"target"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score,omitempty"`
}
