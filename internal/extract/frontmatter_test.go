package extract

import (
	"reflect"
	"testing"
)

func TestScanFrontmatterScalars(t *testing.T) {
	lines := []string{
		"---",
		"title: My Note",
		`author: "Quoted Name"`,
		"---",
		"# Body",
	}
	got := scanFrontmatter(lines)
	if got == nil {
		t.Fatal("expected a parsed block")
	}
	if !reflect.DeepEqual(got["title"], []string{"My Note"}) {
		t.Errorf("title = %v", got["title"])
	}
	if !reflect.DeepEqual(got["author"], []string{"Quoted Name"}) {
		t.Errorf("author = %v", got["author"])
	}
}

func TestScanFrontmatterInlineList(t *testing.T) {
	lines := []string{
		"---",
		`tags: [alpha, "beta", 'gamma']`,
		"---",
	}
	got := scanFrontmatter(lines)
	if !reflect.DeepEqual(got["tags"], []string{"alpha", "beta", "gamma"}) {
		t.Errorf("tags = %v", got["tags"])
	}
}

func TestScanFrontmatterBlockList(t *testing.T) {
	lines := []string{
		"---",
		"tags:",
		"  - alpha",
		"  - beta",
		"title: After List",
		"---",
	}
	got := scanFrontmatter(lines)
	if !reflect.DeepEqual(got["tags"], []string{"alpha", "beta"}) {
		t.Errorf("tags = %v", got["tags"])
	}
	if !reflect.DeepEqual(got["title"], []string{"After List"}) {
		t.Errorf("title = %v", got["title"])
	}
}

func TestScanFrontmatterLeadingBlankLines(t *testing.T) {
	lines := []string{"", "  ", "---", "title: ok", "---"}
	got := scanFrontmatter(lines)
	if got == nil || len(got["title"]) != 1 {
		t.Errorf("blank lines before the block should be skipped: %v", got)
	}
}

func TestScanFrontmatterUnclosed(t *testing.T) {
	lines := []string{"---", "title: never closed", "# Body"}
	if got := scanFrontmatter(lines); got != nil {
		t.Errorf("unclosed block should yield nil, got %v", got)
	}
}

func TestScanFrontmatterAbsent(t *testing.T) {
	if got := scanFrontmatter([]string{"# Just a heading", "text"}); got != nil {
		t.Errorf("no delimiter should yield nil, got %v", got)
	}
	if got := scanFrontmatter(nil); got != nil {
		t.Errorf("empty input should yield nil, got %v", got)
	}
}

func TestScanFrontmatterLineCap(t *testing.T) {
	lines := []string{"---"}
	for i := 0; i < maxFrontmatterLines+5; i++ {
		lines = append(lines, "filler: x")
	}
	lines = append(lines, "---")
	if got := scanFrontmatter(lines); got != nil {
		t.Error("block closed past the line cap should be treated as unclosed")
	}
}
