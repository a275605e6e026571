package patch

import (
	"fmt"
	"strings"
	"testing"
)

func TestParse_IgnoresCommentaryAndMalformedLines(t *testing.T) {
	t.Parallel()

	response := strings.Join([]string{
		"Sure, here are the edits:",
		"<ln3|-old score text|>",
		"<ln3|+<div id=\"score\">0</div>|>",
		"<ln0|+<!doctype html>|>",
		"<ln|+missing number|>",
		"<ln2|*bad action|>",
		"<ln0|-removal at zero is invalid|>",
		"  <ln7|+leading whitespace is tolerated|>  ",
		"done!",
	}, "\n")

	got := Parse(response)
	if len(got) != 4 {
		t.Fatalf("Parse returned %d directives, want 4: %+v", len(got), got)
	}
	if got[0] != (Directive{Line: 3, Action: ActionRemove, Text: "old score text"}) {
		t.Fatalf("directive[0] = %+v", got[0])
	}
	if got[1].Action != ActionInsert || got[1].Line != 3 {
		t.Fatalf("directive[1] = %+v", got[1])
	}
	if got[1].Text != `<div id="score">0</div>` {
		t.Fatalf("directive[1].Text = %q", got[1].Text)
	}
	if got[2] != (Directive{Line: 0, Action: ActionInsert, Text: "<!doctype html>"}) {
		t.Fatalf("directive[2] = %+v", got[2])
	}
	if got[3].Line != 7 {
		t.Fatalf("directive[3] = %+v", got[3])
	}
}

func TestParse_TextMayContainPipes(t *testing.T) {
	t.Parallel()

	got := Parse("<ln5|+const ok = a || b;|>")
	if len(got) != 1 {
		t.Fatalf("Parse returned %d directives, want 1", len(got))
	}
	if got[0].Text != "const ok = a || b;" {
		t.Fatalf("Text = %q", got[0].Text)
	}
}

func tenLineDoc() string {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = fmt.Sprintf("line%d", i+1)
	}
	lines[2] = "oldtext"
	return strings.Join(lines, "\n")
}

func TestApply_ReplaceAndPrepend(t *testing.T) {
	t.Parallel()

	doc := tenLineDoc()
	directives := Parse("<ln3|-oldtext|>\n<ln3|+newtext|>\n<ln0|+<!doctype html>|>")

	got := Apply(doc, directives)
	lines := strings.Split(got, "\n")
	if len(lines) != 11 {
		t.Fatalf("patched document has %d lines, want 11:\n%s", len(lines), got)
	}
	if lines[0] != "<!doctype html>" {
		t.Fatalf("line 1 = %q, want prepended doctype", lines[0])
	}
	// Original line 3 replaced in place (now line 4 after the prepend).
	if lines[3] != "newtext" {
		t.Fatalf("line 4 = %q, want %q", lines[3], "newtext")
	}
	if strings.Contains(got, "oldtext") {
		t.Fatalf("oldtext still present:\n%s", got)
	}
}

func TestApply_OrderInvariance(t *testing.T) {
	t.Parallel()

	doc := tenLineDoc()
	forward := Parse("<ln3|-oldtext|>\n<ln3|+newtext|>\n<ln0|+top|>")
	backward := Parse("<ln0|+top|>\n<ln3|+newtext|>\n<ln3|-oldtext|>")

	a := Apply(doc, forward)
	b := Apply(doc, backward)
	if a != b {
		t.Fatalf("apply is order dependent:\n--- forward\n%s\n--- backward\n%s", a, b)
	}
}

func TestApply_InsertBeyondEndAppends(t *testing.T) {
	t.Parallel()

	doc := "a\nb\nc"
	got := Apply(doc, []Directive{{Line: 99, Action: ActionInsert, Text: "tail"}})
	if got != "a\nb\nc\ntail" {
		t.Fatalf("got %q", got)
	}
}

func TestApply_InsertAtZeroPrepends(t *testing.T) {
	t.Parallel()

	got := Apply("a\nb", []Directive{{Line: 0, Action: ActionInsert, Text: "top"}})
	if got != "top\na\nb" {
		t.Fatalf("got %q", got)
	}
}

func TestApply_RemoveSubstringKeepsRestOfLine(t *testing.T) {
	t.Parallel()

	doc := "keep this and drop that here"
	got := Apply(doc, []Directive{{Line: 1, Action: ActionRemove, Text: "drop that "}})
	if got != "keep this and here" {
		t.Fatalf("got %q", got)
	}
}

func TestApply_RemoveMissingTextIsNoOp(t *testing.T) {
	t.Parallel()

	doc := "a\nb\nc"
	got := Apply(doc, []Directive{{Line: 2, Action: ActionRemove, Text: "zzz"}})
	if got != doc {
		t.Fatalf("got %q, want unchanged document", got)
	}
}

func TestApply_HighLineFirstKeepsLowIndexesValid(t *testing.T) {
	t.Parallel()

	doc := "one\ntwo\nthree\nfour"
	directives := []Directive{
		{Line: 1, Action: ActionInsert, Text: "after-one"},
		{Line: 4, Action: ActionRemove, Text: "four"},
		{Line: 2, Action: ActionInsert, Text: "after-two"},
	}
	got := Apply(doc, directives)
	want := "one\nafter-one\ntwo\nafter-two\nthree"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApply_MultipleInsertsSameLineKeepResponseOrder(t *testing.T) {
	t.Parallel()

	doc := "a\nb"
	directives := []Directive{
		{Line: 1, Action: ActionInsert, Text: "first"},
		{Line: 1, Action: ActionInsert, Text: "second"},
	}
	got := Apply(doc, directives)
	if got != "a\nfirst\nsecond\nb" {
		t.Fatalf("got %q", got)
	}
}

func TestApply_EmptyBatchReturnsDocumentUnchanged(t *testing.T) {
	t.Parallel()

	doc := "a\nb"
	if got := Apply(doc, nil); got != doc {
		t.Fatalf("got %q", got)
	}
}
