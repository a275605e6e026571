// Package patch implements the line-addressed edit protocol used for
// incremental document edits.
//
// The model is shown the current document with "ln{N}, " prefixes and asked
// to answer with directives only, one per line:
//
//	<ln{N}|+{TEXT}|>  insert TEXT as a new line immediately after line N
//	                  (N=0 inserts at the very top)
//	<ln{N}|-{TEXT}|>  remove the first occurrence of TEXT within line N
//	                  (N=0 is invalid for removal)
//
// Models emit stray commentary despite instructions, so anything that does
// not match the grammar exactly is ignored rather than failing the batch.
package patch

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Action discriminates the two directive kinds.
type Action string

const (
	ActionInsert Action = "insert"
	ActionRemove Action = "remove"
)

// Directive is one parsed edit instruction. A batch of directives is parsed
// from one model response, applied to one document snapshot, and discarded.
type Directive struct {
	Line   int
	Action Action
	Text   string
}

// directivePattern matches one full directive line. TEXT is greedy so pipes
// inside the payload do not terminate the match early.
var directivePattern = regexp.MustCompile(`^<ln(\d+)\|([+-])(.*)\|>$`)

// Parse tokenizes a model response line by line and returns the well-formed
// directives in order of appearance. Removals addressed at line 0 are
// semantically invalid and dropped like any other malformed line.
func Parse(response string) []Directive {
	var out []Directive
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		m := directivePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			continue
		}
		action := ActionInsert
		if m[2] == "-" {
			action = ActionRemove
		}
		if action == ActionRemove && n == 0 {
			continue
		}
		out = append(out, Directive{Line: n, Action: action, Text: m[3]})
	}
	return out
}

// Apply applies a directive batch to one document snapshot and returns the
// patched document.
//
// Directives are grouped by line number and applied from the highest line
// downward so that splicing at line N never invalidates the index of a
// not-yet-processed directive at a lower line. Within one line number,
// removals run before insertions so that the remove+insert pair a model emits
// to replace a line produces the intended net effect instead of the inserted
// line shifting the removal's target.
//
// Defensive cases follow the directive author's likely intent: an insertion
// beyond the end of the document appends, a removal whose text is not present
// in the target line is a no-op, and a line left empty by a removal is
// deleted (this is what turns remove+insert into a replacement).
func Apply(document string, directives []Directive) string {
	if len(directives) == 0 {
		return document
	}

	lines := strings.Split(document, "\n")

	ordered := make([]Directive, len(directives))
	copy(ordered, directives)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Line != ordered[j].Line {
			return ordered[i].Line > ordered[j].Line
		}
		return ordered[i].Action == ActionRemove && ordered[j].Action == ActionInsert
	})

	for i := 0; i < len(ordered); {
		line := ordered[i].Line
		j := i
		for j < len(ordered) && ordered[j].Line == line {
			j++
		}
		lines = applyAtLine(lines, line, ordered[i:j])
		i = j
	}

	return strings.Join(lines, "\n")
}

// applyAtLine applies all directives that share one line number. The group is
// already ordered removals-first by Apply.
func applyAtLine(lines []string, line int, group []Directive) []string {
	removedLine := false

	var inserts []Directive
	for _, d := range group {
		switch d.Action {
		case ActionRemove:
			if removedLine {
				continue
			}
			if line < 1 || line > len(lines) {
				continue
			}
			target := lines[line-1]
			idx := strings.Index(target, d.Text)
			if idx < 0 {
				continue
			}
			target = target[:idx] + target[idx+len(d.Text):]
			if strings.TrimSpace(target) == "" {
				lines = append(lines[:line-1], lines[line:]...)
				removedLine = true
			} else {
				lines[line-1] = target
			}
		case ActionInsert:
			inserts = append(inserts, d)
		}
	}

	// Insert position is "after line N" against the snapshot the directives
	// were authored for. When the removal above deleted line N, everything
	// after it has shifted up one slot, so the insert takes the deleted
	// line's place.
	pos := line
	if removedLine {
		pos = line - 1
	}
	if pos > len(lines) {
		pos = len(lines)
	}
	if pos < 0 {
		pos = 0
	}

	// Reverse order keeps multiple insertions at the same line in the order
	// they appeared in the response.
	for k := len(inserts) - 1; k >= 0; k-- {
		lines = append(lines[:pos], append([]string{inserts[k].Text}, lines[pos:]...)...)
	}
	return lines
}
