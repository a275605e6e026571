package htmldoc

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// LintIssue is one structural problem found by Lint, with enough position
// context to hand back to the model in a fix prompt.
type LintIssue struct {
	Message string
	Line    int
	Snippet string
}

// voidTags never take a closing tag.
var voidTags = map[string]struct{}{
	"area": {}, "base": {}, "br": {}, "col": {}, "embed": {}, "hr": {},
	"img": {}, "input": {}, "link": {}, "meta": {}, "param": {},
	"source": {}, "track": {}, "wbr": {}, "command": {}, "keygen": {},
	"menuitem": {},
}

var (
	commentPattern  = regexp.MustCompile(`<!--[\s\S]*?-->`)
	doctypeTop      = regexp.MustCompile(`(?i)^\s*<!doctype\s+html\s*>`)
	tagTokenPattern = regexp.MustCompile(`<\s*(/)?\s*([a-zA-Z][a-zA-Z0-9\-]*)\b[^>]*?>`)
)

// Lint runs the fast local structural check used to gate the syntax-lint
// stages: doctype present, single html/head/body, balanced script/style
// blocks, and a tag-stack pass over the markup with comments and
// script/style bodies scrubbed out. A clean result means the network call
// for the lint stage can be skipped entirely.
func Lint(document string) []LintIssue {
	var issues []LintIssue

	doc := codeFencePattern.ReplaceAllString(document, "")
	check := commentPattern.ReplaceAllString(doc, "")
	scrubbed := removeBlocks(removeBlocks(check, "script"), "style")
	lines := strings.Split(check, "\n")

	if !doctypeTop.MatchString(check) {
		snippet := ""
		if len(lines) > 0 {
			snippet = strings.TrimSpace(lines[0])
		}
		issues = append(issues, LintIssue{Message: "missing <!DOCTYPE html> at top", Line: 1, Snippet: snippet})
	}

	for _, tag := range []string{"html", "head", "body"} {
		open := regexp.MustCompile(`(?i)<\s*` + tag + `\b`)
		n := len(open.FindAllString(check, -1))
		switch {
		case n == 0:
			issues = append(issues, LintIssue{Message: fmt.Sprintf("missing <%s> tag", tag), Line: 1})
		case n > 1:
			issues = append(issues, LintIssue{Message: fmt.Sprintf("multiple <%s> tags found (%d)", tag, n), Line: 1})
		}
	}

	for _, tag := range []string{"script", "style"} {
		opens := len(regexp.MustCompile(`(?i)<\s*`+tag+`\b`).FindAllString(check, -1))
		closes := len(regexp.MustCompile(`(?i)</\s*`+tag+`\s*>`).FindAllString(check, -1))
		if opens != closes {
			issues = append(issues, LintIssue{
				Message: fmt.Sprintf("unbalanced <%s> tags (open=%d, close=%d)", tag, opens, closes),
				Line:    1,
			})
		}
	}

	issues = append(issues, lintTagStack(scrubbed, lines)...)
	return issues
}

type openTag struct {
	name string
	pos  int
}

// lintTagStack walks every tag token and pairs closing tags against a stack
// of open tags. Script/style bodies are already scrubbed so angle brackets
// inside inline code do not confuse the scan.
func lintTagStack(scrubbed string, lines []string) []LintIssue {
	starts := lineStarts(scrubbed)
	snippetAt := func(pos int) (int, string) {
		line := lineForPos(pos, starts)
		snippet := ""
		if line < len(lines) {
			snippet = strings.TrimSpace(lines[line])
		}
		return line + 1, snippet
	}

	var issues []LintIssue
	var stack []openTag
	for _, m := range tagTokenPattern.FindAllStringSubmatchIndex(scrubbed, -1) {
		closing := m[2] >= 0
		name := strings.ToLower(scrubbed[m[4]:m[5]])
		pos := m[0]
		token := scrubbed[m[0]:m[1]]

		if name == "!doctype" || strings.HasPrefix(name, "!") {
			continue
		}
		selfClosed := strings.HasSuffix(strings.TrimSpace(token), "/>")

		if !closing {
			if _, void := voidTags[name]; void || selfClosed {
				continue
			}
			stack = append(stack, openTag{name: name, pos: pos})
			continue
		}

		if _, void := voidTags[name]; void {
			line, snippet := snippetAt(pos)
			issues = append(issues, LintIssue{
				Message: fmt.Sprintf("unexpected closing tag </%s> for void element", name),
				Line:    line, Snippet: snippet,
			})
			continue
		}
		if len(stack) == 0 {
			line, snippet := snippetAt(pos)
			issues = append(issues, LintIssue{
				Message: fmt.Sprintf("unmatched closing tag </%s>", name),
				Line:    line, Snippet: snippet,
			})
			continue
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.name != name {
			line, snippet := snippetAt(pos)
			issues = append(issues, LintIssue{
				Message: fmt.Sprintf("mismatched closing tag </%s>; expected </%s>", name, top.name),
				Line:    line, Snippet: snippet,
			})
		}
	}

	for _, open := range stack {
		line, snippet := snippetAt(open.pos)
		issues = append(issues, LintIssue{
			Message: fmt.Sprintf("unclosed <%s> tag", open.name),
			Line:    line, Snippet: snippet,
		})
	}
	return issues
}

func removeBlocks(html, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `\b[\s\S]*?</` + tag + `\s*>`)
	return re.ReplaceAllString(html, "")
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i, r := range text {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineForPos(pos int, starts []int) int {
	idx := sort.Search(len(starts), func(i int) bool { return starts[i] > pos })
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// FormatLintIssues renders issues for inclusion in a model prompt, capped so
// a pathological document cannot blow up the context window.
func FormatLintIssues(issues []LintIssue, maxItems int) string {
	if maxItems <= 0 {
		maxItems = 12
	}
	var out []string
	for i, issue := range issues {
		if i >= maxItems {
			break
		}
		snippet := issue.Snippet
		if len(snippet) > 240 {
			snippet = snippet[:240] + "..."
		}
		out = append(out, fmt.Sprintf("%d. Line %d: %s | Snippet: %s", i+1, issue.Line, issue.Message, snippet))
	}
	if more := len(issues) - len(out); more > 0 {
		out = append(out, fmt.Sprintf("... and %d more", more))
	}
	return strings.Join(out, "\n")
}
