// Package htmldoc turns tolerant, ambiguous model output into a canonical
// single-file HTML document and runs local structural checks against it.
package htmldoc

import (
	"encoding/json"
	"regexp"
	"strings"
)

// parseKind is the closed set of shapes Normalize recognizes in raw model
// output. Keeping this a tagged set (instead of speculative field access)
// makes the fallback chain explicit and testable.
type parseKind int

const (
	parseUnrecognized parseKind = iota
	parseJSONDocument
	parseRawRootTag
	parseFencedBlock
)

type parseResult struct {
	kind parseKind
	doc  string
}

var (
	codeFencePattern = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*|\\s*```\\s*$")
	docTypePattern   = regexp.MustCompile(`(?is)<!doctype\s+html[^>]*>.*?</html\s*>`)
	htmlTagPattern   = regexp.MustCompile(`(?is)<html[^>]*>.*?</html\s*>`)
)

// Normalize converts accumulated raw model output into the canonical document
// string. It never fails: when no strategy recognizes the input, the trimmed
// input itself is returned so downstream stages always receive something.
//
// Strategies, first match wins:
//  1. the trimmed input is a JSON object with a string "document" field
//     (the primary response contract)
//  2. the first '{' .. last '}' slice parses the same way
//  3. a raw root element (<!doctype html> .. </html>, or <html> .. </html>)
//     appears verbatim in the text
//  4. otherwise strip code fences and trim
//
// Candidates from 1 and 2 additionally go through a double-unescape check,
// because some transports JSON-escape the already-escaped model payload once
// more.
func Normalize(raw string) string {
	res := classify(raw)
	switch res.kind {
	case parseJSONDocument:
		return undoubleEscape(res.doc)
	case parseRawRootTag, parseFencedBlock:
		return res.doc
	default:
		return strings.TrimSpace(raw)
	}
}

func classify(raw string) parseResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return parseResult{kind: parseUnrecognized}
	}

	if doc, ok := documentField(trimmed); ok {
		return parseResult{kind: parseJSONDocument, doc: doc}
	}

	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		if doc, ok := documentField(trimmed[start : end+1]); ok {
			return parseResult{kind: parseJSONDocument, doc: doc}
		}
	}

	if doc, ok := rootElement(trimmed); ok {
		return parseResult{kind: parseRawRootTag, doc: doc}
	}

	stripped := strings.TrimSpace(codeFencePattern.ReplaceAllString(trimmed, ""))
	if stripped != trimmed && stripped != "" {
		return parseResult{kind: parseFencedBlock, doc: stripped}
	}
	return parseResult{kind: parseUnrecognized}
}

// documentField reports the string "document" field of a JSON object, when
// the candidate is exactly that shape.
func documentField(candidate string) (string, bool) {
	var payload struct {
		Document *string `json:"document"`
	}
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return "", false
	}
	if payload.Document == nil {
		return "", false
	}
	return *payload.Document, true
}

// rootElement extracts a verbatim HTML root element from surrounding prose.
// Covers models that ignore the JSON contract and emit the document directly.
func rootElement(text string) (string, bool) {
	text = codeFencePattern.ReplaceAllString(text, "")
	if m := docTypePattern.FindString(text); m != "" {
		return m, true
	}
	if m := htmlTagPattern.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

// undoubleEscape repairs documents that were JSON-escaped twice (once by the
// model, once by the transport). The repaired result is accepted only when it
// independently looks like a document; otherwise the candidate is kept as-is,
// which guards against over-correcting text that merely contains quote
// characters.
func undoubleEscape(candidate string) string {
	if !looksDoubleEscaped(candidate) {
		return candidate
	}
	var repaired string
	if err := json.Unmarshal([]byte(`"`+candidate+`"`), &repaired); err != nil {
		return candidate
	}
	if !HasRootMarkers(repaired) {
		return candidate
	}
	return repaired
}

func looksDoubleEscaped(s string) bool {
	if strings.Contains(s, `\"`) {
		return true
	}
	// Literal backslash-n with no real newlines anywhere is the usual
	// signature of a twice-escaped payload.
	return strings.Contains(s, `\n`) && !strings.Contains(s, "\n")
}

// HasRootMarkers reports whether the string carries the expected document
// root declaration and closing tag.
func HasRootMarkers(doc string) bool {
	lower := strings.ToLower(doc)
	hasOpen := strings.Contains(lower, "<!doctype html") || strings.Contains(lower, "<html")
	return hasOpen && strings.Contains(lower, "</html>")
}
