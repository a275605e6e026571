package htmldoc

import (
	"fmt"
	"strings"
)

// NumberLines renders the document with "ln{N}, " prefixes (1-based) so the
// model can address lines in patch directives.
func NumberLines(document string) string {
	lines := strings.Split(document, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "ln%d, %s", i+1, line)
	}
	return b.String()
}
