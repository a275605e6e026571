package htmldoc

import (
	"strings"
	"testing"
)

func TestInspect_CleanMobileDocument(t *testing.T) {
	t.Parallel()

	doc := `<!doctype html>
<html>
<head><meta name="viewport" content="width=device-width,initial-scale=1"></head>
<body>
<canvas id="game"></canvas>
<button id="restart">Restart</button>
<script>
document.getElementById('restart').addEventListener('click', reset);
window.addEventListener('touchstart', onTouch);
function tick() { checkCollision(); requestAnimationFrame(tick); }
requestAnimationFrame(tick);
</script>
</body>
</html>`
	issues := Inspect(doc)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
	if got := FormatInspectIssues(issues); !strings.Contains(got, "CHECK: OK") {
		t.Fatalf("clean report = %q", got)
	}
}

func TestInspect_FlagsMissingMobileEssentials(t *testing.T) {
	t.Parallel()

	doc := `<!doctype html>
<html>
<head></head>
<body><p>Use the arrow keys to move.</p></body>
</html>`
	issues := Inspect(doc)

	want := map[string]Severity{
		"viewport_meta_missing":         SeverityError,
		"touch_controls_missing":        SeverityError,
		"keyboard_instructions_present": SeverityWarn,
		"no_game_loop":                  SeverityWarn,
		"no_game_surface":               SeverityWarn,
	}
	for name, sev := range want {
		found := false
		for _, issue := range issues {
			if issue.Name == name {
				found = true
				if issue.Severity != sev {
					t.Errorf("%s severity = %s, want %s", name, issue.Severity, sev)
				}
			}
		}
		if !found {
			t.Errorf("issue %s not reported; got %+v", name, issues)
		}
	}
	if ErrorCount(issues) != 2 {
		t.Fatalf("ErrorCount = %d, want 2", ErrorCount(issues))
	}
}

func TestInspect_ButtonWithoutHandler(t *testing.T) {
	t.Parallel()

	doc := `<button id="start">Go</button>
<script>requestAnimationFrame(loop); addEventListener('pointerdown', f);</script>
<meta name="viewport" content="w"><canvas></canvas>
<script>collision()</script>`
	issues := Inspect(doc)
	found := false
	for _, issue := range issues {
		if issue.Name == "button_no_handler" && strings.Contains(issue.Detail, "#start") {
			found = true
		}
	}
	if !found {
		t.Fatalf("button_no_handler missing: %+v", issues)
	}
}

func TestInspect_UnbalancedScriptsAreErrors(t *testing.T) {
	t.Parallel()

	doc := `<meta name="viewport" content="w">
<canvas></canvas>
<script>addEventListener('touchstart', f); requestAnimationFrame(l); collision();`
	issues := Inspect(doc)
	found := false
	for _, issue := range issues {
		if issue.Name == "unbalanced_script_tags" && issue.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Fatalf("unbalanced_script_tags missing: %+v", issues)
	}
}
