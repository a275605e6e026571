package htmldoc

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity buckets inspection findings. Errors block finalization hints;
// warnings are advisory.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// InspectIssue is one functional/mobile-readiness finding.
type InspectIssue struct {
	Name     string
	Detail   string
	Hint     string
	Severity Severity
}

var (
	viewportPattern  = regexp.MustCompile(`(?i)<meta\s+name=["']viewport["']`)
	touchPattern     = regexp.MustCompile(`addEventListener\(\s*['"](touchstart|touchmove|touchend|pointerdown|pointermove|pointerup)['"]`)
	keyboardPattern  = regexp.MustCompile(`(?i)\b(WASD|arrow keys|Arrow(?:Left|Right|Up|Down)|KeyW|KeyA|KeyS|KeyD)\b`)
	rafPattern       = regexp.MustCompile(`requestAnimationFrame\s*\(`)
	audioDataPattern = regexp.MustCompile(`(?i)data:audio/wav;base64`)
	canvasPattern    = regexp.MustCompile(`<canvas\b`)
	gameIDPattern    = regexp.MustCompile(`id\s*=\s*['"]game['"]`)
	buttonIDPattern  = regexp.MustCompile(`(?i)id\s*=\s*["'](restart|start|pause|menu)["']`)
	collisionPattern = regexp.MustCompile(`(?i)collision|intersect|hitTest`)
	scriptOpenRe     = regexp.MustCompile(`(?i)<\s*script\b`)
	scriptCloseRe    = regexp.MustCompile(`(?i)</\s*script\s*>`)
)

// Inspect runs the local functional checks that feed the final-inspection
// stage: touch readiness, a running game loop, wired-up buttons, and a few
// known load-failure patterns. The findings are heuristics for the model, not
// hard validation.
func Inspect(document string) []InspectIssue {
	var issues []InspectIssue
	add := func(name, detail, hint string, sev Severity) {
		issues = append(issues, InspectIssue{Name: name, Detail: detail, Hint: hint, Severity: sev})
	}

	if !viewportPattern.MatchString(document) {
		add("viewport_meta_missing",
			"No viewport meta for mobile.",
			`Add: <meta name="viewport" content="width=device-width,initial-scale=1,viewport-fit=cover,user-scalable=no">`,
			SeverityError)
	}
	if !touchPattern.MatchString(document) {
		add("touch_controls_missing",
			"No touch or pointer event handlers detected.",
			"Add touch/pointer event handlers or on-screen controls for mobile.",
			SeverityError)
	}
	if keyboardPattern.MatchString(document) {
		add("keyboard_instructions_present",
			"UI or code references keyboard controls.",
			"Update UI text to reflect touch controls, map keyboard to touch as fallback.",
			SeverityWarn)
	}
	if !rafPattern.MatchString(document) {
		add("no_game_loop",
			"No requestAnimationFrame game loop detected.",
			"Ensure there is a main loop to update and render the game each frame.",
			SeverityWarn)
	}
	if audioDataPattern.MatchString(document) {
		add("embedded_audio_data_uri",
			"Large base64 audio embedded can fail to load and bloat file.",
			"Prefer small SFX or remove embedded audio for MVP.",
			SeverityWarn)
	}
	if !canvasPattern.MatchString(document) && !gameIDPattern.MatchString(document) {
		add("no_game_surface",
			"No obvious game surface like <canvas> or #game container found.",
			"Add a canvas or a game container element.",
			SeverityWarn)
	}
	for _, m := range buttonIDPattern.FindAllStringSubmatch(document, -1) {
		id := strings.ToLower(m[1])
		handler := regexp.MustCompile(`document\.getElementById\(\s*['"]` + id + `['"]\s*\)\.addEventListener`)
		if !handler.MatchString(document) {
			add("button_no_handler",
				fmt.Sprintf("Button #%s lacks event listener.", id),
				fmt.Sprintf("Add: document.getElementById('%s').addEventListener('click', ...)", id),
				SeverityWarn)
		}
	}
	if canvasPattern.MatchString(document) && !collisionPattern.MatchString(document) {
		add("no_collision_logic",
			"No explicit collision or boundary checks detected.",
			"Add simple boundary or collision checks appropriate to the game.",
			SeverityWarn)
	}
	if opens, closes := len(scriptOpenRe.FindAllString(document, -1)), len(scriptCloseRe.FindAllString(document, -1)); opens != closes {
		add("unbalanced_script_tags",
			fmt.Sprintf("Script tags open=%d close=%d.", opens, closes),
			"Fix unbalanced <script> tags.",
			SeverityError)
	}

	return issues
}

// FormatInspectIssues renders inspection findings for a model prompt.
func FormatInspectIssues(issues []InspectIssue) string {
	if len(issues) == 0 {
		return "CHECK: OK\nNo general issues detected."
	}
	lines := []string{"CHECK: ISSUES"}
	for i, issue := range issues {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s: %s | Hint: %s",
			i+1, strings.ToUpper(string(issue.Severity)), issue.Name, issue.Detail, issue.Hint))
	}
	return strings.Join(lines, "\n")
}

// ErrorCount reports how many findings are severity error.
func ErrorCount(issues []InspectIssue) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}
