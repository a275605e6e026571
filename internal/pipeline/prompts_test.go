package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePrompts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPrompts_OverridesMergeOverDefaults(t *testing.T) {
	t.Parallel()

	path := writePrompts(t, `
stages:
  draft:
    system: "custom draft text"
  platform-optimize:
    system: "custom optimize text"
`)
	set, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}
	if got := set.System(StageDraft); got != "custom draft text" {
		t.Fatalf("draft system = %q", got)
	}
	if got := set.System(StageOptimize); got != "custom optimize text" {
		t.Fatalf("optimize system = %q", got)
	}
	// Untouched stages keep the built-in text.
	if got := set.System(StageChecklist); got != defaultSystemPrompts[StageChecklist] {
		t.Fatalf("checklist system changed: %q", got)
	}
}

func TestLoadPrompts_UnknownStageNameFails(t *testing.T) {
	t.Parallel()

	path := writePrompts(t, `
stages:
  drafft:
    system: "typo"
`)
	if _, err := LoadPrompts(path); err == nil || !strings.Contains(err.Error(), "drafft") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadPrompts_CompleteIsNotOverridable(t *testing.T) {
	t.Parallel()

	path := writePrompts(t, `
stages:
  complete:
    system: "nope"
`)
	if _, err := LoadPrompts(path); err == nil {
		t.Fatalf("expected error for terminal stage")
	}
}

func TestLoadPrompts_MissingFileFails(t *testing.T) {
	t.Parallel()

	if _, err := LoadPrompts(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPromptSet_NilFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	var set *PromptSet
	if got := set.System(StageDraft); got != defaultSystemPrompts[StageDraft] {
		t.Fatalf("nil set system = %q", got)
	}
}
