package pipeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// defaultSystemPrompts are the built-in per-stage system texts. The document
// contract is shared by every generating stage: respond with a JSON object
// carrying the complete HTML in a "document" field.
var defaultSystemPrompts = map[Stage]string{
	StageDraft: `You are an expert HTML5 game developer. Build a complete,
self-contained mobile web mini-game for the topic the user gives you.
Everything lives in ONE html file: markup, CSS in a <style> block, and
JavaScript in <script> blocks. Requirements: viewport meta for mobile,
touch/pointer input only (no keyboard), a requestAnimationFrame game loop,
and a visible score or progress element. Respond with a JSON object:
{"document": "<the full html document>"} and nothing else.`,

	StageChecklist: `You are a game design reviewer. Given the current HTML
game, produce a short numbered checklist (max 8 items) of the most impactful
concrete improvements: gameplay feel, mobile usability, juice/polish, and
bugs you can spot. Plain text only, one item per line. Do NOT return HTML.`,

	StageApply: `You are an expert HTML5 game developer. Apply the given
improvement checklist to the current game. Keep it a single self-contained
html file. Respond with {"document": "<the full updated html document>"}
and nothing else.`,

	StageLintFirst: `You are a meticulous HTML/JS fixer. The game below has
the listed structural problems. Fix ALL of them without changing gameplay.
Respond with {"document": "<the full corrected html document>"} and nothing
else.`,

	StageOptimize: `You are a mobile web performance specialist. Optimize the
game for phones: touch targets at least 44px, no hover-only interactions,
prevent page scroll/zoom during play, keep the frame loop cheap, and make
the layout fill the viewport. Respond with {"document": "<the full
optimized html document>"} and nothing else.`,

	StageLintSecond: `You are a meticulous HTML/JS fixer. The game below has
the listed structural problems. Fix ALL of them without changing gameplay.
Respond with {"document": "<the full corrected html document>"} and nothing
else.`,

	StageInspect: `You are a QA inspector for mobile HTML5 games. Review the
game against the automated findings below and report remaining issues, one
per line, most severe first. If the game is ready, respond with exactly:
OK. Plain text only, do NOT return HTML.`,

	StageFixIssues: `You are an expert HTML5 game developer. Fix every issue
in the inspection report for the game below. Keep it a single self-contained
html file. Respond with {"document": "<the full fixed html document>"} and
nothing else.`,
}

// PromptSet resolves the system text for each stage.
type PromptSet struct {
	byStage map[Stage]string
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() *PromptSet {
	m := make(map[Stage]string, len(defaultSystemPrompts))
	for k, v := range defaultSystemPrompts {
		m[k] = v
	}
	return &PromptSet{byStage: m}
}

// System returns the system text for stage, falling back to the built-in
// text when the set carries no override.
func (p *PromptSet) System(stage Stage) string {
	if p != nil {
		if v, ok := p.byStage[stage]; ok {
			return v
		}
	}
	return defaultSystemPrompts[stage]
}

type promptsFile struct {
	Stages map[string]stagePrompt `yaml:"stages"`
}

type stagePrompt struct {
	System string `yaml:"system"`
}

// LoadPrompts reads a YAML prompt override file and merges it over the
// defaults. Stage names that are not part of the sequence are an error so a
// typo cannot silently leave a stage on its default text.
func LoadPrompts(path string) (*PromptSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var pf promptsFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}

	set := DefaultPrompts()

	// Stable iteration keeps error messages deterministic.
	names := make([]string, 0, len(pf.Stages))
	for name := range pf.Stages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stage := Stage(name)
		if StageIndex(stage) < 0 || stage == StageComplete {
			return nil, fmt.Errorf("prompts file: unknown stage %q", name)
		}
		if pf.Stages[name].System != "" {
			set.byStage[stage] = pf.Stages[name].System
		}
	}
	return set, nil
}
