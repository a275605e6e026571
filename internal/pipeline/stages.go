// Package pipeline drives a generation through its fixed stage sequence,
// persisting progress after every stage so an interrupted run can resume.
package pipeline

import "strings"

// Stage identifies one step of the generation sequence. The persisted value
// is the stage ABOUT to run, so resume re-enters it rather than skipping it.
type Stage string

const (
	StageDraft      Stage = "draft"
	StageChecklist  Stage = "improvement-checklist"
	StageApply      Stage = "apply-checklist"
	StageLintFirst  Stage = "syntax-lint-1"
	StageOptimize   Stage = "platform-optimize"
	StageLintSecond Stage = "syntax-lint-2"
	StageInspect    Stage = "final-inspection"
	StageFixIssues  Stage = "fix-inspection-issues"
	StageComplete   Stage = "complete"
)

// stageOrder is the full sequence; StageComplete is a terminal marker, not a
// runnable stage.
var stageOrder = []Stage{
	StageDraft,
	StageChecklist,
	StageApply,
	StageLintFirst,
	StageOptimize,
	StageLintSecond,
	StageInspect,
	StageFixIssues,
	StageComplete,
}

var stageLabels = map[Stage]string{
	StageDraft:      "Drafting game",
	StageChecklist:  "Planning improvements",
	StageApply:      "Applying improvements",
	StageLintFirst:  "Checking syntax",
	StageOptimize:   "Optimizing for mobile",
	StageLintSecond: "Re-checking syntax",
	StageInspect:    "Final inspection",
	StageFixIssues:  "Fixing inspection issues",
	StageComplete:   "Complete",
}

// StageIndex returns the position of s in the sequence, or -1 when s is not
// a known stage.
func StageIndex(s Stage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStage maps a persisted stage string back to a Stage, defaulting to
// StageDraft for empty or unknown values so stale records stay loadable.
func ParseStage(raw string) Stage {
	s := Stage(strings.TrimSpace(raw))
	if StageIndex(s) < 0 {
		return StageDraft
	}
	return s
}

// Label returns the human-readable progress label for s.
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// runnableStageCount excludes the terminal marker.
func runnableStageCount() int {
	return len(stageOrder) - 1
}
