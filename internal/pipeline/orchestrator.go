package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Snapphil/gamesmith/internal/htmldoc"
	"github.com/Snapphil/gamesmith/internal/llm"
	"github.com/Snapphil/gamesmith/internal/patch"
	"github.com/Snapphil/gamesmith/internal/store"
)

// Transport is the streaming completion surface the orchestrator drives.
// Retry policy lives entirely behind it; the orchestrator never re-issues a
// failed call.
type Transport interface {
	StreamCompletion(ctx context.Context, req llm.Request, onDelta func(string), onStatus func(llm.Status)) (llm.Result, error)
}

// Callbacks surface run progress to the caller. Every field is optional.
type Callbacks struct {
	OnProgress func(stageLabel string, progress float64)
	OnStatus   func(status llm.Status)
	OnComplete func(document string, usage llm.Usage)
	OnError    func(err error)
}

// Notifier receives fire-and-forget run lifecycle notifications.
type Notifier interface {
	Notify(title, body string)
}

type slogNotifier struct {
	log *slog.Logger
}

func (n slogNotifier) Notify(title, body string) {
	n.log.Info("notification", "title", title, "body", body)
}

// ErrRunNotFound reports an id with no active run and no persisted record.
var ErrRunNotFound = errors.New("run not found")

// Options configures an Orchestrator.
type Options struct {
	Log       *slog.Logger
	Store     *store.Store
	Transport Transport
	Model     string

	// Prompts overrides the built-in stage prompts. Nil uses the defaults.
	Prompts *PromptSet

	// StageDelay is the pause between stages. Zero disables it.
	StageDelay time.Duration

	// Notifier receives lifecycle notifications. Nil logs them.
	Notifier Notifier

	// HasInspectionIssues decides whether the inspection summary warrants a
	// fix pass. Nil uses the default heuristic (more than one non-blank
	// line).
	HasInspectionIssues func(summary string) bool
}

// Orchestrator owns the active-run registry and walks each generation
// through the stage sequence.
type Orchestrator struct {
	log        *slog.Logger
	store      *store.Store
	transport  Transport
	model      string
	prompts    *PromptSet
	stageDelay time.Duration
	notifier   Notifier
	hasIssues  func(string) bool

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	id     string
	cancel context.CancelFunc
	doneCh chan struct{}
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("missing Store")
	}
	if opts.Transport == nil {
		return nil, errors.New("missing Transport")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("missing Model")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	prompts := opts.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = slogNotifier{log: log}
	}
	hasIssues := opts.HasInspectionIssues
	if hasIssues == nil {
		hasIssues = defaultHasIssues
	}
	return &Orchestrator{
		log:        log,
		store:      opts.Store,
		transport:  opts.Transport,
		model:      strings.TrimSpace(opts.Model),
		prompts:    prompts,
		stageDelay: opts.StageDelay,
		notifier:   notifier,
		hasIssues:  hasIssues,
		runs:       make(map[string]*run),
	}, nil
}

// defaultHasIssues mirrors the inspection heuristic: a summary of more than
// one non-blank line means there is something to fix. A bare "OK" (or any
// single line) does not trigger the fix stage.
func defaultHasIssues(summary string) bool {
	count := 0
	for _, line := range strings.Split(summary, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count > 1
}

// Start begins (or resumes) the generation for id. An empty id mints a new
// one. If a run for id is already active the call attaches to it and
// returns the same id without starting anything. The record is persisted
// before the first network call so a crash at any point leaves a resumable
// row behind.
func (o *Orchestrator) Start(ctx context.Context, id, topic string, cb Callbacks) (string, error) {
	if o == nil {
		return "", errors.New("nil orchestrator")
	}
	topic = strings.TrimSpace(topic)

	rec, err := o.prepareRecord(ctx, id, topic)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	if _, active := o.runs[rec.ID]; active {
		o.mu.Unlock()
		return rec.ID, nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{id: rec.ID, cancel: cancel, doneCh: make(chan struct{})}
	o.runs[rec.ID] = r
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.runs, rec.ID)
			o.mu.Unlock()
			close(r.doneCh)
		}()
		o.execute(runCtx, *rec, cb)
	}()
	return rec.ID, nil
}

// Run executes the generation synchronously. It shares the registry with
// Start so Stop and attach behave identically; an already-active id is an
// error here since there is nothing to return until that run finishes.
func (o *Orchestrator) Run(ctx context.Context, id, topic string, cb Callbacks) (string, llm.Usage, error) {
	rec, err := o.prepareRecord(ctx, id, strings.TrimSpace(topic))
	if err != nil {
		return "", llm.Usage{}, err
	}

	o.mu.Lock()
	if _, active := o.runs[rec.ID]; active {
		o.mu.Unlock()
		return "", llm.Usage{}, fmt.Errorf("generation %s is already running", rec.ID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{id: rec.ID, cancel: cancel, doneCh: make(chan struct{})}
	o.runs[rec.ID] = r
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.runs, rec.ID)
		o.mu.Unlock()
		close(r.doneCh)
	}()

	var (
		doc   string
		usage llm.Usage
		done  bool
	)
	inner := cb
	userComplete := cb.OnComplete
	inner.OnComplete = func(d string, u llm.Usage) {
		doc, usage, done = d, u, true
		if userComplete != nil {
			userComplete(d, u)
		}
	}
	var runErr error
	userError := cb.OnError
	inner.OnError = func(err error) {
		runErr = err
		if userError != nil {
			userError(err)
		}
	}

	o.execute(runCtx, *rec, inner)
	if runErr != nil {
		return "", usage, runErr
	}
	if !done {
		if err := runCtx.Err(); err != nil {
			return "", usage, err
		}
		return "", usage, errors.New("generation did not complete")
	}
	return doc, usage, nil
}

// prepareRecord loads the resumable record for id or creates a fresh one,
// persisting it before any network activity.
func (o *Orchestrator) prepareRecord(ctx context.Context, id, topic string) (*store.Record, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		rec, err := o.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			if err := o.store.SetRunning(ctx, id, true, ""); err != nil {
				return nil, err
			}
			rec.IsRunning = true
			rec.Failure = ""
			return rec, nil
		}
	}
	if topic == "" {
		return nil, errors.New("missing topic")
	}
	if id == "" {
		id = o.store.NewID()
	}
	rec := store.Record{
		ID:              id,
		InputTopic:      topic,
		Stage:           string(StageDraft),
		StartedAtUnixMs: time.Now().UnixMilli(),
		IsRunning:       true,
	}
	if err := o.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Stop cancels the active run for id and waits for it to unwind. The record
// stays in the store with isRunning=false so the generation can resume.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	o.mu.Lock()
	r, ok := o.runs[strings.TrimSpace(id)]
	o.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	r.cancel()
	select {
	case <-r.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Running reports whether a run for id is currently active in this process.
func (o *Orchestrator) Running(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[strings.TrimSpace(id)]
	return ok
}

// execute walks rec through the remaining stages. It persists after every
// stage and never retries; transport retries happen inside the engine.
func (o *Orchestrator) execute(ctx context.Context, rec store.Record, cb Callbacks) {
	// Persistence must survive the run context being cancelled by Stop.
	persistCtx := context.WithoutCancel(ctx)
	log := o.log.With("generation_id", rec.ID)

	stage := ParseStage(rec.Stage)
	total := runnableStageCount()

	for stage != StageComplete {
		idx := StageIndex(stage)
		log.Info("stage starting", "stage", string(stage), "index", idx+1, "of", total)
		if cb.OnProgress != nil {
			cb.OnProgress(stage.Label(), float64(idx+1)/float64(total))
		}
		o.notifier.Notify(stage.Label(), "Generation in progress")

		changed, err := o.runStage(ctx, &rec, stage, cb)
		if err != nil {
			if ctx.Err() != nil {
				// Cooperative stop: keep the record resumable, no callbacks.
				if perr := o.store.SetRunning(persistCtx, rec.ID, false, ""); perr != nil {
					log.Error("persist on stop failed", "error", perr)
				}
				log.Info("stage aborted", "stage", string(stage))
				return
			}
			failure := fmt.Sprintf("stage %s: %v", stage, err)
			if perr := o.store.SetRunning(persistCtx, rec.ID, false, failure); perr != nil {
				log.Error("persist on failure failed", "error", perr)
			}
			log.Error("stage failed", "stage", string(stage), "error", err)
			if cb.OnError != nil {
				cb.OnError(errors.New(failure))
			}
			o.notifier.Notify(stage.Label(), "Generation failed")
			return
		}
		if !changed {
			log.Info("stage skipped", "stage", string(stage))
		}

		stage = stageOrder[idx+1]
		rec.Stage = string(stage)
		if err := o.store.Save(persistCtx, rec); err != nil {
			failure := fmt.Sprintf("stage %s: persist: %v", stage, err)
			if perr := o.store.SetRunning(persistCtx, rec.ID, false, failure); perr != nil {
				log.Error("persist on failure failed", "error", perr)
			}
			log.Error("persist after stage failed", "error", err)
			if cb.OnError != nil {
				cb.OnError(errors.New(failure))
			}
			o.notifier.Notify(stage.Label(), "Generation failed")
			return
		}

		if stage != StageComplete && o.stageDelay > 0 {
			if err := sleepCtx(ctx, o.stageDelay); err != nil {
				if perr := o.store.SetRunning(persistCtx, rec.ID, false, ""); perr != nil {
					log.Error("persist on stop failed", "error", perr)
				}
				return
			}
		}
	}

	// Terminal success. The cleared running flag plus the terminal stage is
	// what makes the record non-resumable; the row itself stays so the
	// finished document remains addressable for later edits.
	rec.IsRunning = false
	if err := o.store.Save(persistCtx, rec); err != nil {
		log.Error("persist final state failed", "error", err)
	}
	usage := llm.Usage{
		InputTokens:  rec.TokensInput,
		OutputTokens: rec.TokensOutput,
		TotalTokens:  rec.TokensTotal,
	}
	log.Info("generation complete",
		"tokens_input", usage.InputTokens,
		"tokens_output", usage.OutputTokens,
		"tokens_total", usage.TotalTokens)
	if cb.OnComplete != nil {
		cb.OnComplete(rec.Document, usage)
	}
	o.notifier.Notify(StageComplete.Label(), "Generation completed")
}

// runStage executes one stage against rec, mutating its document, side
// artifact and token totals in place. It reports whether any network call
// was made.
func (o *Orchestrator) runStage(ctx context.Context, rec *store.Record, stage Stage, cb Callbacks) (bool, error) {
	var user string
	switch stage {
	case StageDraft:
		user = "Topic: " + rec.InputTopic

	case StageChecklist:
		user = "Current game:\n\n" + rec.Document

	case StageApply:
		user = "Improvement checklist:\n" + rec.SideArtifact + "\n\nCurrent game:\n\n" + rec.Document

	case StageLintFirst, StageLintSecond:
		issues := htmldoc.Lint(rec.Document)
		if len(issues) == 0 {
			// Clean document: no network call for this stage.
			return false, nil
		}
		user = "Problems found:\n" + htmldoc.FormatLintIssues(issues, 12) + "\n\nCurrent game:\n\n" + rec.Document

	case StageOptimize:
		user = "Current game:\n\n" + rec.Document

	case StageInspect:
		report := htmldoc.FormatInspectIssues(htmldoc.Inspect(rec.Document))
		user = "Automated findings:\n" + report + "\n\nCurrent game:\n\n" + rec.Document

	case StageFixIssues:
		if !o.hasIssues(rec.SideArtifact) {
			return false, nil
		}
		user = "Inspection report:\n" + rec.SideArtifact + "\n\nCurrent game:\n\n" + rec.Document

	default:
		return false, fmt.Errorf("unknown stage %q", stage)
	}

	req := llm.Request{
		Model: o.model,
		Messages: []llm.Message{
			{Role: "system", Content: o.prompts.System(stage)},
			{Role: "user", Content: user},
		},
	}
	res, err := o.transport.StreamCompletion(ctx, req, nil, cb.OnStatus)
	if err != nil {
		return true, err
	}

	switch stage {
	case StageChecklist, StageInspect:
		rec.SideArtifact = strings.TrimSpace(res.Text)
	default:
		rec.Document = htmldoc.Normalize(res.Text)
	}
	rec.TokensInput += res.Usage.InputTokens
	rec.TokensOutput += res.Usage.OutputTokens
	rec.TokensTotal += res.Usage.TotalTokens
	return true, nil
}

// Candidate is one independent full run produced by GenerateCandidates.
type Candidate struct {
	Document string
	Usage    llm.Usage
}

// GenerateCandidates runs two independent generations for the same topic
// and returns both results. Each candidate keeps its own record and token
// accounting; one failing cancels the other.
func (o *Orchestrator) GenerateCandidates(ctx context.Context, topic string, cb Callbacks) ([]Candidate, error) {
	candidates := make([]Candidate, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		g.Go(func() error {
			doc, usage, err := o.Run(gctx, "", topic, cb)
			if err != nil {
				return err
			}
			candidates[i] = Candidate{Document: doc, Usage: usage}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// EditDocument sends the line-numbered current document with an edit
// instruction, applies the returned patch directives, persists the result
// and returns the updated document.
func (o *Orchestrator) EditDocument(ctx context.Context, id, instruction string, cb Callbacks) (string, error) {
	id = strings.TrimSpace(id)
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrRunNotFound
	}

	req := llm.Request{
		Model: o.model,
		Messages: []llm.Message{
			{Role: "system", Content: editSystemPrompt},
			{Role: "user", Content: "Edit request: " + strings.TrimSpace(instruction) +
				"\n\nCurrent game with line numbers:\n\n" + htmldoc.NumberLines(rec.Document)},
		},
	}
	res, err := o.transport.StreamCompletion(ctx, req, nil, cb.OnStatus)
	if err != nil {
		return "", err
	}

	directives := patch.Parse(res.Text)
	rec.Document = patch.Apply(rec.Document, directives)
	rec.TokensInput += res.Usage.InputTokens
	rec.TokensOutput += res.Usage.OutputTokens
	rec.TokensTotal += res.Usage.TotalTokens
	if err := o.store.Save(ctx, *rec); err != nil {
		return "", err
	}
	o.log.Info("edit applied", "generation_id", id, "directives", len(directives))
	return rec.Document, nil
}

const editSystemPrompt = `You are an expert HTML5 game developer making a
surgical edit. The game is shown with "ln{N}, " line prefixes. Respond ONLY
with edit directives, one per line, in this exact grammar:
<ln{N}|+{TEXT}|>  inserts TEXT as a new line after line N (N=0 prepends)
<ln{N}|-{TEXT}|>  removes the first occurrence of TEXT within line N
To replace a line, remove its text and insert the replacement at the same N.
No other output.`

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
