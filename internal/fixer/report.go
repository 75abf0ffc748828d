package fixer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"ndkfix/internal/build"
	"ndkfix/internal/classify"
	"ndkfix/internal/toolchain"
)

// Outcome is how a run ended.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSucceeded
	// OutcomePrecondition: dependency or NDK unavailable before the first build.
	OutcomePrecondition
	// OutcomeRecompileFailed: a dependency failure could not be repaired.
	OutcomeRecompileFailed
	// OutcomeUnclassified: the error matched no category.
	OutcomeUnclassified
	// OutcomeExhausted: the remedial cap was reached.
	OutcomeExhausted
	// OutcomeAborted: the build script could not be started or the run was cancelled.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomePrecondition:
		return "precondition failed"
	case OutcomeRecompileFailed:
		return "recompilation failed"
	case OutcomeUnclassified:
		return "unclassified error"
	case OutcomeExhausted:
		return "attempts exhausted"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Action is the remedy chosen for a failed attempt.
type Action int

const (
	ActionNone Action = iota
	ActionRebuild
	ActionRecompile
	ActionAnalyze
)

func (a Action) String() string {
	switch a {
	case ActionRebuild:
		return "rebuild"
	case ActionRecompile:
		return "recompile + rebuild"
	case ActionAnalyze:
		return "analyze"
	default:
		return "-"
	}
}

// Step is one build attempt and what was done about it.
type Step struct {
	Attempt  build.Attempt
	Category classify.Category
	Action   Action
}

// Report describes a finished run.
type Report struct {
	RunID       string
	Toolchain   toolchain.Toolchain
	Steps       []Step
	Remedial    int
	MaxAttempts int
	Outcome     Outcome
	Reason      string
	// Diagnosis holds the analysis text for unclassified failures, if any.
	Diagnosis string
}

func (r *Report) finish(o Outcome, reason string) {
	r.Outcome = o
	r.Reason = reason
}

// Success reports whether the build ended up passing.
func (r *Report) Success() bool {
	return r.Outcome == OutcomeSucceeded
}

// Builds is the number of build invocations recorded.
func (r *Report) Builds() int {
	return len(r.Steps)
}

// LastAttempt returns the newest build attempt.
func (r *Report) LastAttempt() (build.Attempt, bool) {
	if len(r.Steps) == 0 {
		return build.Attempt{}, false
	}
	return r.Steps[len(r.Steps)-1].Attempt, true
}

// Render writes the attempt table.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Interpreter", "Exit", "Category", "Action", "Duration"})
	table.SetBorder(false)

	for _, s := range r.Steps {
		category := "-"
		if !s.Attempt.Succeeded() {
			category = s.Category.String()
		}
		interp := s.Attempt.Interpreter
		if interp == "" {
			interp = "-"
		}
		table.Append([]string{
			fmt.Sprintf("%d", s.Attempt.Index),
			interp,
			fmt.Sprintf("%d", s.Attempt.ExitCode),
			category,
			s.Action.String(),
			s.Attempt.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()

	fmt.Fprintf(w, "Run %s: %s", r.RunID, r.Outcome)
	if r.Reason != "" {
		fmt.Fprintf(w, " (%s)", strings.TrimSpace(r.Reason))
	}
	fmt.Fprintln(w)
}
