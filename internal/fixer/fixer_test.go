package fixer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"ndkfix/internal/build"
	"ndkfix/internal/classify"
	"ndkfix/internal/dependency"
	"ndkfix/internal/toolchain"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeDependency struct {
	err            error
	artifactExists bool
	calls          int
}

func (f *fakeDependency) EnsureSource(context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeDependency) Artifact() dependency.Artifact {
	return dependency.Artifact{Path: "jni/external/libdobby.a", Exists: f.artifactExists}
}

type fakeToolchain struct {
	tc  toolchain.Toolchain
	err error
}

func (f *fakeToolchain) Locate() (toolchain.Toolchain, error) { return f.tc, f.err }

type fakeCompiler struct {
	ensureErr  error
	compileErr error
	ensures    int
	compiles   int
}

func (f *fakeCompiler) EnsureCompiled(context.Context, toolchain.Toolchain) error {
	f.ensures++
	return f.ensureErr
}

func (f *fakeCompiler) Compile(context.Context, toolchain.Toolchain) error {
	f.compiles++
	return f.compileErr
}

// fakeBuilder replays scripted outputs; the last one repeats forever.
// An empty string means success.
type fakeBuilder struct {
	outputs []string
	err     error
	indexes []int
	envs    [][]string
}

func (f *fakeBuilder) Run(_ context.Context, index int, env ...string) (build.Attempt, error) {
	f.indexes = append(f.indexes, index)
	f.envs = append(f.envs, env)
	if f.err != nil {
		return build.Attempt{Index: index, ExitCode: -1, Stderr: f.err.Error()}, f.err
	}
	out := f.outputs[len(f.outputs)-1]
	if len(f.indexes) <= len(f.outputs) {
		out = f.outputs[len(f.indexes)-1]
	}
	if out == "" {
		return build.Attempt{Index: index, Interpreter: "bash", Stdout: "BUILD SUCCESSFUL"}, nil
	}
	return build.Attempt{Index: index, Interpreter: "bash", Stderr: out, ExitCode: 1}, nil
}

func (f *fakeBuilder) builds() int { return len(f.indexes) }

type fakeAnalyzer struct {
	out   string
	err   error
	texts []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, text string) (string, error) {
	f.texts = append(f.texts, text)
	return f.out, f.err
}

type harness struct {
	dep      *fakeDependency
	tc       *fakeToolchain
	compiler *fakeCompiler
	builder  *fakeBuilder
	analyzer *fakeAnalyzer
}

func newHarness(outputs ...string) *harness {
	return &harness{
		dep:      &fakeDependency{artifactExists: true},
		tc:       &fakeToolchain{tc: toolchain.Toolchain{Home: "/opt/ndk", Source: "ANDROID_NDK_HOME"}},
		compiler: &fakeCompiler{},
		builder:  &fakeBuilder{outputs: outputs},
		analyzer: &fakeAnalyzer{},
	}
}

func (h *harness) coordinator(maxAttempts int) *Coordinator {
	c := New(Deps{
		Dependency: h.dep,
		Toolchain:  h.tc,
		Compiler:   h.compiler,
		Builder:    h.builder,
		Classifier: classify.Default("arm64-v8a", "dobby"),
		Analyzer:   h.analyzer,
	}, maxAttempts, quietLogger())
	c.newID = func() string { return "test-run" }
	return c
}

func TestRun_FirstBuildSucceeds(t *testing.T) {
	h := newHarness("")
	report, err := h.coordinator(3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if !report.Success() || report.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %v, want succeeded", report.Outcome)
	}
	if h.builder.builds() != 1 || report.Remedial != 0 {
		t.Errorf("builds = %d remedial = %d, want 1 and 0", h.builder.builds(), report.Remedial)
	}
	if h.compiler.ensures != 0 {
		t.Errorf("EnsureCompiled called %d times with artifact present", h.compiler.ensures)
	}
	if env := h.builder.envs[0]; len(env) != 1 || env[0] != "ANDROID_NDK_HOME=/opt/ndk" {
		t.Errorf("build env = %v, want toolchain env", env)
	}
	if report.RunID != "test-run" {
		t.Errorf("RunID = %q", report.RunID)
	}
}

func TestRun_Preconditions(t *testing.T) {
	t.Run("dependency unavailable", func(t *testing.T) {
		h := newHarness("")
		h.dep.err = dependency.ErrFetchToolMissing
		h.dep.artifactExists = false

		report, err := h.coordinator(3).Run(context.Background())
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("Run() error = %v, want ErrPrecondition", err)
		}
		if report.Outcome != OutcomePrecondition || report.Success() {
			t.Errorf("Outcome = %v", report.Outcome)
		}
		if h.builder.builds() != 0 || h.dep.calls != 1 {
			t.Errorf("builds = %d fetches = %d, want 0 and 1", h.builder.builds(), h.dep.calls)
		}
	})

	t.Run("toolchain missing", func(t *testing.T) {
		h := newHarness("")
		h.tc.err = toolchain.ErrNotFound

		report, err := h.coordinator(3).Run(context.Background())
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("Run() error = %v, want ErrPrecondition", err)
		}
		if report.Outcome != OutcomePrecondition || h.builder.builds() != 0 {
			t.Errorf("Outcome = %v builds = %d", report.Outcome, h.builder.builds())
		}
	})

	t.Run("initial compile fails", func(t *testing.T) {
		h := newHarness("")
		h.dep.artifactExists = false
		h.compiler.ensureErr = errors.New("cmake configuration failed")

		_, err := h.coordinator(3).Run(context.Background())
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("Run() error = %v, want ErrPrecondition", err)
		}
		if h.builder.builds() != 0 || h.compiler.ensures != 1 {
			t.Errorf("builds = %d ensures = %d", h.builder.builds(), h.compiler.ensures)
		}
	})

	t.Run("source only compiles first", func(t *testing.T) {
		h := newHarness("")
		h.dep.artifactExists = false

		report, err := h.coordinator(3).Run(context.Background())
		if err != nil || !report.Success() {
			t.Fatalf("Run() = %v, %v", report.Outcome, err)
		}
		if h.compiler.ensures != 1 {
			t.Errorf("EnsureCompiled called %d times, want 1", h.compiler.ensures)
		}
	})
}

func TestRun_RemedialActions(t *testing.T) {
	tests := []struct {
		name         string
		outputs      []string
		wantOutcome  Outcome
		wantBuilds   int
		wantCompiles int
		wantAnalyses int
		wantActions  []Action
	}{
		{
			name:        "architecture error rebuilds",
			outputs:     []string{"error: unsupported ABI arm64-v8a", ""},
			wantOutcome: OutcomeSucceeded,
			wantBuilds:  2,
			wantActions: []Action{ActionRebuild, ActionNone},
		},
		{
			name:         "dependency error recompiles then rebuilds",
			outputs:      []string{"ld: cannot find -ldobby", ""},
			wantOutcome:  OutcomeSucceeded,
			wantBuilds:   2,
			wantCompiles: 1,
			wantActions:  []Action{ActionRecompile, ActionNone},
		},
		{
			name:        "toolchain error rebuilds",
			outputs:     []string{"NDK not configured", ""},
			wantOutcome: OutcomeSucceeded,
			wantBuilds:  2,
			wantActions: []Action{ActionRebuild, ActionNone},
		},
		{
			name:         "architecture takes priority over dependency",
			outputs:      []string{"libdobby.a: incompatible with arm64-v8a", ""},
			wantOutcome:  OutcomeSucceeded,
			wantBuilds:   2,
			wantCompiles: 0,
			wantActions:  []Action{ActionRebuild, ActionNone},
		},
		{
			name:         "unknown error asks for analysis once and fails",
			outputs:      []string{"make: *** [all] Error 2"},
			wantOutcome:  OutcomeUnclassified,
			wantBuilds:   1,
			wantAnalyses: 1,
			wantActions:  []Action{ActionAnalyze},
		},
		{
			name:         "category may change between iterations",
			outputs:      []string{"ndk clang crashed", "undefined reference to DobbyHook", "arm64-v8a link error", ""},
			wantOutcome:  OutcomeSucceeded,
			wantBuilds:   4,
			wantCompiles: 1,
			wantActions:  []Action{ActionRebuild, ActionRecompile, ActionRebuild, ActionNone},
		},
		{
			name:         "recognized error then unknown error",
			outputs:      []string{"ndk missing", "segmentation fault"},
			wantOutcome:  OutcomeUnclassified,
			wantBuilds:   2,
			wantAnalyses: 1,
			wantActions:  []Action{ActionRebuild, ActionAnalyze},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.outputs...)
			report, err := h.coordinator(3).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() unexpected error: %v", err)
			}
			if report.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", report.Outcome, tt.wantOutcome)
			}
			if h.builder.builds() != tt.wantBuilds {
				t.Errorf("builds = %d, want %d", h.builder.builds(), tt.wantBuilds)
			}
			if h.compiler.compiles != tt.wantCompiles {
				t.Errorf("compiles = %d, want %d", h.compiler.compiles, tt.wantCompiles)
			}
			if len(h.analyzer.texts) != tt.wantAnalyses {
				t.Errorf("analyses = %d, want %d", len(h.analyzer.texts), tt.wantAnalyses)
			}
			if len(report.Steps) != len(tt.wantActions) {
				t.Fatalf("steps = %d, want %d", len(report.Steps), len(tt.wantActions))
			}
			for i, want := range tt.wantActions {
				if got := report.Steps[i].Action; got != want {
					t.Errorf("step %d action = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestRun_AnalysisOutcomeDoesNotChangeResult(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
	}{
		{"analysis succeeds", "Add -lc++_shared to LDFLAGS", nil},
		{"analysis disabled", "", errors.New("error analysis disabled: no API key configured")},
		{"analysis transport error", "", errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness("undefined symbol: __cxa_throw")
			h.analyzer.out, h.analyzer.err = tt.out, tt.err

			report, err := h.coordinator(3).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() unexpected error: %v", err)
			}
			if report.Success() || report.Outcome != OutcomeUnclassified {
				t.Errorf("Outcome = %v, want unclassified failure", report.Outcome)
			}
			if len(h.analyzer.texts) != 1 || h.analyzer.texts[0] != "undefined symbol: __cxa_throw" {
				t.Errorf("analyzer calls = %q, want exactly one with the error text", h.analyzer.texts)
			}
			if report.Diagnosis != tt.out {
				t.Errorf("Diagnosis = %q, want %q", report.Diagnosis, tt.out)
			}
		})
	}
}

func TestRun_CapIsNeverExceeded(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 5} {
		h := newHarness("NDK toolchain broken")
		report, err := h.coordinator(limit).Run(context.Background())
		if err != nil {
			t.Fatalf("limit %d: Run() unexpected error: %v", limit, err)
		}
		if report.Outcome != OutcomeExhausted {
			t.Errorf("limit %d: Outcome = %v, want exhausted", limit, report.Outcome)
		}
		if report.Remedial != limit {
			t.Errorf("limit %d: remedial iterations = %d", limit, report.Remedial)
		}
		if h.builder.builds() != limit+1 {
			t.Errorf("limit %d: builds = %d, want %d", limit, h.builder.builds(), limit+1)
		}
		if len(h.analyzer.texts) != 0 {
			t.Errorf("limit %d: analyzer must not run for recognized errors", limit)
		}
	}
}

func TestRun_DefaultCap(t *testing.T) {
	h := newHarness("arm64-v8a")
	c := h.coordinator(0)
	if c.MaxAttempts() != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts() = %d, want %d", c.MaxAttempts(), DefaultMaxAttempts)
	}
	report, _ := c.Run(context.Background())
	if h.builder.builds() != DefaultMaxAttempts+1 || report.Outcome != OutcomeExhausted {
		t.Errorf("builds = %d outcome = %v", h.builder.builds(), report.Outcome)
	}
	if got := h.builder.indexes; len(got) != 4 || got[0] != 0 || got[3] != 3 {
		t.Errorf("attempt indexes = %v, want 0..3", got)
	}
}

func TestRun_RecompileFailureAborts(t *testing.T) {
	h := newHarness("libdobby.a: file format not recognized")
	h.compiler.compileErr = errors.New("cmake build failed")

	report, err := h.coordinator(3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if report.Outcome != OutcomeRecompileFailed {
		t.Errorf("Outcome = %v, want recompilation failed", report.Outcome)
	}
	if h.builder.builds() != 1 || h.compiler.compiles != 1 {
		t.Errorf("builds = %d compiles = %d, want 1 and 1", h.builder.builds(), h.compiler.compiles)
	}
}

func TestRun_NoInterpreterIsClassified(t *testing.T) {
	h := newHarness("")
	h.builder.err = build.ErrNoInterpreter

	report, err := h.coordinator(3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if report.Outcome != OutcomeUnclassified || len(h.analyzer.texts) != 1 {
		t.Errorf("Outcome = %v analyses = %d", report.Outcome, len(h.analyzer.texts))
	}
}

func TestRun_BuildStartFailureAborts(t *testing.T) {
	h := newHarness("")
	h.builder.err = errors.New("permission denied")

	report, err := h.coordinator(3).Run(context.Background())
	if err == nil {
		t.Fatal("Run() expected error")
	}
	if report.Outcome != OutcomeAborted {
		t.Errorf("Outcome = %v, want aborted", report.Outcome)
	}
}

func TestReport_Render(t *testing.T) {
	h := newHarness("dobby.h not found", "")
	report, err := h.coordinator(3).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	report.Render(&buf)
	out := buf.String()
	for _, want := range []string{"INTERPRETER", "dependency", "recompile + rebuild", "test-run", "succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() output missing %q:\n%s", want, out)
		}
	}
	if last, ok := report.LastAttempt(); !ok || !last.Succeeded() {
		t.Errorf("LastAttempt() = %+v, %v", last, ok)
	}
	if report.Builds() != 2 {
		t.Errorf("Builds() = %d, want 2", report.Builds())
	}
}
