package runner

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
)

func TestExec_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}

	tests := []struct {
		name       string
		cmd        Command
		wantStdout string
		wantStderr string
		wantCode   int
		wantErr    error
	}{
		{
			name:       "success captures stdout",
			cmd:        Command{Name: "sh", Args: []string{"-c", "echo hello"}},
			wantStdout: "hello",
		},
		{
			name:       "non-zero exit keeps streams",
			cmd:        Command{Name: "sh", Args: []string{"-c", "echo out; echo boom >&2; exit 3"}},
			wantStdout: "out",
			wantStderr: "boom",
			wantCode:   3,
			wantErr:    ErrExit,
		},
		{
			name:       "env is appended",
			cmd:        Command{Name: "sh", Args: []string{"-c", "echo $NDKFIX_TEST_VAR"}, Env: []string{"NDKFIX_TEST_VAR=abc"}},
			wantStdout: "abc",
		},
		{
			name:     "missing executable",
			cmd:      Command{Name: "ndkfix-definitely-not-installed"},
			wantCode: -1,
			wantErr:  ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Exec{}.Run(context.Background(), tt.cmd)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Run() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if got := strings.TrimSpace(res.Stdout); got != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", got, tt.wantStdout)
			}
			if got := strings.TrimSpace(res.Stderr); got != tt.wantStderr {
				t.Errorf("Stderr = %q, want %q", got, tt.wantStderr)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantCode)
			}
		})
	}
}

func TestExec_RunInDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses pwd")
	}
	dir := t.TempDir()
	res, err := Exec{}.Run(context.Background(), Command{Name: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if !strings.Contains(res.Stdout, strings.TrimPrefix(dir, "/private")) {
		t.Errorf("Stdout = %q, want to contain %q", res.Stdout, dir)
	}
}

func TestExec_LookPathMissing(t *testing.T) {
	_, err := Exec{}.LookPath("ndkfix-definitely-not-installed")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("LookPath() error = %v, want ErrNotFound", err)
	}
}

func TestMock(t *testing.T) {
	m := NewMock("git")
	m.RunFunc = func(cmd Command) (Result, error) {
		if cmd.Name == "cmake" {
			return Fail("cmake", 1, "", "configure failed")
		}
		return Result{Stdout: "ok"}, nil
	}

	if _, err := m.Run(context.Background(), Command{Name: "git", Args: []string{"clone"}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing tool error = %v, want ErrNotFound", err)
	}
	res, err := m.Run(context.Background(), Command{Name: "cmake", Args: []string{"-DANDROID_ABI=arm64-v8a"}})
	if !errors.Is(err, ErrExit) || res.ExitCode != 1 || res.Stderr != "configure failed" {
		t.Errorf("cmake result = %+v, %v", res, err)
	}
	if res, err := m.Run(context.Background(), Command{Name: "bash"}); err != nil || res.Stdout != "ok" {
		t.Errorf("bash result = %+v, %v", res, err)
	}

	if len(m.Calls) != 3 {
		t.Fatalf("recorded %d calls, want 3", len(m.Calls))
	}
	if got := m.CallsTo("cmake"); len(got) != 1 || !got[0].HasArg("-DANDROID_ABI") {
		t.Errorf("CallsTo(cmake) = %+v", got)
	}
	if _, err := m.LookPath("git"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookPath(git) error = %v, want ErrNotFound", err)
	}
	if _, err := m.LookPath("cmake"); err != nil {
		t.Errorf("LookPath(cmake) unexpected error: %v", err)
	}
}

func TestResult_Combined(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Stdout: "a"}, "a"},
		{Result{Stderr: "b"}, "b"},
		{Result{Stdout: "a", Stderr: "b"}, "a\nb"},
	}
	for _, tt := range tests {
		if got := tt.res.Combined(); got != tt.want {
			t.Errorf("Combined() = %q, want %q", got, tt.want)
		}
	}
}
