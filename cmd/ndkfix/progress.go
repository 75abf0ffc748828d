package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"ndkfix/internal/runner"
)

// spinnerRunner shows a spinner on w while a command runs.
type spinnerRunner struct {
	runner.Runner
	w io.Writer
}

func (s spinnerRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(s.w),
		progressbar.OptionSetDescription(cmd.String()),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	res, err := s.Runner.Run(ctx, cmd)
	close(done)
	bar.Finish()
	return res, err
}

// withSpinner wraps r when stderr is a terminal and log output is quiet.
func withSpinner(r runner.Runner, w io.Writer, verbose bool) runner.Runner {
	f, ok := w.(*os.File)
	if verbose || !ok || !term.IsTerminal(int(f.Fd())) {
		return r
	}
	return spinnerRunner{Runner: r, w: w}
}
