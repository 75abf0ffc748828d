package main

import (
	"io"
	"os"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// setupLogging creates the run logger. Console output goes to w; when
// logPath is set every entry is also written, without colours, to that file.
// The returned func closes the log file.
func setupLogging(w io.Writer, verbose bool, logPath string) (*logrus.Logger, func(), error) {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: !verbose,
	})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if logPath == "" {
		return log, func() {}, nil
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	log.AddHook(lfshook.NewHook(logFile, &logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	}))
	return log, func() { logFile.Close() }, nil
}
