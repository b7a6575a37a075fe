// Package logging builds the logrus logger shared by every atlasreg package.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"

	"atlasreg/pkg/config"
)

// New creates a logger writing to console (stderr when nil) and, when
// cfg.File is set, to a rotating log file. The returned function closes the
// file.
func New(cfg config.Logging, console io.Writer) (*logrus.Logger, func(), error) {
	if console == nil {
		console = os.Stderr
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	l := logrus.New()
	l.SetLevel(level)
	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	cleanup := func() {}
	out := console
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  cfg.MaxSize, // megabytes
			MaxAge:   cfg.MaxAge,  // days
		}
		out = io.MultiWriter(console, rotating)
		cleanup = func() { _ = rotating.Close() }
	}
	l.SetOutput(out)

	return l, cleanup, nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
