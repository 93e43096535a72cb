package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"lautenbacher.net/goadc/config"
)

// holdingWriter passes log output to a target, or holds it back while the
// terminal is owned by the viewer. Output is also copied to a log file
// when one is configured.
type holdingWriter struct {
	mu      sync.Mutex
	held    *bytes.Buffer
	target  io.Writer
	file    *os.File
	holding bool
}

// Write reports the first failing sink but still offers p to the others.
func (w *holdingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sinks := make([]io.Writer, 0, 2)
	switch {
	case w.holding:
		sinks = append(sinks, w.held)
	case w.target != nil:
		sinks = append(sinks, w.target)
	}
	if w.file != nil {
		sinks = append(sinks, w.file)
	}

	var err error
	for _, sink := range sinks {
		if _, serr := sink.Write(p); serr != nil && err == nil {
			err = serr
		}
	}
	return len(p), err
}

var (
	writer *holdingWriter
	level  = new(slog.LevelVar)
)

// Init installs the default slog logger. Logs go to stderr, since stdout
// carries the samples. With hold set, output is kept back until Release.
func Init(hold bool, cfg config.LoggingConfig) error {
	writer = &holdingWriter{
		held:    &bytes.Buffer{},
		target:  os.Stderr,
		holding: hold,
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		writer.file = file
	}

	SetLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetLevel changes the level of the installed logger. Unknown names
// select INFO.
func SetLevel(levelStr string) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// Release writes held output to target and switches to live logging.
func Release(target io.Writer) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.held.Len() > 0 {
		if _, err := target.Write(writer.held.Bytes()); err != nil {
			return err
		}
		writer.held.Reset()
	}
	writer.target = target
	writer.holding = false
	return nil
}

// Close flushes held output to stderr unless a log file already has a
// copy of it, and closes the log file.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var firstErr error
	if writer.held.Len() > 0 && writer.file == nil {
		if _, err := os.Stderr.Write(writer.held.Bytes()); err != nil {
			firstErr = err
		}
	}
	writer.held.Reset()
	if writer.file != nil {
		if err := writer.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		writer.file = nil
	}
	return firstErr
}
