package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"stellarexporter/internal/config"
)

const (
	ansiReset   = "\x1b[0m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
	ansiGray    = "\x1b[90m"
)

// New builds the process logger from console/file sink settings.
// Params: cfg validated log config.
// Returns: logger, close callback releasing file sinks, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0, 2)
	closers := make([]io.Closer, 0, 1)

	if cfg.Console.Enabled {
		handler, err := newSinkHandler(consoleWriter(cfg.Console.Format), cfg.Console)
		if err != nil {
			return nil, nil, fmt.Errorf("log.console: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log.file: create dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		handler, err := newSinkHandler(rotator, cfg.File)
		if err != nil {
			_ = rotator.Close()
			return nil, nil, fmt.Errorf("log.file: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, rotator)
	}

	closeFn := func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closeFn, nil
	case 1:
		return slog.New(handlers[0]), closeFn, nil
	default:
		return slog.New(fanoutHandler(handlers)), closeFn, nil
	}
}

// newSinkHandler creates one slog handler for sink format/level.
func newSinkHandler(w io.Writer, sink config.LogSinkConfig) (slog.Handler, error) {
	level, err := parseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "line", "":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", sink.Format)
	}
}

// parseLevel maps config level names to slog levels.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", level)
	}
}

// consoleWriter returns stdout, colorized for line format on terminals.
func consoleWriter(format string) io.Writer {
	if strings.ToLower(strings.TrimSpace(format)) == "json" || !isTerminal(os.Stdout) {
		return os.Stdout
	}
	return &colorLineWriter{dst: os.Stdout}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// fanoutHandler forwards each record to every handler that accepts its level.
type fanoutHandler []slog.Handler

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(h))
	for idx, handler := range h {
		out[idx] = handler.WithAttrs(attrs)
	}
	return out
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(h))
	for idx, handler := range h {
		out[idx] = handler.WithGroup(name)
	}
	return out
}

var (
	levelToken = regexp.MustCompile(`\blevel=(DEBUG|INFO|WARN|ERROR)\b`)
	valueToken = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|\b\d{1,3}(?:\.\d{1,3}){3}\b|\b-?\d+(?:\.\d+)?\b`)
)

// colorLineWriter highlights slog text lines for terminals.
// The whole line takes the level color; quoted strings, IPv4 addresses and numbers get their own.
type colorLineWriter struct {
	dst io.Writer
}

func (w *colorLineWriter) Write(p []byte) (int, error) {
	line := string(p)
	match := levelToken.FindStringSubmatch(line)
	if match == nil {
		if _, err := io.WriteString(w.dst, line); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	base := levelColor(match[1])
	body, newline := strings.CutSuffix(line, "\n")
	colored := valueToken.ReplaceAllStringFunc(body, func(token string) string {
		return tokenColor(token) + token + ansiReset + base
	})

	var out strings.Builder
	out.Grow(len(colored) + 16)
	out.WriteString(base)
	out.WriteString(colored)
	out.WriteString(ansiReset)
	if newline {
		out.WriteByte('\n')
	}
	if _, err := io.WriteString(w.dst, out.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func levelColor(level string) string {
	switch level {
	case "DEBUG":
		return ansiGray
	case "WARN":
		return ansiMagenta
	case "ERROR":
		return ansiRed
	default:
		return ansiBlue
	}
}

func tokenColor(token string) string {
	switch {
	case strings.HasPrefix(token, `"`):
		return ansiGreen
	case strings.Count(token, ".") == 3:
		return ansiCyan
	default:
		return ansiYellow
	}
}
