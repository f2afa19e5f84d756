package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options はログ出力の設定を表す。
type Options struct {
	// Level はdebug, info, warn, errorのいずれか。空の場合はinfo。
	Level string
	// File が指定された場合、ログを標準の出力先に加えてこのファイルへも追記する。
	File string
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	return newJSONLogger(w, slog.LevelInfo)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerが指定された場合はそのwriterに出力する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// Configure はOptionsに従ってグローバルロガーを設定し直す。
// ログファイルを開いた場合は返り値のCloserで閉じる。開いていない場合もnoopのCloserを返す。
func Configure(w io.Writer, opts Options) (io.Closer, error) {
	if w == nil {
		w = os.Stdout
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nopCloser{}, err
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closer = f
	}

	slog.SetDefault(newJSONLogger(w, level))
	return closer, nil
}

// ParseLevel はログレベル名をslog.Levelに変換する。大文字小文字は区別しない。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func newJSONLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
