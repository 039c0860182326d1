package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedKeys は値をログに出力しない属性キー。
var redactedKeys = map[string]struct{}{
	"password":      {},
	"access_token":  {},
	"authorization": {},
	"token":         {},
}

const redacted = "[REDACTED]"

// Setup は構造化ログ出力のslog.Loggerを生成して返す。
// 通常はINFOレベルのJSON出力、debugがtrueの場合はDEBUGレベルのテキスト出力になる。
// パスワードやトークンを表す属性の値は常にマスクする。
func Setup(w io.Writer, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: redact,
	}
	if debug {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupDefault はSetupで生成したロガーをグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, debug bool) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, debug))
}

func redact(groups []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}
