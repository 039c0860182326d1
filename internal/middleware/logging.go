package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名。
const RequestIDHeader = "X-Request-ID"

// HTTPRecorder はリクエスト単位のメトリクス記録インターフェース。
// metrics.Collectorが実装する。
type HTTPRecorder interface {
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// LoggingOption はロギングミドルウェアのオプション。
type LoggingOption func(*loggingConfig)

type loggingConfig struct {
	recorder  HTTPRecorder
	skipPaths map[string]bool
}

// WithHTTPRecorder はリクエストごとのメトリクス記録先を設定する。
func WithHTTPRecorder(recorder HTTPRecorder) LoggingOption {
	return func(c *loggingConfig) {
		c.recorder = recorder
	}
}

// WithSkipPaths はログ出力しないパスを設定する。メトリクスは記録する。
func WithSkipPaths(paths ...string) LoggingOption {
	return func(c *loggingConfig) {
		for _, p := range paths {
			c.skipPaths[p] = true
		}
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、client_ip、user_agent、request_id、
// user_id（認証済みの場合）を含む。
func NewLoggingMiddleware(logger *slog.Logger, opts ...LoggingOption) func(next http.Handler) http.Handler {
	cfg := &loggingConfig{skipPaths: make(map[string]bool)}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			state := &requestState{requestID: requestID(r)}
			w.Header().Set(RequestIDHeader, state.requestID)
			ctx := context.WithValue(r.Context(), requestStateKey, state)

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			if cfg.recorder != nil {
				cfg.recorder.RecordHTTPRequest(r.Method, rec.statusCode, duration)
			}

			if cfg.skipPaths[r.URL.Path] {
				return
			}

			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.String("client_ip", ClientIP(r)),
				slog.String("user_agent", r.UserAgent()),
				slog.String("request_id", state.requestID),
			}

			// 認証済みの場合はユーザーIDを追加
			if state.hasUser {
				attrs = append(attrs, slog.Int64("user_id", state.userID))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}

// requestID は受信したX-Request-IDがUUIDであればそれを使い、なければ新規に採番する。
func requestID(r *http.Request) string {
	if v := r.Header.Get(RequestIDHeader); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}
