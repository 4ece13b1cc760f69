package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// HTTPRecorder はHTTPレスポンスのメトリクスを記録する。
type HTTPRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// responseRecorder は最初に書き込まれたステータスコードと本文のバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += int64(n)
	return n, err
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを辿れるようにする。
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// identitySlot は内側の認証ミドルウェアが検証したUIDを外側のログに渡す。
type identitySlot struct {
	uid string
}

// NewLoggingMiddleware は1リクエスト1行の "http_request" ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、bytes、request_id、uid（認証済みの場合）を含む。
// 5xxはERROR、4xxはWARN、それ以外はINFOで出力する。
func NewLoggingMiddleware(logger *slog.Logger, recorder HTTPRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rr := &responseRecorder{ResponseWriter: w}
			slot := &identitySlot{}

			next.ServeHTTP(rr, r.WithContext(contextWithIdentitySlot(r.Context(), slot)))

			elapsed := time.Since(start)
			status := rr.statusCode()
			if recorder != nil {
				recorder.RecordHTTPStatus(status)
				recorder.RecordRequestLatency(elapsed)
			}

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
				slog.Int64("bytes", rr.bytes),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				args = append(args, slog.String("request_id", id))
			}
			if slot.uid != "" {
				args = append(args, slog.String("uid", slot.uid))
			}

			logger.Log(r.Context(), levelForStatus(status), "http_request", args...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
