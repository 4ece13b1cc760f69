package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/cybershield/internal/middleware"
)

// Pinger はデータベースの疎通確認に必要なインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthHandler はDBへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}
		middleware.WriteJSON(w, code, healthResponse{Status: status, Timestamp: time.Now().UTC()})
	}
}
