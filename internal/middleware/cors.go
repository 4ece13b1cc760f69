package middleware

import (
	"net/http"
	"strings"
)

// ParseOrigins はカンマ区切りのオリジン設定を分解する。末尾の "/" は取り除く。
func ParseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewCORSMiddleware はフロントエンドのオリジンからのブラウザアクセスを許可するミドルウェアを返す。
// allowedOriginはカンマ区切りで複数指定できる。リクエストのOriginが一覧にあればそれを返し、
// 無ければ先頭のオリジンを返す（ブラウザ側で拒否される）。
// Authorizationヘッダーでトークンを送るため、ワイルドカードは使用しない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	origins := ParseOrigins(allowedOrigin)
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
			} else if len(origins) > 0 {
				h.Set("Access-Control-Allow-Origin", origins[0])
			}
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// プリフライト
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
