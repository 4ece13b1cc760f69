package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	UploadRate      rate.Limit    // 画像アップロードのレート（req/sec）
	UploadBurst     int           // 画像アップロードのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min、画像アップロード 20 req/min。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteConfig(120, 20)
}

// PerMinuteConfig は1分あたりのリクエスト数からレート制限設定を生成する。
func PerMinuteConfig(general, upload int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(general) / 60.0),
		GeneralBurst:    general,
		UploadRate:      rate.Limit(float64(upload) / 60.0),
		UploadBurst:     upload,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はキー（UIDまたはクライアントIP）ごとのリミッター集合。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*keyedLimiter),
	}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl, ok := s.limiters[key]; ok {
		kl.lastAccess = now
		return kl.limiter
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: l, lastAccess: now}
	return l
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// middleware はこの集合でリクエストを制限するミドルウェアを返す。
func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			if !s.get(key, time.Now()).Allow() {
				writeRateLimitResponse(w, s.limit)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", s.name),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はAPI全般と画像アップロードのレート制限を管理する。
// 認証済みリクエストはUID単位、未認証リクエストはクライアントIP単位で制限する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	upload  *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		upload:  newLimiterSet("upload", config.UploadRate, config.UploadBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// UploadMiddleware は画像アップロード専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。認証ミドルウェアの後に配置する。
func (rl *RateLimiter) UploadMiddleware() func(next http.Handler) http.Handler {
	return rl.upload.middleware()
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// UploadLimiterCount は現在管理されているアップロードリミッターのエントリ数を返す。
func (rl *RateLimiter) UploadLimiterCount() int {
	return rl.upload.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.upload.evict(now, ttl)
}

func rateLimitKey(r *http.Request) string {
	if uid := uidFromContext(r.Context()); uid != "" {
		return "uid:" + uid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(1, int(math.Ceil(1.0/float64(r))))
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponseBody{
		Message: "Too many requests. Please try again later.",
		Code:    "RATE_LIMIT_EXCEEDED",
	})
}
