package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCertsURL はFirebase IDトークン署名用のx509証明書の公開URL。
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const (
	// minCertTTL はCache-Controlが無い場合のキャッシュ期間。
	minCertTTL = 5 * time.Minute
	// maxCertsBodySize は証明書レスポンスの最大サイズ。
	maxCertsBodySize = 1 << 20
	// minRefreshInterval は未知のkidによる再取得の最短間隔。
	minRefreshInterval = time.Minute
)

// GoogleCertSource はGoogleが公開する証明書から公開鍵を取得するKeySource。
// 取得結果はCache-Controlのmax-ageに従ってキャッシュする。
// 同時に発生した再取得は1回のリクエストにまとめる。
type GoogleCertSource struct {
	url    string
	client *http.Client
	now    func() time.Time
	group  singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	lastFetch time.Time
}

// NewGoogleCertSource はGoogleCertSourceを生成する。urlが空の場合はDefaultCertsURLを使用する。
func NewGoogleCertSource(url string, client *http.Client) *GoogleCertSource {
	if url == "" {
		url = DefaultCertsURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleCertSource{
		url:    url,
		client: client,
		now:    time.Now,
	}
}

// PublicKey はkidに対応する公開鍵を返す。
// キャッシュが期限切れの場合は再取得する。未知のkidによる再取得はminRefreshIntervalに1回まで。
func (s *GoogleCertSource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, ok, fresh, recent := s.lookup(kid)
	if ok && fresh {
		return key, nil
	}
	if fresh && recent {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}

	if _, err, _ := s.group.Do("certs", func() (any, error) {
		// 待機中に他の呼び出しが取得を終えていれば再取得しない
		if _, _, fresh, recent := s.lookup(""); fresh && recent {
			return nil, nil
		}
		return nil, s.refresh(ctx)
	}); err != nil {
		return nil, err
	}

	key, ok, _, _ = s.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	return key, nil
}

// lookup はキャッシュ上の鍵と、キャッシュが有効か、直近に取得したかを返す。
func (s *GoogleCertSource) lookup(kid string) (key *rsa.PublicKey, ok, fresh, recent bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	key, ok = s.keys[kid]
	fresh = now.Before(s.expiresAt)
	recent = !s.lastFetch.IsZero() && now.Sub(s.lastFetch) < minRefreshInterval
	return key, ok, fresh, recent
}

func (s *GoogleCertSource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build certs request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch signing certs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch signing certs: status %d", resp.StatusCode)
	}

	var pems map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCertsBodySize)).Decode(&pems); err != nil {
		return fmt.Errorf("failed to decode signing certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, p := range pems {
		key, err := parseRSACert(p)
		if err != nil {
			slog.Warn("skipping unparsable signing cert", slog.String("kid", kid), slog.String("error", err.Error()))
			continue
		}
		keys[kid] = key
	}

	ttl := cacheMaxAge(resp.Header.Get("Cache-Control"))
	s.mu.Lock()
	now := s.now()
	s.keys = keys
	s.expiresAt = now.Add(ttl)
	s.lastFetch = now
	s.mu.Unlock()
	return nil
}

func parseRSACert(p string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(p))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate does not hold an RSA key")
	}
	return key, nil
}

// cacheMaxAge はCache-Controlヘッダーのmax-ageを返す。無い場合はminCertTTL。
func cacheMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(value)
		if err != nil || secs <= 0 {
			break
		}
		return time.Duration(secs) * time.Second
	}
	return minCertTTL
}

// compile-time interface check
var _ KeySource = (*GoogleCertSource)(nil)
