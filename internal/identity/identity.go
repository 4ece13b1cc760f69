// Package identity は外部IdP（Firebase Authentication）が発行したIDトークンを検証する。
package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken はトークンが空であることを表す。
	ErrMissingToken = errors.New("missing id token")
	// ErrInvalidToken は署名・クレームの検証に失敗したことを表す。
	ErrInvalidToken = errors.New("invalid id token")
	// ErrUnknownKey はkidに対応する公開鍵が見つからないことを表す。
	ErrUnknownKey = errors.New("unknown signing key")
)

// Identity は検証済みIDトークンから取り出した呼び出し元の情報。
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Provider      string // sign_in_provider（google.com, password など）
}

// Verifier はベアラートークンを検証してIdentityを返す。
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// KeySource はkidに対応するRSA公開鍵を提供する。
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// firebaseClaims はFirebase IDトークンのクレーム。
type firebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	AuthTime      int64  `json:"auth_time"`
	Firebase      struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
	jwt.RegisteredClaims
}

// FirebaseVerifier はFirebase IDトークンをRS256で検証する。
type FirebaseVerifier struct {
	projectID string
	issuer    string
	keys      KeySource
	now       func() time.Time
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(projectID string, keys KeySource) *FirebaseVerifier {
	return &FirebaseVerifier{
		projectID: projectID,
		issuer:    "https://securetoken.google.com/" + projectID,
		keys:      keys,
		now:       time.Now,
	}
}

// Verify はIDトークンの署名、発行者、対象者、有効期限を検証する。
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &firebaseClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("%w: missing kid header", ErrUnknownKey)
			}
			return v.keys.PublicKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	// subは空でなく128文字以内
	if claims.Subject == "" || len(claims.Subject) > 128 {
		return nil, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}
	if claims.AuthTime == 0 || time.Unix(claims.AuthTime, 0).After(v.now()) {
		return nil, fmt.Errorf("%w: invalid auth_time", ErrInvalidToken)
	}

	return &Identity{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
		Provider:      claims.Firebase.SignInProvider,
	}, nil
}

// compile-time interface check
var _ Verifier = (*FirebaseVerifier)(nil)
