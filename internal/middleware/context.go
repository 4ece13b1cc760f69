// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	identityContextKey = contextKey("identity")
	callerContextKey   = contextKey("caller")
	slotContextKey     = contextKey("identity_slot")
)

// IdentityFromContext は認証ミドルウェアが検証したIDを取得する。
func IdentityFromContext(ctx context.Context) (*identity.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*identity.Identity)
	return id, ok && id != nil
}

// ContextWithIdentity はコンテキストに検証済みIDを注入する。
// ロギングミドルウェアの配下であれば、ログ出力用にUIDも記録する。
func ContextWithIdentity(ctx context.Context, id *identity.Identity) context.Context {
	if slot, ok := ctx.Value(slotContextKey).(*identitySlot); ok && id != nil {
		slot.uid = id.UID
	}
	return context.WithValue(ctx, identityContextKey, id)
}

func contextWithIdentitySlot(ctx context.Context, slot *identitySlot) context.Context {
	return context.WithValue(ctx, slotContextKey, slot)
}

// CallerFromContext はロールゲートを通過した呼び出し元を取得する。
func CallerFromContext(ctx context.Context) (model.Caller, bool) {
	c, ok := ctx.Value(callerContextKey).(model.Caller)
	return c, ok
}

// ContextWithCaller はコンテキストに呼び出し元を注入する。
func ContextWithCaller(ctx context.Context, c model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

// uidFromContext はログやレート制限のキーに使うUIDを返す。未認証の場合は空文字。
func uidFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UID
	}
	return ""
}
