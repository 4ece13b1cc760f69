// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はローカルユーザーディレクトリ上の権限ロールを表す。
type Role string

const (
	// RoleStudent は閲覧のみのロール。初回ログイン時のデフォルト。
	RoleStudent Role = "student"
	// RoleAuthor は記事を執筆できるロール。
	RoleAuthor Role = "author"
	// RoleAdmin は全操作を許可されたロール。
	RoleAdmin Role = "admin"
)

// AllRoles は定義済みロールの一覧。
var AllRoles = []Role{RoleStudent, RoleAuthor, RoleAdmin}

// ParseRole は文字列をRoleに変換する。未定義のロールの場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// RoleSet は操作に必要なロールの集合。
// adminは常に集合に含まれるため、呼び出し側でadminを個別に判定する必要はない。
type RoleSet struct {
	required []Role
	allowed  map[Role]struct{}
}

// NewRoleSet は必要ロールにadminを加えた許可集合を生成する。
func NewRoleSet(required ...Role) RoleSet {
	allowed := make(map[Role]struct{}, len(required)+1)
	for _, r := range required {
		allowed[r] = struct{}{}
	}
	allowed[RoleAdmin] = struct{}{}
	return RoleSet{required: required, allowed: allowed}
}

// Permits はroleが許可集合に含まれるかを返す。
func (s RoleSet) Permits(role Role) bool {
	_, ok := s.allowed[role]
	return ok
}

// String はエラーメッセージ用に必要ロールを "author or admin" の形式で返す。
func (s RoleSet) String() string {
	names := make([]string, len(s.required))
	for i, r := range s.required {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}

// User は外部IdPのsubjectに対応するローカルユーザーを表す。
type User struct {
	ID          string
	UID         string // Firebase UID
	Email       string
	DisplayName string
	PhotoURL    string
	Provider    string
	Role        Role
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// Caller はロールゲートを通過したリクエスト元を表す。
// ハンドラーはこの値を使って所有者判定とadmin判定を行う。
type Caller struct {
	UID   string
	Email string
	User  *User
}

// Role は呼び出し元の永続化済みロールを返す。
func (c Caller) Role() Role {
	if c.User == nil {
		return ""
	}
	return c.User.Role
}

// IsAdmin は呼び出し元がadminかを返す。
func (c Caller) IsAdmin() bool {
	return c.Role() == RoleAdmin
}

// DisplayName は記事の著者名として使用する表示名を返す。
func (c Caller) DisplayName() string {
	if c.User != nil && c.User.DisplayName != "" {
		return c.User.DisplayName
	}
	if c.Email != "" {
		return c.Email
	}
	return "Unknown Author"
}
