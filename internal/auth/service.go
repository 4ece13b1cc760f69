// Package auth はIDトークンで認証された呼び出し元のログイン処理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/repository"
)

// defaultProvider はsign_in_providerが無いトークンのプロバイダー名。
const defaultProvider = "password"

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// Login は検証済みIDをもとにローカルユーザーを作成または更新する。
// 初回ログインのユーザーはstudentロールで作成される。既存ユーザーのロールは変更しない。
func (s *Service) Login(ctx context.Context, id *identity.Identity) (*model.User, error) {
	if id == nil || id.UID == "" {
		return nil, model.NewUnauthorizedError("Not authenticated")
	}

	provider := id.Provider
	if provider == "" {
		provider = defaultProvider
	}

	user, err := s.userRepo.UpsertOnLogin(ctx, &model.User{
		ID:          uuid.New().String(),
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.Name,
		PhotoURL:    id.Picture,
		Provider:    provider,
		LastLoginAt: s.now(),
	})
	if err != nil {
		// uidは新しいがemailが既存ユーザーと重複している
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("A user with this email already exists")
		}
		return nil, fmt.Errorf("ログイン時のユーザー登録に失敗しました: %w", err)
	}

	slog.Info("user logged in",
		slog.String("uid", user.UID),
		slog.String("role", string(user.Role)),
		slog.String("provider", user.Provider),
	)
	return user, nil
}

// Me は呼び出し元のローカルユーザーを返す。未登録の場合はNOT_FOUNDエラーを返す。
func (s *Service) Me(ctx context.Context, uid string) (*model.User, error) {
	user, err := s.userRepo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("User")
	}
	return user, nil
}
