// Package user はローカルユーザーディレクトリの管理操作を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/repository"
)

// ClearResult はテストユーザー削除の結果。
type ClearResult struct {
	Deleted []string
	Missing []string
}

// Service はユーザー管理のサービス層。
// 一覧取得、ロール変更、テストデータ削除のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// List は全ユーザーを作成日時の降順で返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// SetRole はuidで指定したユーザーのロールを変更する。
// 未定義のロールはVALIDATION_FAILED、ユーザーが存在しない場合はNOT_FOUNDを返す。
func (s *Service) SetRole(ctx context.Context, uid, role string) (*model.User, error) {
	r, ok := model.ParseRole(role)
	if !ok {
		return nil, model.NewInvalidRoleError()
	}

	user, err := s.userRepo.UpdateRole(ctx, uid, r)
	if err != nil {
		return nil, fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("User")
	}

	slog.Info("user role updated",
		slog.String("uid", uid),
		slog.String("role", string(r)),
	)
	return user, nil
}

// SetRoleByEmail はメールアドレスで指定したユーザーのロールを変更する。
// 最初のadminをCLIから設定する用途で使う。
func (s *Service) SetRoleByEmail(ctx context.Context, email, role string) (*model.User, error) {
	if _, ok := model.ParseRole(role); !ok {
		return nil, model.NewInvalidRoleError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("User")
	}
	return s.SetRole(ctx, user.UID, role)
}

// ClearByEmails は指定したメールアドレスのユーザーを物理削除する。
// テストデータ削除専用で、見つからないアドレスはスキップする。
func (s *Service) ClearByEmails(ctx context.Context, emails []string) (*ClearResult, error) {
	result := &ClearResult{}
	for _, email := range emails {
		deleted, err := s.userRepo.DeleteByEmail(ctx, email)
		if err != nil {
			return result, fmt.Errorf("ユーザーの削除に失敗しました (%s): %w", email, err)
		}
		if deleted {
			result.Deleted = append(result.Deleted, email)
			slog.Info("test user deleted", slog.String("email", email))
		} else {
			result.Missing = append(result.Missing, email)
			slog.Info("test user not found, skipping", slog.String("email", email))
		}
	}
	return result, nil
}
