package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cybershield/internal/model"
)

const userColumns = `id, uid, email, display_name, photo_url, provider, role, created_at, last_login_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var email sql.NullString
	var role string
	if err := s.Scan(&user.ID, &user.UID, &email, &user.DisplayName, &user.PhotoURL,
		&user.Provider, &role, &user.CreatedAt, &user.LastLoginAt); err != nil {
		return nil, err
	}
	user.Email = email.String
	user.Role = model.Role(role)
	return user, nil
}

// FindByUID は外部IdPのUIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUID(ctx context.Context, uid string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE uid = $1`,
		uid,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by uid: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// UpsertOnLogin はuidをキーにユーザーを作成または更新する。
// プロフィール項目とlast_login_atのみ更新し、roleとcreated_atは保持する。
func (r *PostgresUserRepo) UpsertOnLogin(ctx context.Context, user *model.User) (*model.User, error) {
	saved, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, uid, email, display_name, photo_url, provider, role, created_at, last_login_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (uid) DO UPDATE SET
		     email = COALESCE(EXCLUDED.email, users.email),
		     display_name = EXCLUDED.display_name,
		     photo_url = EXCLUDED.photo_url,
		     provider = EXCLUDED.provider,
		     last_login_at = EXCLUDED.last_login_at
		 RETURNING `+userColumns,
		user.ID, user.UID, user.Email, user.DisplayName, user.PhotoURL,
		user.Provider, string(model.RoleStudent), user.LastLoginAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", translateError(err))
	}
	return saved, nil
}

// List は全ユーザーを作成日時の降順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// UpdateRole はロールを更新し、更新後のユーザーを返す。見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, uid string, role model.Role) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET role = $2 WHERE uid = $1 RETURNING `+userColumns,
		uid, string(role),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user role: %w", err)
	}
	return user, nil
}

// DeleteByEmail はメールアドレスでユーザーを物理削除する。
func (r *PostgresUserRepo) DeleteByEmail(ctx context.Context, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE email = $1`,
		email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
