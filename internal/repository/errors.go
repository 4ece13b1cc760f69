package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("duplicate key")
	// ErrReferenceMissing は参照先の行が存在しない外部キー制約違反を表す。
	ErrReferenceMissing = errors.New("referenced record missing")
)

// PostgreSQLの制約違反のSQLSTATE。
const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

// translateError はドライバのエラーをリポジトリのエラーに変換する。
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		return errors.Join(ErrDuplicate, err)
	case foreignKeyViolation:
		return errors.Join(ErrReferenceMissing, err)
	}
	return err
}
