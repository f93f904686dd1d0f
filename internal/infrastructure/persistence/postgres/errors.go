package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "z-novel-forge/pkg/errors"
)

// 超出存储容量相关的 SQLSTATE
const (
	sqlStateProgramLimitExceeded = "54000"
	sqlStateStringTooLong        = "22001"
	sqlStateDiskFull             = "53100"
)

// translate 将数据库错误映射为领域错误码
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrProjectNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateProgramLimitExceeded, sqlStateStringTooLong, sqlStateDiskFull:
			return apperrors.Wrap(err, apperrors.CodeStorageCapacity, apperrors.ErrStorageCapacity.Message)
		}
	}
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, message)
}
