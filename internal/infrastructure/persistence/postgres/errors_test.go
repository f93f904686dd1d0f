package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	apperrors "z-novel-forge/pkg/errors"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorCode
	}{
		{"record not found", gorm.ErrRecordNotFound, apperrors.CodeProjectNotFound},
		{"wrapped not found", fmt.Errorf("query: %w", gorm.ErrRecordNotFound), apperrors.CodeProjectNotFound},
		{"program limit", &pgconn.PgError{Code: "54000"}, apperrors.CodeStorageCapacity},
		{"string too long", &pgconn.PgError{Code: "22001"}, apperrors.CodeStorageCapacity},
		{"disk full", &pgconn.PgError{Code: "53100"}, apperrors.CodeStorageCapacity},
		{"unique violation", &pgconn.PgError{Code: "23505"}, apperrors.CodeDatabaseError},
		{"plain", errors.New("connection reset"), apperrors.CodeDatabaseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.CodeOf(translate(tt.err, "op failed")))
		})
	}
	assert.NoError(t, translate(nil, "noop"))
}

func TestGormLogLevel(t *testing.T) {
	assert.NotEqual(t, gormLogLevel("debug"), gormLogLevel("error"))
	assert.Equal(t, gormLogLevel("warn"), gormLogLevel("info"))
}
