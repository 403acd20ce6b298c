package postgres

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/apperror"
)

func TestTranslate(t *testing.T) {
	wrap := func(code, constraint string) error {
		return fmt.Errorf("insert pens: %w", &pgconn.PgError{Code: code, ConstraintName: constraint})
	}

	t.Run("unique violation", func(t *testing.T) {
		err := translate("pen", wrap("23505", "pens_code_key"))
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeDuplicate, appErr.Code)
		assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
		assert.Equal(t, "pen already exists", appErr.Message)
		assert.Equal(t, "pens_code_key", appErr.Details["constraint"])

		var pgErr *pgconn.PgError
		assert.True(t, errors.As(err, &pgErr), "cause is kept")
	})

	t.Run("foreign key and check", func(t *testing.T) {
		assert.True(t, apperror.HasCode(translate("placement", wrap("23503", "fk")), apperror.CodeValidation))
		assert.True(t, apperror.HasCode(translate("placement", wrap("23514", "ck")), apperror.CodeValidation))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		plain := errors.New("connection reset")
		assert.Same(t, plain, translate("pen", plain))
		serialization := wrap("40001", "")
		assert.Equal(t, serialization, translate("pen", serialization))
	})
}
