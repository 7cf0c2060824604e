package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewSystemError(ErrCodeDatabaseError, "Ошибка базы данных").WithCause(cause)

	assert.Equal(t, "Ошибка базы данных: connection refused", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestHTTPCodes(t *testing.T) {
	assert.Equal(t, http.StatusUnsupportedMediaType, UnsupportedFileType(".exe").HTTPCode)
	assert.Equal(t, http.StatusServiceUnavailable, SchemaMissing(nil).HTTPCode)
	assert.Equal(t, http.StatusBadRequest, NewBusinessError(ErrCodeValidationFailed, "x").HTTPCode)
	assert.Equal(t, http.StatusBadGateway, NewExternalError(ErrCodeExternalService, "x").HTTPCode)
}

func TestIsRelationMissing(t *testing.T) {
	assert.True(t, IsRelationMissing(errors.New(`pq: relation "documents" does not exist`)))
	assert.True(t, IsRelationMissing(fmt.Errorf("query failed: %w",
		errors.New(`ERROR: relation "document_chunks" does not exist (SQLSTATE 42P01)`))))
	assert.False(t, IsRelationMissing(errors.New("connection refused")))
	assert.False(t, IsRelationMissing(nil))
}

func TestIsSchemaMissing(t *testing.T) {
	err := SchemaMissing(errors.New("boom"))
	assert.True(t, IsSchemaMissing(err))
	assert.True(t, IsSchemaMissing(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsSchemaMissing(errors.New("boom")))
}

func TestIsEmbeddingUnavailable(t *testing.T) {
	err := EmbeddingUnavailable(errors.New("all models down"))
	assert.True(t, IsEmbeddingUnavailable(err))
	assert.False(t, IsEmbeddingUnavailable(errors.New("other")))
}

func TestSchemaMissing_Message(t *testing.T) {
	err := SchemaMissing(nil)
	require.Contains(t, err.Message, "Таблицы базы данных не созданы")
}
