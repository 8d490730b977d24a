package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("batch: %w", Decode("failed to read archive", errors.New("zip: not a valid zip file")))

	assert.True(t, IsKind(err, KindDecode))
	assert.False(t, IsKind(err, KindEmptyInput))
	assert.Equal(t, KindDecode, KindOf(err))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))
	assert.Contains(t, err.Error(), "not a valid zip file")
}

func TestUncategorizedErrors(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))

	wrapped := Wrap(err)
	assert.True(t, IsKind(wrapped, KindUnknown))
	assert.ErrorIs(t, wrapped, err)
	assert.Contains(t, wrapped.Error(), "boom")

	already := Validation("bad file", nil)
	assert.Same(t, already, Wrap(already))
	assert.Nil(t, Wrap(nil))
}

func TestEmptyInputMessage(t *testing.T) {
	err := EmptyInput()
	assert.Equal(t, "no valid images found in the archive", err.Error())
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))
}
