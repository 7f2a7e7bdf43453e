package errors

import (
	"database/sql"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("select: %w", Clone(ErrCourseFull, "Course is full"))

	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, "COURSE_FULL", appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "Course is full", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, stdErrors.Is(appErr, sql.ErrConnDone))
	assert.Nil(t, FromError(nil))
}

func TestClonedErrorsMatchByCode(t *testing.T) {
	err := Clone(ErrAlreadySelected, "student already holds a seat")
	assert.True(t, stdErrors.Is(err, ErrAlreadySelected))
	assert.False(t, stdErrors.Is(err, ErrCourseFull))
	assert.True(t, IsCode(fmt.Errorf("ctx: %w", err), "ALREADY_SELECTED"))
}
