package errs

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwrapKeepsCause(t *testing.T) {
	err := NewNotFound("family not found", sql.ErrNoRows)

	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.Equal(t, "family not found: sql: no rows in result set", err.Error())
}

func TestMessageWithoutCause(t *testing.T) {
	assert.Equal(t, "collection locked", NewLocked("collection locked").Error())
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"validation", NewValidation("bad"), IsValidation},
		{"not found", NewNotFound("missing"), IsNotFound},
		{"conflict", NewConflict("not active", ErrInvalidTransition), IsConflict},
		{"locked", NewLocked("locked"), IsLocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("service: %w", tt.err)
			assert.True(t, tt.is(wrapped))
		})
	}

	assert.False(t, IsLocked(NewConflict("x")))
	assert.True(t, errors.Is(NewConflict("not active", ErrInvalidTransition), ErrInvalidTransition))
}
