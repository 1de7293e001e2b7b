package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
	}{
		{"validation", Validation("bad", nil), KindValidation, http.StatusBadRequest},
		{"field", FieldError("content", "empty"), KindValidation, http.StatusBadRequest},
		{"forbidden", Forbidden("no"), KindForbidden, http.StatusForbidden},
		{"not found", NotFound("gone"), KindNotFound, http.StatusNotFound},
		{"conflict", Conflict("dup"), KindConflict, http.StatusConflict},
		{"unauthenticated", Unauthenticated("who"), KindUnauthenticated, http.StatusUnauthorized},
		{"plain", errors.New("boom"), KindInternal, http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("send: %w", Forbidden("no")), KindForbidden, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, KindOf(tt.err), tt.wantKind)
			assert.Equal(t, HTTPStatus(tt.err), tt.wantStatus)
			assert.Check(t, IsKind(tt.err, tt.wantKind))
		})
	}
	assert.Check(t, !IsKind(nil, KindInternal))
}

func TestErrorWrap(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: conversations.user_low, conversations.user_high")
	err := Conflict("conversation already exists").Wrap(cause)

	assert.Check(t, errors.Is(err, cause))
	assert.Equal(t, MessageOf(err), "conversation already exists")
	assert.Check(t, is.ErrorContains(err, "conflict: conversation already exists"))
	assert.Equal(t, MessageOf(cause), "internal server error")
}

func TestFieldsOf(t *testing.T) {
	err := FieldError("receiver_id", "receiver_id is required")
	assert.DeepEqual(t, FieldsOf(err), map[string]string{"receiver_id": "receiver_id is required"})
	assert.Check(t, is.Nil(FieldsOf(errors.New("x"))))
}

func TestSQLiteClassifiers(t *testing.T) {
	assert.Check(t, IsSQLiteContention(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.Check(t, IsSQLiteLockedError(errors.New("database is locked")))
	assert.Check(t, IsSQLiteBusyError(errors.New("step: SQLITE_BUSY")))
	assert.Check(t, !IsSQLiteContention(nil))
	assert.Check(t, !IsSQLiteContention(errors.New("constraint failed: UNIQUE constraint failed: conversations.user_low (2067)")))
	assert.Check(t, IsSQLiteUniqueError(errors.New("constraint failed: UNIQUE constraint failed: conversations.user_low (2067)")))
	assert.Check(t, !IsSQLiteUniqueError(errors.New("FOREIGN KEY constraint failed")))
}
