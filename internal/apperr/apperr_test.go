package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation(CodeInvalidRequest, "bad"), http.StatusBadRequest},
		{Unauthorized(CodeInvalidToken, "no"), http.StatusUnauthorized},
		{Forbidden(CodeKYCNotVerified, "kyc"), http.StatusForbidden},
		{NotFound("job %s", "j1"), http.StatusNotFound},
		{Conflict(CodeAlreadyAttended, "dup"), http.StatusConflict},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.Status(); got != tc.want {
			t.Errorf("%s: Status() = %d, want %d", tc.err.Code, got, tc.want)
		}
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := Conflict(CodeAlreadyAttended, "already attended").With("round", "HR")
	wrapped := fmt.Errorf("confirm: %w", base)

	ae, ok := As(wrapped)
	if !ok {
		t.Fatal("As should find the *Error in the chain")
	}
	if ae.Details["round"] != "HR" {
		t.Errorf("details lost: %v", ae.Details)
	}
	if !HasCode(wrapped, CodeAlreadyAttended) {
		t.Error("HasCode should match through wrapping")
	}
	if HasCode(errors.New("plain"), CodeAlreadyAttended) {
		t.Error("HasCode on a plain error must be false")
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("db down")
	err := Internal(cause)
	if !errors.Is(err, cause) {
		t.Error("Internal should unwrap to its cause")
	}
	if err.Message != "internal server error" {
		t.Errorf("unexpected message %q", err.Message)
	}
}
