package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("accept: %w", InvalidState("project is not open"))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatal("expected wrapped error to match ErrInvalidState")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("did not expect match on ErrConflict")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"direct", NotFound("project"), CodeNotFound},
		{"wrapped", fmt.Errorf("x: %w", Conflict("dup")), CodeConflict},
		{"plain", errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("CodeOf = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestHTTPStatusAndRetryable(t *testing.T) {
	cases := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{CodeNotFound, http.StatusNotFound, false},
		{CodeForbidden, http.StatusForbidden, false},
		{CodeInvalidState, http.StatusConflict, false},
		{CodeConflict, http.StatusConflict, false},
		{CodeValidation, http.StatusUnprocessableEntity, false},
		{CodeExternalFailure, http.StatusBadGateway, true},
		{CodeUnauthorized, http.StatusUnauthorized, false},
		{CodeInternal, http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.status {
			t.Errorf("%s: status %d, want %d", tc.code, got, tc.status)
		}
		if got := tc.code.Retryable(); got != tc.retryable {
			t.Errorf("%s: retryable %v, want %v", tc.code, got, tc.retryable)
		}
	}
}

func TestExternalKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := External("charge failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if MessageOf(err) != "charge failed" {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
	if MessageOf(cause) != "internal error" {
		t.Errorf("MessageOf(plain) = %q", MessageOf(cause))
	}
}
