package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/solverhub/backend/internal/apperror"
)

// ---------------------------------------------------------------------------
// ValidateBody
// ---------------------------------------------------------------------------

type stubValidator struct{ err error }

func (s stubValidator) Validate(string, []byte) error { return s.err }

func TestValidateBody_RestoresBody(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		if string(BodyFromCtx(r.Context())) != seen {
			t.Error("context body differs from request body")
		}
	})
	mw := ValidateBody(stubValidator{}, "create_project", 1024)(next)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`)))
	if rec.Code != http.StatusOK || seen != `{"title":"x"}` {
		t.Fatalf("status %d, handler saw %q", rec.Code, seen)
	}
}

func TestValidateBody_Rejects(t *testing.T) {
	mw := ValidateBody(stubValidator{err: apperror.Validation("bad")}, "create_project", 1024)(okHandler)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != string(apperror.CodeValidation) {
		t.Errorf("code = %q", body.Code)
	}

	mw = ValidateBody(stubValidator{}, "create_project", 4)(okHandler)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"too long"}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("oversized body status = %d, want 422", rec.Code)
	}
}
