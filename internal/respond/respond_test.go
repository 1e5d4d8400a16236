package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solverhub/backend/internal/apperror"
)

func TestError_CodedErrors(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{apperror.NotFound("project"), http.StatusNotFound, "NOT_FOUND", false},
		{apperror.InvalidState("invalid state transition"), http.StatusConflict, "INVALID_STATE", false},
		{apperror.External("charge failed", errors.New("timeout")), http.StatusBadGateway, "EXTERNAL_FAILURE", true},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		Error(rec, nil, tc.err)
		if rec.Code != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var body ErrorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Code != tc.code || body.Retryable != tc.retryable {
			t.Errorf("%v: body = %+v", tc.err, body)
		}
	}
}

func TestError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, nil, errors.New("password=hunter2"))
	var body ErrorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != "internal error" {
		t.Errorf("error message leaked: %q", body.Error)
	}
}
