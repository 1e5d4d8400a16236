package services

import (
	"errors"
	"testing"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidator_AllKindsCompile(t *testing.T) {
	v := newTestValidator(t)
	for _, kind := range []string{
		RequestCreateProject, RequestUpdateProject, RequestCreateTask, RequestUpdateTask,
		RequestReviewSubmission, RequestRequestPayment, RequestRejectPayment, RequestCreatePayout,
		RequestRegister, RequestLogin, RequestAssignRole,
		RequestCreateSprint, RequestUpdateSprint, RequestCreateFeature, RequestUpdateFeature,
	} {
		if _, ok := v.schemas[kind]; !ok {
			t.Errorf("missing schema for %q", kind)
		}
	}
}

func TestValidate_CreateProject_Valid(t *testing.T) {
	v := newTestValidator(t)

	bodies := []string{
		`{"title":"Landing page","description":"Build it","budget":1500}`,
		`{"title":"Landing page","description":"Build it","budget":"1500.50","category":"design"}`,
	}
	for _, b := range bodies {
		if err := v.Validate(RequestCreateProject, []byte(b)); err != nil {
			t.Errorf("expected valid body %s, got: %v", b, err)
		}
	}
}

func TestValidate_CreateProject_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing budget", `{"title":"x","description":"y"}`},
		{"empty title", `{"title":"","description":"y","budget":10}`},
		{"unknown field", `{"title":"x","description":"y","budget":10,"status":"completed"}`},
		{"budget wrong type", `{"title":"x","description":"y","budget":true}`},
		{"not json", `{"title":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(RequestCreateProject, []byte(tc.body))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidate_ReviewDecisionEnum(t *testing.T) {
	v := newTestValidator(t)

	if err := v.Validate(RequestReviewSubmission, []byte(`{"decision":"accepted"}`)); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := v.Validate(RequestReviewSubmission, []byte(`{"decision":"maybe"}`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestValidate_PlanningBodies(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name  string
		kind  string
		body  string
		valid bool
	}{
		{"sprint", RequestCreateSprint, `{"title":"S1","start_date":"2026-03-01","end_date":"2026-03-14"}`, true},
		{"sprint datetime", RequestCreateSprint, `{"title":"S1","start_date":"2026-03-01T00:00:00Z","end_date":"2026-03-14"}`, false},
		{"sprint missing end", RequestCreateSprint, `{"title":"S1","start_date":"2026-03-01"}`, false},
		{"empty sprint patch", RequestUpdateSprint, `{}`, false},
		{"feature", RequestCreateFeature, `{"title":"Login","priority":"high","estimated_hours":4}`, true},
		{"feature bad priority", RequestCreateFeature, `{"title":"Login","priority":"urgent"}`, false},
		{"feature negative hours", RequestCreateFeature, `{"title":"Login","estimated_hours":-1}`, false},
		{"feature to backlog", RequestUpdateFeature, `{"sprint_id":null}`, true},
		{"feature status", RequestUpdateFeature, `{"status":"review"}`, true},
		{"feature unknown field", RequestUpdateFeature, `{"points":3}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.kind, []byte(tc.body))
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestValidate_RegisterRejectsAdminSelfSignup(t *testing.T) {
	v := newTestValidator(t)

	body := `{"email":"a@b.co","password":"longenough","full_name":"A","role":"admin"}`
	if err := v.Validate(RequestRegister, []byte(body)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	v := newTestValidator(t)

	err := v.Validate("nope", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("unknown kind is a programming error, not a validation failure")
	}
}
