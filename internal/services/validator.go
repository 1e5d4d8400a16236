package services

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/solverhub/backend/internal/apperror"
)

// Request body kinds, one embedded schema each.
const (
	RequestCreateProject    = "create_project"
	RequestUpdateProject    = "update_project"
	RequestCreateTask       = "create_task"
	RequestUpdateTask       = "update_task"
	RequestReviewSubmission = "review_submission"
	RequestRequestPayment   = "request_payment"
	RequestRejectPayment    = "reject_payment"
	RequestCreatePayout     = "create_payout"
	RequestRegister         = "register"
	RequestLogin            = "login"
	RequestAssignRole       = "assign_role"
	RequestCreateSprint     = "create_sprint"
	RequestUpdateSprint     = "update_sprint"
	RequestCreateFeature    = "create_feature"
	RequestUpdateFeature    = "update_feature"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrValidation can be used with errors.Is to detect request validation failures.
var ErrValidation = apperror.ErrValidation

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded request schema.
func NewValidator() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		kind := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		id := "https://solverhub.dev/schemas/" + kind + ".json"
		schemas[kind], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", kind, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// Validate checks a raw request body against the schema for kind.
// Malformed JSON and schema mismatches both fail with a validation error.
func (v *Validator) Validate(kind string, body []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown request kind %q", kind)
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return apperror.Validation("invalid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return apperror.Wrap(apperror.CodeValidation, "request does not match schema", err)
	}
	return nil
}
