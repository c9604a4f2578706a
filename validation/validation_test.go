package validation

import (
	"strings"
	"testing"

	"github.com/nimbusworks/dfm/errors"
)

type greetParams struct {
	Name string `json:"name" validate:"required"`
}

type loadParams struct {
	Time     string `json:"time" validate:"required"`
	Variable string `json:"variable" validate:"required,oneof=t2m u10m v10m"`
}

func TestValidateStructOK(t *testing.T) {
	if err := Validate(greetParams{Name: "World"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStructMissingField(t *testing.T) {
	err := Validate(greetParams{})
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatal("expected AppError")
	}
	if appErr.Kind != errors.KindBadPipeline {
		t.Errorf("expected BAD_PIPELINE, got %s", appErr.Kind)
	}
	if !strings.Contains(appErr.Message, "name") {
		t.Errorf("expected field name in message, got %q", appErr.Message)
	}
}

func TestValidateOneOf(t *testing.T) {
	err := Validate(loadParams{Time: "2024-01-01T00:00", Variable: "rainbow"})
	if err == nil {
		t.Fatal("expected error for invalid variable")
	}
	if !strings.Contains(err.Error(), "one of") {
		t.Errorf("expected oneof message, got %q", err.Error())
	}
}

func TestProgrammaticValidator(t *testing.T) {
	v := New()
	v.Required("node_id", " ")
	v.RequiredUUID("request_id", "not-a-uuid")
	v.Check(false, "inputs", "unknown node referenced")
	if !v.HasErrors() {
		t.Fatal("expected errors")
	}
	appErr := v.Error()
	if appErr == nil {
		t.Fatal("expected AppError")
	}
	if len(v.Errors()) != 3 {
		t.Errorf("expected 3 field errors, got %d", len(v.Errors()))
	}
}

func TestProgrammaticValidatorClean(t *testing.T) {
	v := New()
	v.Required("site", "local")
	if v.Error() != nil {
		t.Error("expected nil error")
	}
}
