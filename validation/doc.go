// Package validation provides input validation for pipeline submissions and
// adapter params.
//
// Struct tag validation (using the validator library) covers the typed param
// records registered per api_class; programmatic validation with error
// collection covers the pipeline-level checks done by the verifier.
//
// # Struct Tag Validation
//
//	type GreetMeParams struct {
//	    Name string `json:"name" validate:"required"`
//	}
//	err := validation.Validate(params)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Check(nodeID != "", "node_id", "node_id is required")
//	err := v.Error()
package validation
