// Package cel provides a CEL-based constraint predicate evaluator,
// implementing policy.PredicateEvaluator.
package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// NewConstraintEnvironment builds the CEL environment every constraint
// predicate compiles against. The fixed schema (§4.3) exposes three
// top-level variables:
//   - subject: {email: string, principals: list(string)}
//   - group:   {environment: string, system: string, name: string}
//   - input:   map[string]dyn of the constraint's declared, type-checked
//     variables, keyed by name (so a predicate reads input.justification).
func NewConstraintEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("group", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
}
