package cel

import (
	"testing"

	"github.com/google/cel-go/cel"
)

// compileAndEval compiles and runs expr against a fresh constraint
// environment activation.
func compileAndEval(t *testing.T, expr string, activation map[string]any) bool {
	t.Helper()
	env, err := NewConstraintEnvironment()
	if err != nil {
		t.Fatalf("NewConstraintEnvironment() error: %v", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		t.Fatalf("Compile(%q) error: %v", expr, issues.Err())
	}

	prg, err := env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		t.Fatalf("Program() error: %v", err)
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		t.Fatalf("Eval(%q) error: %v", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		t.Fatalf("Eval(%q) returned non-bool %T", expr, out.Value())
	}
	return b
}

func TestConstraintEnvironmentSubjectVariable(t *testing.T) {
	activation := map[string]any{
		"subject": map[string]any{"email": "alice@example.com", "principals": []string{"user:alice@example.com"}},
		"group":   map[string]string{"environment": "prod", "system": "sys", "name": "ops-oncall"},
		"input":   map[string]any{},
	}
	if !compileAndEval(t, `subject.email == "alice@example.com"`, activation) {
		t.Fatal("expected subject.email to bind")
	}
}

func TestConstraintEnvironmentGroupVariable(t *testing.T) {
	activation := map[string]any{
		"subject": map[string]any{"email": "", "principals": []string{}},
		"group":   map[string]string{"environment": "prod", "system": "sys", "name": "ops-oncall"},
		"input":   map[string]any{},
	}
	if !compileAndEval(t, `group.environment == "prod" && group.system == "sys" && group.name == "ops-oncall"`, activation) {
		t.Fatal("expected group coordinates to bind")
	}
}

func TestConstraintEnvironmentInputVariable(t *testing.T) {
	activation := map[string]any{
		"subject": map[string]any{"email": "", "principals": []string{}},
		"group":   map[string]string{},
		"input":   map[string]any{"justification": "JIRA-42", "count": int64(3)},
	}
	if !compileAndEval(t, `input.justification.matches('^JIRA-\\d+$') && input.count <= 5`, activation) {
		t.Fatal("expected bound input variables to satisfy the predicate")
	}
}

func TestConstraintEnvironmentUnknownVariableFailsCompile(t *testing.T) {
	env, err := NewConstraintEnvironment()
	if err != nil {
		t.Fatalf("NewConstraintEnvironment: %v", err)
	}
	_, issues := env.Compile(`bogus.field == 1`)
	if issues == nil || issues.Err() == nil {
		t.Fatal("expected compile error for undeclared variable")
	}
}
