package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/jitgroups/broker/internal/domain/policy"
)

// maxExpressionLength bounds predicate source size.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, preventing a pathological
// predicate from burning unbounded CPU during evaluation.
const maxCostBudget = 100_000

// maxNestingDepth bounds parenthesis/bracket/brace nesting in a predicate.
const maxNestingDepth = 50

// evalTimeout bounds a single predicate evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked during evaluation.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates ExpressionConstraint predicates. It
// implements policy.PredicateEvaluator. Compiled programs are cached by
// expression text, so repeated evaluations of the same predicate (e.g. the
// same constraint checked across many requests) skip recompilation (§9:
// "compile lazily, cache per constraint instance").
type Evaluator struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

var _ policy.PredicateEvaluator = (*Evaluator)(nil)

// NewEvaluator constructs an Evaluator with the fixed constraint schema.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewConstraintEnvironment()
	if err != nil {
		return nil, fmt.Errorf("cel: building constraint environment: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// ValidateExpression checks that expr is syntactically valid, within the
// length and nesting limits, and type-checks against the constraint schema.
// Intended for use at policy-load time so malformed predicates are rejected
// before any request depends on them.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("cel: expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("cel: expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	_, err := e.compile(expr)
	if err != nil {
		return fmt.Errorf("cel: invalid expression: %w", err)
	}
	return nil
}

// compile returns a cached program for expr, compiling and caching it on a
// miss.
func (e *Evaluator) compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Evaluate implements policy.PredicateEvaluator. It compiles (or reuses a
// cached compile of) predicate, binds the fixed subject/group variables plus
// the constraint's already-type-checked input map, and runs it under a
// bounded timeout.
func (e *Evaluator) Evaluate(ctx context.Context, predicate string, input policy.EvaluationInput, bound map[string]any) (bool, error) {
	if len(predicate) > maxExpressionLength {
		return false, fmt.Errorf("cel: expression too long: %d characters (max %d)", len(predicate), maxExpressionLength)
	}
	if err := validateNesting(predicate); err != nil {
		return false, err
	}

	prg, err := e.compile(predicate)
	if err != nil {
		return false, err
	}

	activation := buildActivation(input, bound)

	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(evalCtx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return b, nil
}

// buildActivation constructs the CEL activation map for one evaluation: the
// subject's email and stringified principals, the group coordinates, and the
// constraint's bound input variables (§4.3).
func buildActivation(input policy.EvaluationInput, bound map[string]any) map[string]any {
	principals := input.SubjectPrincipals
	if principals == nil {
		principals = []string{}
	}
	if bound == nil {
		bound = map[string]any{}
	}
	return map[string]any{
		"subject": map[string]any{
			"email":      input.SubjectEmail,
			"principals": principals,
		},
		"group": map[string]string{
			"environment": input.Environment,
			"system":      input.System,
			"name":        input.GroupName,
		},
		"input": bound,
	}
}

// validateNesting checks that expr does not exceed maxNestingDepth levels of
// parenthesis/bracket/brace nesting.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("cel: expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
