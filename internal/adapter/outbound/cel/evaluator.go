// Package cel evaluates CEL rules that decide which remote URLs may be
// reached through the gateway.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
	"github.com/Sentinel-Gate/bareclient/pkg/bareclient"
)

// maxExpressionLength is the maximum allowed length for a rule.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit of one evaluation.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates remote URL rules.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates a new CEL evaluator with the target environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewTargetEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create target environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled program.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateNesting checks that the expression does not exceed the maximum allowed
// nesting depth for parentheses, brackets, and braces.
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
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a rule is syntactically valid, returns a
// bool, and stays within the length and nesting limits.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	if expr == "" {
		return errors.New("expression is empty")
	}

	if err := validateNesting(expr); err != nil {
		return err
	}

	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}

	return nil
}

// Evaluate runs a compiled program against t. The evaluation is bounded
// by ctx and by evalTimeout, whichever ends first.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, t bareclient.Target) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, BuildActivation(t))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// Guard allows a remote URL only when its rule evaluates to true.
// It implements bareclient.Guard.
type Guard struct {
	eval *Evaluator
	prg  cel.Program
	rule string
}

// NewGuard validates and compiles rule.
func NewGuard(rule string) (*Guard, error) {
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	if err := eval.ValidateExpression(rule); err != nil {
		return nil, err
	}
	prg, err := eval.Compile(rule)
	if err != nil {
		return nil, err
	}
	return &Guard{eval: eval, prg: prg, rule: rule}, nil
}

// Allow returns a *bare.TargetDeniedError unless the rule holds for t.
// An evaluation error denies the target.
func (g *Guard) Allow(ctx context.Context, t bareclient.Target) error {
	ok, err := g.eval.Evaluate(ctx, g.prg, t)
	if err != nil {
		return &bare.TargetDeniedError{URL: t.URL.String(), Rule: g.rule, Cause: err}
	}
	if !ok {
		return &bare.TargetDeniedError{URL: t.URL.String(), Rule: g.rule}
	}
	return nil
}
