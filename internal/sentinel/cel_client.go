package sentinel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELClient evaluates a boolean CEL expression locally. The expression sees
// two variables: action (string) and context (map).
//
//	action == "model_selection" && context.privacyTier != "restricted"
type CELClient struct {
	expr string
	prg  cel.Program
}

func NewCELClient(expr string) (*CELClient, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile policy: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("policy must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program policy: %w", err)
	}
	return &CELClient{expr: expr, prg: prg}, nil
}

// Check reports evaluation errors (for example a missing context key) as
// ErrUnavailable so the gate strategy decides the outcome.
func (c *CELClient) Check(ctx context.Context, req Request) (Decision, error) {
	vars := map[string]interface{}{
		"action":  req.Action,
		"context": req.Context,
	}
	if req.Context == nil {
		vars["context"] = map[string]interface{}{}
	}
	out, _, err := c.prg.ContextEval(ctx, vars)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: evaluate policy: %v", ErrUnavailable, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return Decision{}, fmt.Errorf("%w: policy returned %T", ErrUnavailable, out.Value())
	}
	if !allowed {
		return Decision{Valid: false, PolicyID: "sentinel-cel", Reason: "denied by " + c.expr}, nil
	}
	return Decision{Valid: true, PolicyID: "sentinel-cel", Reason: "approved"}, nil
}
