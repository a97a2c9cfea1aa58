package trigger

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEnv exposes the triggering element to condition expressions:
// namespace, id, key and value.
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("namespace", cel.StringType),
		cel.Variable("id", cel.IntType),
		cel.Variable("key", cel.StringType),
		cel.Variable("value", cel.DynType),
	)
})

// compileCondition compiles a CEL condition expression. Compile errors
// are registration errors.
func compileCondition(expr string) (cel.Program, error) {
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expr, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition program %q: %w", expr, err)
	}
	return prg, nil
}

// evalCondition evaluates a compiled condition against the triggering
// element.
func evalCondition(prg cel.Program, el Element) (bool, error) {
	out, _, err := prg.Eval(map[string]any{
		"namespace": el.Namespace,
		"id":        el.ID,
		"key":       el.Key,
		"value":     el.Value,
	})
	if err != nil {
		return false, err
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition result is not boolean: %T", out.Value())
	}
	return matched, nil
}
