package salesman

import "context"

// HookFunc is one stage of a hook chain. A nil result leaves the threaded
// value unchanged; an error aborts the chain.
type HookFunc func(ctx context.Context, value any) (any, error)

type hookSet struct {
	pre  []HookFunc
	post []HookFunc
}

// hookChain lays out the stages for nested hook names: pre hooks
// outermost-first, the operation, then post hooks innermost-first.
func hookChain(hooks map[string]*hookSet, names []string, op HookFunc) []HookFunc {
	var stages []HookFunc
	for _, name := range names {
		if h := hooks[name]; h != nil {
			stages = append(stages, h.pre...)
		}
	}
	if op != nil {
		stages = append(stages, op)
	}
	for i := len(names) - 1; i >= 0; i-- {
		if h := hooks[names[i]]; h != nil {
			stages = append(stages, h.post...)
		}
	}
	return stages
}

// runSequence folds value through stages one at a time.
func runSequence(ctx context.Context, stages []HookFunc, value any) (any, error) {
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := stage(ctx, value)
		if err != nil {
			return nil, err
		}
		if next != nil {
			value = next
		}
	}
	return value, nil
}
