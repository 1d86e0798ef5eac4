package runtime

import (
	"fmt"

	"github.com/cascadalang/cascada/internal/value"
)

func errRangeArg(a value.Value) error {
	return fmt.Errorf("range() arguments must be numbers, got %s", a.Kind())
}

func errRangeArity(n int) error {
	return fmt.Errorf("range() takes 1 to 3 arguments, got %d", n)
}

func errRangeStep() error {
	return fmt.Errorf("range() step argument must not be zero")
}

// registerBuiltins installs the handful of globals the engine itself
// relies on (§8's worked example uses `range` directly) — the broader
// filter/test catalog is explicitly out of scope and left to the host
// to register on Env.Functions/Env.Tests.
func registerBuiltins(env *Env) {
	env.Functions["range"] = &value.Func{Name: "range", Call: rangeFunc}
}

// rangeFunc implements `range(stop)` / `range(start, stop)` /
// `range(start, stop, step)`, the one built-in most templates need for
// `for i in range(n)` loops.
func rangeFunc(args []value.Value) (value.Value, error) {
	var start, stop, step float64 = 0, 0, 1

	nums := make([]float64, 0, len(args))
	for _, a := range args {
		n, ok := a.(value.Num)
		if !ok {
			return nil, errRangeArg(a)
		}
		nums = append(nums, float64(n))
	}

	switch len(nums) {
	case 1:
		stop = nums[0]
	case 2:
		start, stop = nums[0], nums[1]
	case 3:
		start, stop, step = nums[0], nums[1], nums[2]
	default:
		return nil, errRangeArity(len(args))
	}
	if step == 0 {
		return nil, errRangeStep()
	}

	out := value.NewList()
	if step > 0 {
		for v := start; v < stop; v += step {
			out.Items = append(out.Items, value.Num(v))
		}
	} else {
		for v := start; v > stop; v += step {
			out.Items = append(out.Items, value.Num(v))
		}
	}
	return out, nil
}
