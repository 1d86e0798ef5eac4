package value

import "context"

// ResolveDeep walks List/Dict containers and awaits every leaf
// transitively, returning fresh List/Dict copies in which each Pending
// leaf is replaced by its settled value. A leaf that settles to Poison stays Poison exactly where it was
// found — resolve_deep never collapses a whole container into a single
// Poison, so sibling branches are unaffected (§4.1.3). Obj values are
// never walked; they are returned by identity. The only error ResolveDeep
// can return is context cancellation — Cascada values never throw.
func ResolveDeep(ctx context.Context, v Value) (Value, error) {
	switch t := v.(type) {
	case *Pending:
		settled, err := t.Await(ctx)
		if err != nil {
			return nil, err
		}
		return ResolveDeep(ctx, settled)
	case *List:
		out := NewList()
		for _, item := range t.Items {
			rv, err := ResolveDeep(ctx, item)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, rv)
		}
		return out, nil
	case *Dict:
		out := NewDict()
		for _, k := range t.Keys() {
			iv, _ := t.Get(k)
			rv, err := ResolveDeep(ctx, iv)
			if err != nil {
				return nil, err
			}
			out.Set(k, rv)
		}
		return out, nil
	default:
		return v, nil
	}
}
