package handlers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/value"
)

// Data is the built-in `data` handler: it maintains a single Value
// object, initially an empty Dict but replaceable wholesale by a
// root-level `set` (§4.5).
type Data struct {
	root value.Value
}

func NewData() *Data {
	return &Data{root: value.NewDict()}
}

func (d *Data) Value() value.Value { return d.root }

// Snapshot/Restore let the guard engine roll the handler back (§4.6).
func (d *Data) Snapshot() any { return cloneValue(d.root) }

func (d *Data) Restore(snap any) { d.root = cloneValue(snap.(value.Value)) }

func cloneValue(v value.Value) value.Value {
	switch t := v.(type) {
	case *value.Dict:
		out := value.NewDict()
		for _, k := range t.Keys() {
			item, _ := t.Get(k)
			out.Set(k, cloneValue(item))
		}
		return out
	case *value.List:
		out := value.NewList()
		for _, it := range t.Items {
			out.Items = append(out.Items, cloneValue(it))
		}
		return out
	default:
		return v
	}
}

func (d *Data) Dispatch(rec *command.Record) (value.Value, error) {
	switch rec.Method {
	case "set":
		return d.set(rec)
	case "push":
		return d.pushPop(rec, true, false)
	case "unshift":
		return d.pushPop(rec, true, true)
	case "pop":
		return d.pushPop(rec, false, false)
	case "shift":
		return d.pushPop(rec, false, true)
	case "reverse":
		return d.reverse(rec)
	case "concat":
		return d.concat(rec)
	case "merge":
		return d.merge(rec, false)
	case "deepMerge":
		return d.merge(rec, true)
	case "append":
		return d.appendString(rec)
	case "delete":
		return d.delete(rec)
	case "add", "sub", "mul", "div", "inc", "dec", "and", "or":
		return d.compound(rec)
	case "toUpperCase", "toLowerCase", "trim", "trimStart", "trimEnd",
		"replace", "replaceAll", "split", "charAt", "repeat", "slice", "substring":
		return d.stringMethod(rec)
	case "at", "sort", "sortWith", "arraySlice":
		return d.arrayMethod(rec)
	default:
		return nil, fmt.Errorf("data handler has no method %q", rec.Method)
	}
}

func (d *Data) set(rec *command.Record) (value.Value, error) {
	if len(rec.Args) != 1 {
		return nil, fmt.Errorf("set requires exactly one argument")
	}
	v := rec.Args[0]
	if err := pathSet(&d.root, rec.Path, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Data) pushPop(rec *command.Record, push, fromStart bool) (value.Value, error) {
	list, err := ensureList(&d.root, rec.Path)
	if err != nil {
		return nil, err
	}
	if push {
		if len(rec.Args) != 1 {
			return nil, fmt.Errorf("%s requires exactly one argument", rec.Method)
		}
		if fromStart {
			list.Items = append([]value.Value{rec.Args[0]}, list.Items...)
		} else {
			list.Items = append(list.Items, rec.Args[0])
		}
		return rec.Args[0], nil
	}
	if len(list.Items) == 0 {
		return value.Undef{}, nil
	}
	var out value.Value
	if fromStart {
		out = list.Items[0]
		list.Items = list.Items[1:]
	} else {
		out = list.Items[len(list.Items)-1]
		list.Items = list.Items[:len(list.Items)-1]
	}
	return out, nil
}

func (d *Data) reverse(rec *command.Record) (value.Value, error) {
	list, err := ensureList(&d.root, rec.Path)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list.Items)-1; i < j; i, j = i+1, j-1 {
		list.Items[i], list.Items[j] = list.Items[j], list.Items[i]
	}
	return list, nil
}

func (d *Data) concat(rec *command.Record) (value.Value, error) {
	list, err := ensureList(&d.root, rec.Path)
	if err != nil {
		return nil, err
	}
	if len(rec.Args) != 1 {
		return nil, fmt.Errorf("concat requires exactly one argument")
	}
	other, ok := rec.Args[0].(*value.List)
	if !ok {
		return nil, fmt.Errorf("concat requires a list argument, got %s", rec.Args[0].Kind())
	}
	list.Items = append(list.Items, other.Items...)
	return list, nil
}

func (d *Data) merge(rec *command.Record, deep bool) (value.Value, error) {
	dict, err := ensureDict(&d.root, rec.Path)
	if err != nil {
		return nil, err
	}
	if len(rec.Args) != 1 {
		return nil, fmt.Errorf("%s requires exactly one argument", rec.Method)
	}
	other, ok := rec.Args[0].(*value.Dict)
	if !ok {
		return nil, fmt.Errorf("%s requires a dict argument, got %s", rec.Method, rec.Args[0].Kind())
	}
	mergeInto(dict, other, deep)
	return dict, nil
}

func mergeInto(dst, src *value.Dict, deep bool) {
	for _, k := range src.Keys() {
		sv, _ := src.Get(k)
		if deep {
			if dv, ok := dst.Get(k); ok {
				if dDict, ok := dv.(*value.Dict); ok {
					if sDict, ok := sv.(*value.Dict); ok {
						mergeInto(dDict, sDict, true)
						continue
					}
				}
			}
		}
		dst.Set(k, sv)
	}
}

func (d *Data) appendString(rec *command.Record) (value.Value, error) {
	if len(rec.Args) != 1 {
		return nil, fmt.Errorf("append requires exactly one argument")
	}
	cur, ok := pathGet(d.root, rec.Path)
	if !ok {
		return nil, fmt.Errorf("append target is undefined")
	}
	s, ok := cur.(value.Str)
	if !ok {
		return nil, fmt.Errorf("append requires a string target, got %s", cur.Kind())
	}
	result := value.Str(string(s) + toStr(rec.Args[0]))
	if err := pathSet(&d.root, rec.Path, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Data) delete(rec *command.Record) (value.Value, error) {
	if len(rec.Path) == 0 {
		d.root = value.NewDict()
		return value.Undef{}, nil
	}
	parent, err := navigate(&d.root, rec.Path, false)
	if err != nil {
		return value.Undef{}, nil
	}
	last := rec.Path[len(rec.Path)-1]
	switch s := last.(type) {
	case command.FieldStep:
		if dict, ok := parent.(*value.Dict); ok {
			dict.Delete(s.Name)
		}
	case command.IndexStep:
		if list, ok := parent.(*value.List); ok && s.Index >= 0 && s.Index < len(list.Items) {
			list.Items = append(list.Items[:s.Index], list.Items[s.Index+1:]...)
		}
	}
	return value.Undef{}, nil
}

func (d *Data) compound(rec *command.Record) (value.Value, error) {
	cur, _ := pathGet(d.root, rec.Path)
	if isUndef(cur) {
		cur = value.Num(0)
	}

	var arg value.Value
	if len(rec.Args) > 0 {
		arg = rec.Args[0]
	}

	var result value.Value
	switch rec.Method {
	case "add":
		if s, ok := cur.(value.Str); ok {
			result = value.Str(string(s) + toStr(arg))
			break
		}
		n, an, err := numPair(cur, arg)
		if err != nil {
			return nil, err
		}
		result = value.Num(n + an)
	case "sub":
		n, an, err := numPair(cur, arg)
		if err != nil {
			return nil, err
		}
		result = value.Num(n - an)
	case "mul":
		n, an, err := numPair(cur, arg)
		if err != nil {
			return nil, err
		}
		result = value.Num(n * an)
	case "div":
		n, an, err := numPair(cur, arg)
		if err != nil {
			return nil, err
		}
		if an == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		result = value.Num(n / an)
	case "inc":
		n, _, _ := numPair(cur, value.Num(0))
		result = value.Num(n + 1)
	case "dec":
		n, _, _ := numPair(cur, value.Num(0))
		result = value.Num(n - 1)
	case "and":
		if !value.Truthy(cur) {
			result = cur
		} else {
			result = arg
		}
	case "or":
		if value.Truthy(cur) {
			result = cur
		} else {
			result = arg
		}
	}
	if err := pathSet(&d.root, rec.Path, result); err != nil {
		return nil, err
	}
	return result, nil
}

func numPair(a, b value.Value) (float64, float64, error) {
	an, ok := a.(value.Num)
	if !ok {
		return 0, 0, fmt.Errorf("expected number, got %s", a.Kind())
	}
	bn, ok := b.(value.Num)
	if !ok {
		return 0, 0, fmt.Errorf("expected number, got %s", b.Kind())
	}
	return float64(an), float64(bn), nil
}

func toStr(v value.Value) string {
	if s, ok := v.(value.Str); ok {
		return string(s)
	}
	return v.String()
}

func (d *Data) stringMethod(rec *command.Record) (value.Value, error) {
	cur, ok := pathGet(d.root, rec.Path)
	if !ok {
		return nil, fmt.Errorf("%s target is undefined", rec.Method)
	}
	s, ok := cur.(value.Str)
	if !ok {
		return nil, fmt.Errorf("%s requires a string target, got %s", rec.Method, cur.Kind())
	}
	str := string(s)
	arg := func(i int) string {
		if i < len(rec.Args) {
			return toStr(rec.Args[i])
		}
		return ""
	}
	argNum := func(i int, def int) int {
		if i < len(rec.Args) {
			if n, ok := rec.Args[i].(value.Num); ok {
				return int(n)
			}
		}
		return def
	}

	var result string
	switch rec.Method {
	case "toUpperCase":
		result = strings.ToUpper(str)
	case "toLowerCase":
		result = strings.ToLower(str)
	case "trim":
		result = strings.TrimSpace(str)
	case "trimStart":
		result = strings.TrimLeft(str, " \t\n\r")
	case "trimEnd":
		result = strings.TrimRight(str, " \t\n\r")
	case "replace":
		result = strings.Replace(str, arg(0), arg(1), 1)
	case "replaceAll":
		result = strings.ReplaceAll(str, arg(0), arg(1))
	case "repeat":
		result = strings.Repeat(str, argNum(0, 0))
	case "charAt":
		i := argNum(0, 0)
		if i < 0 || i >= len(str) {
			result = ""
		} else {
			result = string(str[i])
		}
	case "slice", "substring":
		start := argNum(0, 0)
		end := argNum(1, len(str))
		if start < 0 {
			start = 0
		}
		if end > len(str) {
			end = len(str)
		}
		if start > end {
			start = end
		}
		result = str[start:end]
	case "split":
		list := value.NewList()
		for _, part := range strings.Split(str, arg(0)) {
			list.Items = append(list.Items, value.Str(part))
		}
		if err := pathSet(&d.root, rec.Path, list); err != nil {
			return nil, err
		}
		return list, nil
	}
	out := value.Str(result)
	if err := pathSet(&d.root, rec.Path, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Data) arrayMethod(rec *command.Record) (value.Value, error) {
	list, err := ensureList(&d.root, rec.Path)
	if err != nil {
		return nil, err
	}
	switch rec.Method {
	case "at":
		idx := 0
		if len(rec.Args) > 0 {
			if n, ok := rec.Args[0].(value.Num); ok {
				idx = int(n)
			}
		}
		if idx < 0 {
			idx += len(list.Items)
		}
		if idx < 0 || idx >= len(list.Items) {
			return value.Undef{}, nil
		}
		return list.Items[idx], nil
	case "sort":
		sort.SliceStable(list.Items, func(i, j int) bool {
			return defaultLess(list.Items[i], list.Items[j])
		})
		return list, nil
	case "sortWith":
		if len(rec.Args) != 1 {
			return nil, fmt.Errorf("sortWith requires a comparator argument")
		}
		cmp, ok := rec.Args[0].(*value.Func)
		if !ok {
			return nil, fmt.Errorf("sortWith requires a function argument")
		}
		var sortErr error
		sort.SliceStable(list.Items, func(i, j int) bool {
			if sortErr != nil {
				return false
			}
			res, err := cmp.Call([]value.Value{list.Items[i], list.Items[j]})
			if err != nil {
				sortErr = err
				return false
			}
			n, _ := res.(value.Num)
			return n < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return list, nil
	case "arraySlice":
		start, end := 0, len(list.Items)
		if len(rec.Args) > 0 {
			if n, ok := rec.Args[0].(value.Num); ok {
				start = int(n)
			}
		}
		if len(rec.Args) > 1 {
			if n, ok := rec.Args[1].(value.Num); ok {
				end = int(n)
			}
		}
		if start < 0 {
			start = 0
		}
		if end > len(list.Items) {
			end = len(list.Items)
		}
		if start > end {
			start = end
		}
		out := value.NewList(append([]value.Value(nil), list.Items[start:end]...)...)
		return out, nil
	}
	return nil, fmt.Errorf("unsupported array method %q", rec.Method)
}

func defaultLess(a, b value.Value) bool {
	if an, ok := a.(value.Num); ok {
		if bn, ok := b.(value.Num); ok {
			return an < bn
		}
	}
	return toStr(a) < toStr(b)
}
