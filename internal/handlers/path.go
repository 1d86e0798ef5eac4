// Package handlers provides the built-in command handlers (`data`,
// `text`) every Cascada environment ships with (§4.5).
package handlers

import (
	"fmt"

	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/value"
)

func isUndef(v value.Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(value.Undef)
	return ok
}

func stepGet(container value.Value, step command.PathStep) (value.Value, bool) {
	switch s := step.(type) {
	case command.FieldStep:
		if dict, ok := container.(*value.Dict); ok {
			return dict.Get(s.Name)
		}
	case command.IndexStep:
		if list, ok := container.(*value.List); ok && s.Index >= 0 && s.Index < len(list.Items) {
			return list.Items[s.Index], true
		}
	case command.LastIndexStep:
		if list, ok := container.(*value.List); ok && len(list.Items) > 0 {
			return list.Items[len(list.Items)-1], true
		}
	case command.ExprIndexStep:
		switch k := s.Value.(type) {
		case value.Str:
			if dict, ok := container.(*value.Dict); ok {
				return dict.Get(string(k))
			}
		case value.Num:
			if list, ok := container.(*value.List); ok {
				idx := int(k)
				if idx >= 0 && idx < len(list.Items) {
					return list.Items[idx], true
				}
			}
		}
	}
	return value.Undef{}, false
}

func stepSet(container value.Value, step command.PathStep, v value.Value) error {
	switch s := step.(type) {
	case command.FieldStep:
		dict, ok := container.(*value.Dict)
		if !ok {
			return fmt.Errorf("cannot set field %q on a %s", s.Name, container.Kind())
		}
		dict.Set(s.Name, v)
		return nil
	case command.IndexStep:
		list, ok := container.(*value.List)
		if !ok {
			return fmt.Errorf("cannot index into a %s", container.Kind())
		}
		for len(list.Items) <= s.Index {
			list.Items = append(list.Items, value.Undef{})
		}
		list.Items[s.Index] = v
		return nil
	case command.LastIndexStep:
		list, ok := container.(*value.List)
		if !ok || len(list.Items) == 0 {
			return fmt.Errorf("no last element to address with []")
		}
		list.Items[len(list.Items)-1] = v
		return nil
	case command.ExprIndexStep:
		switch k := s.Value.(type) {
		case value.Str:
			dict, ok := container.(*value.Dict)
			if !ok {
				return fmt.Errorf("cannot set field %q on a %s", string(k), container.Kind())
			}
			dict.Set(string(k), v)
			return nil
		case value.Num:
			return stepSet(container, command.IndexStep{Index: int(k)}, v)
		}
	}
	return fmt.Errorf("unsupported path step %T", step)
}

// navigate walks path[:len(path)-1] from root, auto-creating intermediate
// Dict/List containers as needed when create is true, and returns the
// immediate parent of the final step.
func navigate(root *value.Value, path []command.PathStep, create bool) (value.Value, error) {
	cur := *root
	for i := 0; i < len(path)-1; i++ {
		step := path[i]
		next, ok := stepGet(cur, step)
		if !ok || isUndef(next) {
			if !create {
				return nil, fmt.Errorf("path segment %v is undefined", step)
			}
			switch path[i+1].(type) {
			case command.IndexStep, command.LastIndexStep, command.ExprIndexStep:
				next = value.NewList()
			default:
				next = value.NewDict()
			}
			if err := stepSet(cur, step, next); err != nil {
				return nil, err
			}
		}
		cur = next
	}
	return cur, nil
}

// pathGet resolves the value currently addressed by path.
func pathGet(root value.Value, path []command.PathStep) (value.Value, bool) {
	cur := root
	for _, step := range path {
		next, ok := stepGet(cur, step)
		if !ok {
			return value.Undef{}, false
		}
		cur = next
	}
	return cur, true
}

// pathSet writes v at path, auto-creating intermediate containers and
// replacing the root itself when path is empty.
func pathSet(root *value.Value, path []command.PathStep, v value.Value) error {
	if len(path) == 0 {
		*root = v
		return nil
	}
	parent, err := navigate(root, path, true)
	if err != nil {
		return err
	}
	return stepSet(parent, path[len(path)-1], v)
}

// ensureList resolves (auto-creating if undefined) the list addressed by
// path, or the root itself when path is empty.
func ensureList(root *value.Value, path []command.PathStep) (*value.List, error) {
	if len(path) == 0 {
		if isUndef(*root) {
			l := value.NewList()
			*root = l
			return l, nil
		}
		l, ok := (*root).(*value.List)
		if !ok {
			return nil, fmt.Errorf("root is a %s, not a list", (*root).Kind())
		}
		return l, nil
	}
	parent, err := navigate(root, path, true)
	if err != nil {
		return nil, err
	}
	last := path[len(path)-1]
	cur, ok := stepGet(parent, last)
	if !ok || isUndef(cur) {
		l := value.NewList()
		if err := stepSet(parent, last, l); err != nil {
			return nil, err
		}
		return l, nil
	}
	l, ok := cur.(*value.List)
	if !ok {
		return nil, fmt.Errorf("target is a %s, not a list", cur.Kind())
	}
	return l, nil
}

// ensureDict resolves (auto-creating if undefined) the dict addressed by
// path, or the root itself when path is empty.
func ensureDict(root *value.Value, path []command.PathStep) (*value.Dict, error) {
	if len(path) == 0 {
		if isUndef(*root) {
			d := value.NewDict()
			*root = d
			return d, nil
		}
		d, ok := (*root).(*value.Dict)
		if !ok {
			return nil, fmt.Errorf("root is a %s, not a dict", (*root).Kind())
		}
		return d, nil
	}
	parent, err := navigate(root, path, true)
	if err != nil {
		return nil, err
	}
	last := path[len(path)-1]
	cur, ok := stepGet(parent, last)
	if !ok || isUndef(cur) {
		d := value.NewDict()
		if err := stepSet(parent, last, d); err != nil {
			return nil, err
		}
		return d, nil
	}
	d, ok := cur.(*value.Dict)
	if !ok {
		return nil, fmt.Errorf("target is a %s, not a dict", cur.Kind())
	}
	return d, nil
}
