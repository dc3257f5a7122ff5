package selection

import (
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// FromResolveInfo flattens the resolver's field ASTs into a Tree. The
// returned tree holds the nested selection of the resolved field, with
// fragment spreads inlined. A field without a selection set yields an
// empty tree.
func FromResolveInfo(info graphql.ResolveInfo) *Tree {
	tree := NewTree()
	for _, field := range info.FieldASTs {
		if field == nil || field.SelectionSet == nil {
			continue
		}
		flattenSelections(tree, field.SelectionSet, info.Fragments, map[string]bool{})
	}
	return tree
}

// FromFields flattens a slice of field ASTs, merging their selection
// sets into one tree. Fragments are looked up by name from the
// surrounding query's fragment table.
func FromFields(fields []*ast.Field, fragments map[string]ast.Definition) *Tree {
	tree := NewTree()
	for _, field := range fields {
		if field == nil || field.SelectionSet == nil {
			continue
		}
		flattenSelections(tree, field.SelectionSet, fragments, map[string]bool{})
	}
	return tree
}

func flattenSelections(tree *Tree, selectionSet *ast.SelectionSet, fragments map[string]ast.Definition, inFlight map[string]bool) {
	if selectionSet == nil {
		return
	}
	for _, sel := range selectionSet.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name == nil || s.Name.Value == "" || s.Name.Value == "__typename" {
				continue
			}
			node := &Node{Arguments: flattenArguments(s.Arguments)}
			if s.SelectionSet != nil {
				node.Children = NewTree()
				flattenSelections(node.Children, s.SelectionSet, fragments, inFlight)
			}
			tree.add(s.Name.Value, node)
		case *ast.InlineFragment:
			flattenSelections(tree, s.SelectionSet, fragments, inFlight)
		case *ast.FragmentSpread:
			if s.Name == nil {
				continue
			}
			name := s.Name.Value
			// inFlight guards against fragment spread cycles.
			if name == "" || inFlight[name] {
				continue
			}
			def, ok := fragments[name]
			if !ok {
				continue
			}
			fragment, ok := def.(*ast.FragmentDefinition)
			if !ok || fragment.SelectionSet == nil {
				continue
			}
			inFlight[name] = true
			flattenSelections(tree, fragment.SelectionSet, fragments, inFlight)
			delete(inFlight, name)
		}
	}
}

func flattenArguments(args []*ast.Argument) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for _, arg := range args {
		if arg == nil || arg.Name == nil {
			continue
		}
		out[arg.Name.Value] = literalValue(arg.Value)
	}
	return out
}

// literalValue decodes an AST literal: strings, booleans, and enums
// verbatim, numeric literals as float64, objects and lists recursively.
// Variables have no value at flatten time and decode to nil.
func literalValue(value ast.Value) any {
	switch v := value.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.IntValue:
		parsed, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return v.Value
		}
		return parsed
	case *ast.FloatValue:
		parsed, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return v.Value
		}
		return parsed
	case *ast.ListValue:
		items := make([]any, 0, len(v.Values))
		for _, item := range v.Values {
			items = append(items, literalValue(item))
		}
		return items
	case *ast.ObjectValue:
		obj := make(map[string]any, len(v.Fields))
		for _, field := range v.Fields {
			if field == nil || field.Name == nil {
				continue
			}
			obj[field.Name.Value] = literalValue(field.Value)
		}
		return obj
	default:
		return nil
	}
}
