package queryir

import "sort"

// BuildFilter converts a normalized filter value into a filter tree.
//
// Accepted shapes:
//   - {"and": [...]} / {"or": [...]}: boolean group of nested items
//   - {"field": "title", "op": "gt", "val": 3}: a single comparison (op defaults to eq)
//   - {"title": "x", "age": {"op": "gt", "val": 3}}: field map, ANDed
//   - [item, item, ...]: list of items, ANDed
//
// Items of any other shape are dropped. Returns nil when nothing remains.
func BuildFilter(raw any) FilterNode {
	switch v := raw.(type) {
	case map[string]any:
		return buildObject(v)
	case []any:
		return collapse(And, buildItems(v))
	default:
		return nil
	}
}

func buildItems(items []any) []FilterNode {
	var nodes []FilterNode
	for _, item := range items {
		if node := BuildFilter(item); node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func buildObject(m map[string]any) FilterNode {
	if group, ok := m["and"]; ok {
		return buildGroup(And, group)
	}
	if group, ok := m["or"]; ok {
		return buildGroup(Or, group)
	}
	if field, ok := m["field"]; ok {
		name, _ := field.(string)
		if name == "" {
			return nil
		}
		return Compare(name, opString(m["op"]), m["val"])
	}
	return buildFieldMap(m)
}

// buildGroup always returns a Boolean, even with no children, so an empty
// group stays visible to Validate.
func buildGroup(op BoolOp, raw any) FilterNode {
	var children []FilterNode
	switch v := raw.(type) {
	case []any:
		children = buildItems(v)
	case map[string]any:
		if node := buildObject(v); node != nil {
			children = []FilterNode{node}
		}
	}
	return &Boolean{Op: op, Children: children}
}

// buildFieldMap ANDs one comparison per key, in key order.
func buildFieldMap(m map[string]any) FilterNode {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]FilterNode, 0, len(keys))
	for _, field := range keys {
		if field == "" {
			continue
		}
		value := m[field]
		if spec, ok := value.(map[string]any); ok {
			if op, ok := spec["op"]; ok {
				nodes = append(nodes, Compare(field, opString(op), spec["val"]))
				continue
			}
		}
		nodes = append(nodes, Eq(field, value))
	}
	return collapse(And, nodes)
}

func opString(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return string(OpEq)
}

func collapse(op BoolOp, nodes []FilterNode) FilterNode {
	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return nodes[0]
	default:
		return &Boolean{Op: op, Children: nodes}
	}
}
