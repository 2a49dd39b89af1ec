package compat

import (
	"encoding/json"
	"strings"
)

// ShapeFilter prunes keys from a JSON object by dotted-path pattern,
// supporting a "*" wildcard segment that matches any key at that level.
// Used to strip provider-unsupported JSON-schema keywords (e.g. a
// provider that rejects "additionalProperties" anywhere in a tool's
// parameters schema).
type ShapeFilter struct {
	DropPaths []string
}

// Apply removes every key matching a configured drop path and returns
// the re-marshaled JSON.
func (f ShapeFilter) Apply(body json.RawMessage) (json.RawMessage, error) {
	var obj any
	if err := json.Unmarshal(body, &obj); err != nil {
		return body, err
	}
	for _, p := range f.DropPaths {
		obj = dropPath(obj, strings.Split(p, "."))
	}
	return json.Marshal(obj)
}

func dropPath(node any, segs []string) any {
	if len(segs) == 0 {
		return node
	}
	switch v := node.(type) {
	case map[string]any:
		seg := segs[0]
		if len(segs) == 1 {
			if seg == "*" {
				return map[string]any{}
			}
			delete(v, seg)
			return v
		}
		if seg == "*" {
			for k, child := range v {
				v[k] = dropPath(child, segs[1:])
			}
			return v
		}
		if child, ok := v[seg]; ok {
			v[seg] = dropPath(child, segs[1:])
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = dropPath(child, segs)
		}
		return v
	default:
		return node
	}
}
