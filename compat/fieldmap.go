package compat

import (
	"encoding/json"
	"strings"
)

// FieldRule is one declarative field-mapping operation applied to a JSON
// tool-parameters schema or request body fragment during compatibility
// reshaping (spec §4.3 field-mapping: rename/move/drop rules).
type FieldRule struct {
	Op   FieldOp
	From string // dotted path, e.g. "properties.command"
	To   string // destination dotted path, only used by rename/move
}

// FieldOp is the kind of declarative field operation.
type FieldOp string

const (
	FieldOpRename FieldOp = "rename"
	FieldOpMove   FieldOp = "move"
	FieldOpDrop   FieldOp = "drop"
)

// ApplyFieldRules mutates a JSON object (decoded to map[string]any) by
// applying rename/move/drop rules in order. It returns the re-marshaled
// JSON. Unknown paths are silently skipped, matching the teacher's
// request-rewriter style of being permissive about partially-shaped
// upstream payloads.
func ApplyFieldRules(body json.RawMessage, rules []FieldRule) (json.RawMessage, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return body, err
	}
	for _, r := range rules {
		switch r.Op {
		case FieldOpRename, FieldOpMove:
			if v, ok := popPath(obj, r.From); ok {
				setPath(obj, r.To, v)
			}
		case FieldOpDrop:
			popPath(obj, r.From)
		}
	}
	return json.Marshal(obj)
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func popPath(obj map[string]any, path string) (any, bool) {
	segs := splitPath(path)
	cur := obj
	for i, s := range segs {
		if i == len(segs)-1 {
			v, ok := cur[s]
			if ok {
				delete(cur, s)
			}
			return v, ok
		}
		next, ok := cur[s].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func setPath(obj map[string]any, path string, value any) {
	segs := splitPath(path)
	cur := obj
	for i, s := range segs {
		if i == len(segs)-1 {
			cur[s] = value
			return
		}
		next, ok := cur[s].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[s] = next
		}
		cur = next
	}
}
