package tool

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

// Registry is the closed set of tools one orchestrator may call. It is
// built once and never mutated afterwards.
type Registry struct {
	ordered []contractx.Tool
	byName  map[string]contractx.Tool
}

func NewRegistry(tools ...contractx.Tool) (*Registry, error) {
	r := &Registry{
		ordered: make([]contractx.Tool, 0, len(tools)),
		byName:  make(map[string]contractx.Tool, len(tools)),
	}
	for i, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("%w: tool at index %d is nil", contractx.ErrValidation, i)
		}
		key := normalizeName(t.Descriptor().Name)
		if key == "" {
			return nil, fmt.Errorf("%w: tool at index %d has no name", contractx.ErrValidation, i)
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("%w: duplicate tool name %q", contractx.ErrValidation, key)
		}
		r.byName[key] = t
		r.ordered = append(r.ordered, t)
	}
	return r, nil
}

// Resolve looks a tool up by name, ignoring case and surrounding spaces.
func (r *Registry) Resolve(name string) (contractx.Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.byName[normalizeName(name)]
	return t, ok
}

// Descriptors lists every tool in registration order.
func (r *Registry) Descriptors() []contractx.ToolDescriptor {
	if r == nil {
		return nil
	}
	out := make([]contractx.ToolDescriptor, 0, len(r.ordered))
	for _, t := range r.ordered {
		out = append(out, t.Descriptor())
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// inputParameters is the single-argument schema every chat tool exposes.
func inputParameters(desc string) map[string]contractx.Parameter {
	return map[string]contractx.Parameter{
		"input": {Desc: desc, Required: true},
	}
}
