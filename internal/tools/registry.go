package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role is a structural slot an analysis request may need.
type Role int

const (
	RoleTarget Role = 1 << iota
	RoleFeatures
	RoleGrouping
	RoleParams
)

func (r Role) String() string {
	switch r {
	case RoleTarget:
		return "target"
	case RoleFeatures:
		return "features"
	case RoleGrouping:
		return "grouping"
	case RoleParams:
		return "params"
	}
	var parts []string
	for _, single := range []Role{RoleTarget, RoleFeatures, RoleGrouping, RoleParams} {
		if r&single != 0 {
			parts = append(parts, single.String())
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Renderer names the presentation capability able to display a tool's success payload.
type Renderer string

const (
	RendererSummary    Renderer = "summary"
	RendererFrequency  Renderer = "frequency"
	RendererMatrix     Renderer = "matrix"
	RendererTest       Renderer = "test"
	RendererModel      Renderer = "model"
	RendererClusters   Renderer = "clusters"
	RendererText       Renderer = "text"
	RendererTimeSeries Renderer = "timeseries"
	RendererPivot      Renderer = "pivot"
	RendererRaw        Renderer = "raw"
)

// Param declares a free-form parameter and the value used when the user leaves it unset.
type Param struct {
	Name    string
	Default any
	Help    string
}

// Descriptor is one selectable analysis method.
type Descriptor struct {
	ID          string
	DisplayName string
	Category    string
	Roles       Role
	// MinFeatures applies when Roles includes RoleFeatures or RoleGrouping.
	MinFeatures int
	Params      []Param
	Renderer    Renderer
	// TargetLabel and FeatureLabel describe what the tool does with each slot.
	TargetLabel  string
	FeatureLabel string
}

// Requires reports whether the tool consumes the given role.
func (d Descriptor) Requires(r Role) bool { return d.Roles&r != 0 }

// ErrUnknownTool matches every UnknownToolError.
var ErrUnknownTool = errors.New("unknown tool")

// UnknownToolError is returned by Lookup for ids that are not registered.
type UnknownToolError struct {
	ID string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q (run `analytica tools` to list available tools)", e.ID)
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// Registry is an immutable catalog of tools keyed by id.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// NewRegistry builds a registry from descriptors. Duplicate or empty ids are rejected.
func NewRegistry(ds ...Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]Descriptor, len(ds))}
	for _, d := range ds {
		if d.ID == "" {
			return nil, errors.New("tool id cannot be empty")
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate tool id %q", d.ID)
		}
		if (d.Requires(RoleFeatures) || d.Requires(RoleGrouping)) && d.MinFeatures <= 0 {
			d.MinFeatures = 1
		}
		if d.Renderer == "" {
			d.Renderer = RendererRaw
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, &UnknownToolError{ID: id}
	}
	return d, nil
}

// All returns descriptors in catalog order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (r *Registry) Categories() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, d := range r.byID {
		if _, ok := seen[d.Category]; ok {
			continue
		}
		seen[d.Category] = struct{}{}
		out = append(out, d.Category)
	}
	sort.Strings(out)
	return out
}
