package flowconfig

import (
	"fmt"

	"github.com/c360/formflow/errors"
)

// Registry indexes loaded flows by name. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	flows map[string]*FlowConfig
	names []string
}

// NewRegistry validates the flows and indexes them by name
func NewRegistry(flows []*FlowConfig) (*Registry, error) {
	r := &Registry{flows: make(map[string]*FlowConfig, len(flows))}
	for _, flow := range flows {
		if flow == nil {
			continue
		}
		if err := flow.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.flows[flow.Name]; exists {
			return nil, errors.WrapInvalid(
				fmt.Errorf("flow %s is defined more than once", flow.Name),
				"Registry", "NewRegistry", "duplicate flow check")
		}
		r.flows[flow.Name] = flow
	}
	r.names = sortedKeys(r.flows)
	return r, nil
}

// LoadRegistry loads the YAML files and builds a Registry from them
func LoadRegistry(paths ...string) (*Registry, error) {
	flows, err := LoadFiles(paths...)
	if err != nil {
		return nil, err
	}
	return NewRegistry(flows)
}

// Flow returns the named flow
func (r *Registry) Flow(name string) (*FlowConfig, error) {
	flow, ok := r.flows[name]
	if !ok {
		return nil, errors.NewNotFound(name, "",
			fmt.Sprintf("Flow %s not found in flow configuration.", name))
	}
	return flow, nil
}

// Screen returns the named screen in the named flow
func (r *Registry) Screen(flow, screen string) (*ScreenConfig, error) {
	f, err := r.Flow(flow)
	if err != nil {
		return nil, err
	}
	return f.Screen(screen)
}

// Subflow returns the named subflow in the named flow
func (r *Registry) Subflow(flow, subflow string) (*SubflowConfig, error) {
	f, err := r.Flow(flow)
	if err != nil {
		return nil, err
	}
	return f.Subflow(subflow)
}

// Names returns the flow names sorted
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
