package plugin

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

// Kind names the registry a lookup went to
type Kind string

// Registry kinds
const (
	KindCondition Kind = "condition"
	KindAction    Kind = "action"
	KindFilter    Kind = "filter"
)

// MissFunc is called whenever a configured name is not registered
type MissFunc func(kind Kind, name string)

// Option configures a registry
type Option func(*options)

type options struct {
	logger *slog.Logger
	onMiss MissFunc
}

// WithLogger sets the logger used to report misses
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMissHook registers a callback for unregistered names
func WithMissHook(fn MissFunc) Option {
	return func(o *options) { o.onMiss = fn }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) miss(kind Kind, name string, attrs ...any) {
	o.logger.Warn(fmt.Sprintf("%s is not registered", kind), append([]any{"name", name}, attrs...)...)
	if o.onMiss != nil {
		o.onMiss(kind, name)
	}
}

type named interface{ Name() string }

func index[T named](component string, units []T) (map[string]T, error) {
	out := make(map[string]T, len(units))
	for _, u := range units {
		name := u.Name()
		if name == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, component, "New", "name validation")
		}
		if _, exists := out[name]; exists {
			return nil, errors.WrapInvalid(fmt.Errorf("%q is already registered", name), component, "New",
				"duplicate name check")
		}
		out[name] = u
	}
	return out, nil
}

func names[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Conditions is an immutable name-keyed set of conditions
type Conditions struct {
	units map[string]Condition
	opts  options
}

// NewConditions indexes conditions by name. Duplicate or empty names are
// rejected.
func NewConditions(conditions []Condition, opts ...Option) (*Conditions, error) {
	units, err := index("Conditions", conditions)
	if err != nil {
		return nil, err
	}
	return &Conditions{units: units, opts: buildOptions(opts)}, nil
}

// Lookup returns the condition registered under name
func (r *Conditions) Lookup(name string) (Condition, bool) {
	c, ok := r.units[name]
	return c, ok
}

// Exists reports whether name is registered
func (r *Conditions) Exists(name string) bool {
	_, ok := r.units[name]
	return ok
}

// Names returns the registered names, sorted
func (r *Conditions) Names() []string { return names(r.units) }

// Evaluate runs the named condition. An unregistered name is not satisfied.
// A non-empty uuid selects the iteration call shape.
func (r *Conditions) Evaluate(name string, sub *submission.Submission, uuid string) bool {
	c, ok := r.units[name]
	if !ok {
		r.opts.miss(KindCondition, name, "flow", sub.Flow)
		return false
	}
	if uuid != "" {
		return c.RunIteration(sub, uuid)
	}
	return c.Run(sub)
}

// Actions is an immutable name-keyed set of actions
type Actions struct {
	units map[string]Action
	opts  options
}

// NewActions indexes actions by name. Duplicate or empty names are rejected.
func NewActions(actions []Action, opts ...Option) (*Actions, error) {
	units, err := index("Actions", actions)
	if err != nil {
		return nil, err
	}
	return &Actions{units: units, opts: buildOptions(opts)}, nil
}

// Lookup returns the action registered under name
func (r *Actions) Lookup(name string) (Action, bool) {
	a, ok := r.units[name]
	return a, ok
}

// Exists reports whether name is registered
func (r *Actions) Exists(name string) bool {
	_, ok := r.units[name]
	return ok
}

// Names returns the registered names, sorted
func (r *Actions) Names() []string { return names(r.units) }

func (r *Actions) resolve(name string, sub *submission.Submission) (Action, bool) {
	if name == "" {
		return nil, false
	}
	a, ok := r.units[name]
	if !ok {
		r.opts.miss(KindAction, name, "flow", sub.Flow)
	}
	return a, ok
}

// absorb turns ErrNotImplemented into a logged no-op
func (r *Actions) absorb(name, shape string, err error) error {
	if errors.Is(err, ErrNotImplemented) {
		r.opts.logger.Warn("action does not implement call shape", "name", name, "shape", shape)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "Actions", shape, fmt.Sprintf("run action %s", name))
	}
	return nil
}

// Run runs the named action against the submission, or the iteration when
// uuid is set. Empty and unregistered names are no-ops.
func (r *Actions) Run(name string, sub *submission.Submission, uuid string) error {
	a, ok := r.resolve(name, sub)
	if !ok {
		return nil
	}
	if uuid != "" {
		return r.absorb(name, "RunIteration", a.RunIteration(sub, uuid))
	}
	return r.absorb(name, "Run", a.Run(sub))
}

// RunForm runs the named on-post action against the posted form
func (r *Actions) RunForm(name string, form *submission.FormSubmission, sub *submission.Submission, uuid string) error {
	a, ok := r.resolve(name, sub)
	if !ok {
		return nil
	}
	if uuid != "" {
		return r.absorb(name, "RunFormIteration", a.RunFormIteration(form, sub, uuid))
	}
	return r.absorb(name, "RunForm", a.RunForm(form, sub))
}

// ValidateFields runs the named cross-field validation action
func (r *Actions) ValidateFields(name string, form *submission.FormSubmission, sub *submission.Submission) map[string][]string {
	a, ok := r.resolve(name, sub)
	if !ok {
		return nil
	}
	return a.ValidateFields(form, sub)
}

// Filters is an immutable name-keyed set of relationship filters
type Filters struct {
	units map[string]Filter
	opts  options
}

// NewFilters indexes filters by name. Duplicate or empty names are rejected.
func NewFilters(filters []Filter, opts ...Option) (*Filters, error) {
	units, err := index("Filters", filters)
	if err != nil {
		return nil, err
	}
	return &Filters{units: units, opts: buildOptions(opts)}, nil
}

// Exists reports whether name is registered
func (r *Filters) Exists(name string) bool {
	_, ok := r.units[name]
	return ok
}

// Names returns the registered names, sorted
func (r *Filters) Names() []string { return names(r.units) }

// Apply runs the named filter over a copy of iterations. An empty or
// unregistered name returns the copy unfiltered.
func (r *Filters) Apply(name string, iterations []submission.Iteration, sub *submission.Submission) []submission.Iteration {
	cp := make([]submission.Iteration, len(iterations))
	for i, it := range iterations {
		cp[i] = it.Clone()
	}
	if name == "" {
		return cp
	}
	f, ok := r.units[name]
	if !ok {
		r.opts.miss(KindFilter, name, "flow", sub.Flow)
		return cp
	}
	return f.Filter(cp, sub)
}
