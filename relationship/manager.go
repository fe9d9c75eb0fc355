// Package relationship links the iterations of one subflow to the iterations
// of another, so that a "driving" subflow (incomes) loops once per iteration
// of the subflow it relates to (household members).
package relationship

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/plugin"
	"github.com/c360/formflow/submission"
)

// ValueSuffix is appended to a repeat-for saveDataAs name to form the key
// holding the selected value in each nested iteration.
const ValueSuffix = "Value"

// Manager maintains relationship links and nested repeat-for iterations
type Manager struct {
	flows   *flowconfig.Registry
	filters *plugin.Filters
	logger  *slog.Logger
	newUUID func() string
}

// Option configures a Manager
type Option func(*Manager)

// WithUUIDGenerator replaces the uuid source for nested iterations
func WithUUIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newUUID = fn }
}

// NewManager creates a Manager. A nil filters set disables filtering.
func NewManager(flows *flowconfig.Registry, filters *plugin.Filters, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{flows: flows, filters: filters, logger: logger, newUUID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RelatedIndexFor returns the position in the related subflow that the
// driving iteration being shown corresponds to. On the iteration start
// screen the current iteration has not been stored yet, so it is at
// drivingCount; on later screens it has, so it is at drivingCount-1.
func RelatedIndexFor(isIterationStart bool, drivingCount int) int {
	if isIterationStart {
		return drivingCount
	}
	return drivingCount - 1
}

// link is a resolved relationship between two subflows of one flow
type link struct {
	flow    string
	driving *flowconfig.SubflowConfig
	rel     *flowconfig.Relationship
}

// resolve returns the relationship of subflow, or nil when it has none. The
// related subflow must exist.
func (m *Manager) resolve(flow, subflow string) (*link, error) {
	cfg, err := m.flows.Subflow(flow, subflow)
	if err != nil {
		return nil, err
	}
	if cfg.Relationship == nil {
		return nil, nil
	}
	if _, err := m.flows.Subflow(flow, cfg.Relationship.RelatesTo); err != nil {
		return nil, errors.NewConfigError(flow, "", fmt.Sprintf("subflow %s relates to unknown subflow %s",
			subflow, cfg.Relationship.RelatesTo))
	}
	return &link{flow: flow, driving: cfg, rel: cfg.Relationship}, nil
}

// related returns the filtered iterations of the related subflow
func (m *Manager) related(l *link, sub *submission.Submission) []submission.Iteration {
	its := sub.Subflow(l.rel.RelatesTo)
	if m.filters == nil {
		return its
	}
	return m.filters.Apply(l.rel.Filter, its, sub)
}

// HasRelationship reports whether subflow declares a relationship. It fails
// with a not found error when the subflow does not exist.
func (m *Manager) HasRelationship(flow, subflow string) (bool, error) {
	cfg, err := m.flows.Subflow(flow, subflow)
	if err != nil {
		return false, err
	}
	return cfg.Relationship != nil, nil
}

// IsNested reports whether subflow's relationship declares a repeat-for
func (m *Manager) IsNested(flow, subflow string) bool {
	cfg, err := m.flows.Subflow(flow, subflow)
	if err != nil || cfg.Relationship == nil {
		return false
	}
	return cfg.Relationship.RepeatFor != nil
}

// AddRelationshipData links the driving iteration uuid to the first related
// iteration not yet claimed by any driving iteration. An iteration that is
// already linked, or a related list that is fully claimed, is left alone.
func (m *Manager) AddRelationshipData(flow, subflow, iterationUUID string, sub *submission.Submission) error {
	l, err := m.resolve(flow, subflow)
	if err != nil || l == nil {
		return err
	}

	current, ok := sub.Iteration(subflow, iterationUUID)
	if !ok {
		return errors.NewNotFound(flow, "", fmt.Sprintf("iteration %s not found in subflow %s", iterationUUID, subflow))
	}
	alias := l.rel.Alias()
	if current.GetString(alias) != "" {
		return nil
	}

	driving := sub.Subflow(subflow)
	claimed := make(map[string]bool, len(driving))
	for _, it := range driving {
		if id := it.GetString(alias); id != "" {
			claimed[id] = true
		}
	}

	related := m.related(l, sub)
	if len(claimed) >= len(related) {
		return nil
	}
	for _, candidate := range related {
		if claimed[candidate.UUID] {
			continue
		}
		current.Set(alias, submission.Scalar(candidate.UUID))
		sub.ReplaceIteration(subflow, current)
		m.logger.Debug("linked iteration", "flow", flow, "subflow", subflow, "uuid", iterationUUID,
			"related_subflow", l.rel.RelatesTo, "related_uuid", candidate.UUID)
		return nil
	}
	return nil
}

// HasFinishedAllSubflowIterations reports whether the driving subflow has at
// least as many iterations as the (filtered) subflow it relates to. A
// subflow without a relationship is always finished.
func (m *Manager) HasFinishedAllSubflowIterations(flow, subflow string, sub *submission.Submission) (bool, error) {
	l, err := m.resolve(flow, subflow)
	if err != nil {
		return false, err
	}
	if l == nil {
		return true, nil
	}
	return sub.SubflowLen(subflow) >= len(m.related(l, sub)), nil
}

// RelatedIterationFor follows the relation field of an existing driving
// iteration to the iteration it is linked to.
func (m *Manager) RelatedIterationFor(flow, subflow, iterationUUID string, sub *submission.Submission) (submission.Iteration, bool, error) {
	l, err := m.resolve(flow, subflow)
	if err != nil || l == nil {
		return submission.Iteration{}, false, err
	}
	current, ok := sub.Iteration(subflow, iterationUUID)
	if !ok {
		return submission.Iteration{}, false, nil
	}
	id := current.GetString(l.rel.Alias())
	if id == "" {
		return submission.Iteration{}, false, nil
	}
	it, ok := sub.Iteration(l.rel.RelatesTo, id)
	return it, ok, nil
}

// GetRelatedIterationFor returns the related iteration that corresponds to
// the driving iteration shown on screen, by position (see RelatedIndexFor).
func (m *Manager) GetRelatedIterationFor(flow, subflow, screen string, sub *submission.Submission) (submission.Iteration, bool, error) {
	l, err := m.resolve(flow, subflow)
	if err != nil || l == nil {
		return submission.Iteration{}, false, err
	}
	related := m.related(l, sub)
	idx := RelatedIndexFor(l.driving.IterationStartScreen == screen, sub.SubflowLen(subflow))
	if idx < 0 || idx >= len(related) {
		return submission.Iteration{}, false, nil
	}
	return related[idx], true, nil
}

// MaterializeRepeatFor builds the nested iterations of a repeat-for
// relationship from the list input of the driving iteration. One nested
// iteration exists per selected value, in selection order; nested
// iterations whose value is still selected keep their uuid and data.
func (m *Manager) MaterializeRepeatFor(flow, subflow, iterationUUID string, sub *submission.Submission) error {
	l, err := m.resolve(flow, subflow)
	if err != nil || l == nil || l.rel.RepeatFor == nil {
		return err
	}
	rf := l.rel.RepeatFor

	current, ok := sub.Iteration(subflow, iterationUUID)
	if !ok {
		return errors.NewNotFound(flow, "", fmt.Sprintf("iteration %s not found in subflow %s", iterationUUID, subflow))
	}

	raw, ok := current.Get(rf.InputName + "[]")
	if !ok {
		return nil
	}
	selected, _ := raw.AsList()

	valueKey := rf.SaveDataAs + ValueSuffix
	var existing []submission.Iteration
	if v, ok := current.Get(rf.SaveDataAs); ok {
		existing, _ = v.AsIterations()
	}

	nested := make([]submission.Iteration, 0, len(selected))
	for _, value := range selected {
		idx := slices.IndexFunc(existing, func(it submission.Iteration) bool {
			return it.GetString(valueKey) == value
		})
		if idx >= 0 {
			nested = append(nested, existing[idx].Clone())
			continue
		}
		nested = append(nested, submission.NewIteration(m.newUUID(), map[string]submission.Value{
			valueKey: submission.Scalar(value),
		}))
	}

	if len(nested) == 0 {
		delete(current.Fields, rf.SaveDataAs)
	} else {
		current.Set(rf.SaveDataAs, submission.Iterations(nested...))
	}
	sub.ReplaceIteration(subflow, current)
	return nil
}
