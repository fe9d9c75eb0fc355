// Package plugin provides the named conditions, actions and relationship
// filters that flow definitions refer to.
//
// Units are plain Go values implementing Condition, Action or Filter. They
// are handed to NewConditions, NewActions and NewFilters once at startup;
// flow definitions then reference them by Name. A name that is not
// registered never fails a request: conditions evaluate to false, actions
// and filters do nothing, and the miss is logged.
package plugin

import (
	"errors"

	"github.com/c360/formflow/submission"
)

// ErrNotImplemented is returned by BaseAction for call shapes an action does
// not support. The registry treats it as a no-op.
var ErrNotImplemented = errors.New("action call shape not implemented")

// Condition is a named predicate over a submission
type Condition interface {
	Name() string

	// Run evaluates against the whole submission
	Run(sub *submission.Submission) bool

	// RunIteration evaluates in the context of one subflow iteration
	RunIteration(sub *submission.Submission, uuid string) bool
}

// Action is a named side-effecting unit run at a screen lifecycle point.
// Embed BaseAction and override only the call shapes the action supports.
type Action interface {
	Name() string

	// Run is used for before-save, after-save and before-display on
	// screens outside a subflow.
	Run(sub *submission.Submission) error

	// RunIteration is the subflow variant of Run
	RunIteration(sub *submission.Submission, uuid string) error

	// RunForm is used for on-post on screens outside a subflow. It may
	// reshape form before validation.
	RunForm(form *submission.FormSubmission, sub *submission.Submission) error

	// RunFormIteration is the subflow variant of RunForm
	RunFormIteration(form *submission.FormSubmission, sub *submission.Submission, uuid string) error

	// ValidateFields returns cross-field errors keyed by field name
	ValidateFields(form *submission.FormSubmission, sub *submission.Submission) map[string][]string
}

// Filter narrows the related-subflow iterations eligible for linkage. It
// receives a copy and may return any subset of it.
type Filter interface {
	Name() string
	Filter(iterations []submission.Iteration, sub *submission.Submission) []submission.Iteration
}

// BaseAction implements every Action call shape as not implemented
type BaseAction struct {
	ActionName string
}

// Name returns the registered name
func (a BaseAction) Name() string { return a.ActionName }

// Run is not implemented
func (BaseAction) Run(*submission.Submission) error { return ErrNotImplemented }

// RunIteration is not implemented
func (BaseAction) RunIteration(*submission.Submission, string) error { return ErrNotImplemented }

// RunForm is not implemented
func (BaseAction) RunForm(*submission.FormSubmission, *submission.Submission) error {
	return ErrNotImplemented
}

// RunFormIteration is not implemented
func (BaseAction) RunFormIteration(*submission.FormSubmission, *submission.Submission, string) error {
	return ErrNotImplemented
}

// ValidateFields reports no errors
func (BaseAction) ValidateFields(*submission.FormSubmission, *submission.Submission) map[string][]string {
	return nil
}

// ConditionFunc adapts a function to Condition. The function receives an
// empty uuid when evaluated against the whole submission.
type ConditionFunc struct {
	ConditionName string
	Fn            func(sub *submission.Submission, uuid string) bool
}

// NewCondition returns a Condition named name backed by fn
func NewCondition(name string, fn func(sub *submission.Submission, uuid string) bool) ConditionFunc {
	return ConditionFunc{ConditionName: name, Fn: fn}
}

// Name returns the registered name
func (c ConditionFunc) Name() string { return c.ConditionName }

// Run evaluates fn with no iteration
func (c ConditionFunc) Run(sub *submission.Submission) bool { return c.Fn(sub, "") }

// RunIteration evaluates fn for the iteration uuid
func (c ConditionFunc) RunIteration(sub *submission.Submission, uuid string) bool {
	return c.Fn(sub, uuid)
}

// FilterFunc adapts a function to Filter
type FilterFunc struct {
	FilterName string
	Fn         func(iterations []submission.Iteration, sub *submission.Submission) []submission.Iteration
}

// Name returns the registered name
func (f FilterFunc) Name() string { return f.FilterName }

// Filter calls Fn
func (f FilterFunc) Filter(iterations []submission.Iteration, sub *submission.Submission) []submission.Iteration {
	return f.Fn(iterations, sub)
}
