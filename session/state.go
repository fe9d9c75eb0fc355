// Package session keeps the small amount of per-browser state the request
// pipeline needs between requests: which submission belongs to each flow,
// and data staged by one request for the next.
package session

import (
	"github.com/c360/formflow/submission"
)

// DeleteStaging is an iteration marked for deletion pending confirmation
type DeleteStaging struct {
	Flow      string               `json:"flow"`
	Subflow   string               `json:"subflow"`
	Iteration submission.Iteration `json:"iteration"`
}

// State is the state of one browser session. The zero value is usable.
type State struct {
	// SubmissionIDs maps a flow name to the submission being filled in
	SubmissionIDs map[string]string `json:"submission_ids,omitempty"`

	// ErrorMessages holds field errors from a rejected POST
	ErrorMessages map[string][]string `json:"error_messages,omitempty"`

	// PendingForm holds the values of a rejected POST for re-display
	PendingForm map[string]submission.Value `json:"pending_form,omitempty"`

	// EntryToDelete is set by the delete confirmation redirect
	EntryToDelete *DeleteStaging `json:"entry_to_delete,omitempty"`
}

// SubmissionID returns the submission id recorded for flow
func (s *State) SubmissionID(flow string) string {
	return s.SubmissionIDs[flow]
}

// SetSubmissionID records the submission id for flow
func (s *State) SetSubmissionID(flow, id string) {
	if s.SubmissionIDs == nil {
		s.SubmissionIDs = make(map[string]string)
	}
	s.SubmissionIDs[flow] = id
}

// SetPending stages the errors and rejected values of a failed POST
func (s *State) SetPending(errs map[string][]string, form map[string]submission.Value) {
	s.ErrorMessages = errs
	s.PendingForm = form
}

// TakePending returns and clears the staged errors and values
func (s *State) TakePending() (map[string][]string, map[string]submission.Value) {
	errs, form := s.ErrorMessages, s.PendingForm
	s.ErrorMessages, s.PendingForm = nil, nil
	return errs, form
}

// ClearPending drops staged errors and values
func (s *State) ClearPending() {
	s.ErrorMessages, s.PendingForm = nil, nil
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	if s == nil {
		return &State{}
	}
	out := &State{}
	if s.SubmissionIDs != nil {
		out.SubmissionIDs = make(map[string]string, len(s.SubmissionIDs))
		for k, v := range s.SubmissionIDs {
			out.SubmissionIDs[k] = v
		}
	}
	if s.ErrorMessages != nil {
		out.ErrorMessages = make(map[string][]string, len(s.ErrorMessages))
		for k, v := range s.ErrorMessages {
			out.ErrorMessages[k] = append([]string(nil), v...)
		}
	}
	if s.PendingForm != nil {
		out.PendingForm = make(map[string]submission.Value, len(s.PendingForm))
		for k, v := range s.PendingForm {
			out.PendingForm[k] = v.Clone()
		}
	}
	if s.EntryToDelete != nil {
		staged := *s.EntryToDelete
		staged.Iteration = staged.Iteration.Clone()
		out.EntryToDelete = &staged
	}
	return out
}
