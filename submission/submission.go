// Package submission holds the accumulated answers of one pass through a
// flow and the merge rules applied to them on every POST.
package submission

import (
	"time"
)

// Submission is the accumulated answer data for one user's pass through one flow
type Submission struct {
	ID          string            `json:"id"`
	Flow        string            `json:"flow"`
	InputData   map[string]Value  `json:"input_data"`
	URLParams   map[string]string `json:"url_params,omitempty"`
	ShortCode   string            `json:"short_code,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`

	// Revision is the store revision this copy was read at
	Revision uint64 `json:"-"`
}

// New creates an empty, unsaved submission for flow
func New(flow string) *Submission {
	return &Submission{
		Flow:      flow,
		InputData: make(map[string]Value),
	}
}

// IsNew reports whether the submission has never been saved
func (s *Submission) IsNew() bool {
	return s.ID == ""
}

// IsSubmitted reports whether the submission has been finalized
func (s *Submission) IsSubmitted() bool {
	return s.SubmittedAt != nil
}

// MarkSubmitted stamps the submission as finalized at t
func (s *Submission) MarkSubmitted(t time.Time) {
	s.SubmittedAt = &t
}

// Get returns the top-level value at key
func (s *Submission) Get(key string) (Value, bool) {
	v, ok := s.InputData[key]
	return v, ok
}

// GetString returns the scalar at key, or "" when absent or not a scalar
func (s *Submission) GetString(key string) string {
	if v, ok := s.InputData[key]; ok {
		str, _ := v.AsScalar()
		return str
	}
	return ""
}

// Set assigns a top-level value
func (s *Submission) Set(key string, v Value) {
	if s.InputData == nil {
		s.InputData = make(map[string]Value)
	}
	s.InputData[key] = v
}

// Delete removes a top-level key
func (s *Submission) Delete(key string) {
	delete(s.InputData, key)
}

// Clone returns a deep copy
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	out.InputData = make(map[string]Value, len(s.InputData))
	for k, v := range s.InputData {
		out.InputData[k] = v.Clone()
	}
	if s.URLParams != nil {
		out.URLParams = make(map[string]string, len(s.URLParams))
		for k, v := range s.URLParams {
			out.URLParams[k] = v
		}
	}
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		out.SubmittedAt = &t
	}
	return &out
}

// Subflow returns the iterations stored under the subflow name. The slice is
// a copy; use the mutating methods to change stored iterations.
func (s *Submission) Subflow(name string) []Iteration {
	its := s.subflow(name)
	if its == nil {
		return nil
	}
	out := make([]Iteration, len(its))
	for i, it := range its {
		out[i] = it.Clone()
	}
	return out
}

// HasSubflow reports whether the subflow key is present
func (s *Submission) HasSubflow(name string) bool {
	_, ok := s.InputData[name]
	return ok
}

// SubflowLen returns the number of stored iterations
func (s *Submission) SubflowLen(name string) int {
	return len(s.subflow(name))
}

// Iteration returns a copy of the iteration with the given uuid
func (s *Submission) Iteration(subflow, uuid string) (Iteration, bool) {
	for _, it := range s.subflow(subflow) {
		if it.UUID == uuid {
			return it.Clone(), true
		}
	}
	return Iteration{}, false
}

// IterationIndex returns the list index of the iteration with uuid, or -1
func (s *Submission) IterationIndex(subflow, uuid string) int {
	for i, it := range s.subflow(subflow) {
		if it.UUID == uuid {
			return i
		}
	}
	return -1
}

// AppendIteration adds an iteration to the end of the subflow list
func (s *Submission) AppendIteration(subflow string, it Iteration) {
	its := append(s.subflow(subflow), it)
	s.Set(subflow, Value{kind: KindIterations, iterations: its})
}

// ReplaceIteration stores it in place of the iteration sharing its uuid.
// It returns false when no such iteration exists.
func (s *Submission) ReplaceIteration(subflow string, it Iteration) bool {
	its := s.subflow(subflow)
	for i := range its {
		if its[i].UUID == it.UUID {
			its[i] = it
			return true
		}
	}
	return false
}

// RemoveIteration deletes the iteration with uuid and returns the number of
// iterations left. The subflow key is removed when the list becomes empty.
func (s *Submission) RemoveIteration(subflow, uuid string) (remaining int, removed bool) {
	its := s.subflow(subflow)
	kept := its[:0]
	for _, it := range its {
		if it.UUID == uuid {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	if len(kept) == 0 {
		delete(s.InputData, subflow)
		return 0, removed
	}
	s.Set(subflow, Value{kind: KindIterations, iterations: kept})
	return len(kept), removed
}

// SetIterationComplete marks the iteration with uuid complete
func (s *Submission) SetIterationComplete(subflow, uuid string) bool {
	its := s.subflow(subflow)
	for i := range its {
		if its[i].UUID == uuid {
			its[i].Complete = true
			return true
		}
	}
	return false
}

// RemoveIncompleteIterations drops every incomplete iteration of the subflow
// except the one identified by currentUUID.
func (s *Submission) RemoveIncompleteIterations(subflow, currentUUID string) {
	its := s.subflow(subflow)
	if its == nil {
		return
	}
	kept := make([]Iteration, 0, len(its))
	for _, it := range its {
		if !it.Complete && it.UUID != currentUUID {
			continue
		}
		kept = append(kept, it)
	}
	s.Set(subflow, Value{kind: KindIterations, iterations: kept})
}

// subflow returns the stored iteration slice without copying. An empty list
// value, as produced by decoding "[]", counts as no iterations.
func (s *Submission) subflow(name string) []Iteration {
	v, ok := s.InputData[name]
	if !ok {
		return nil
	}
	its, _ := v.AsIterations()
	return its
}
