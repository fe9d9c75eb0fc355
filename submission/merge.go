package submission

// Merge returns existing overlaid with incoming. Keys present in incoming
// win; keys only in existing are carried forward unchanged. Neither input
// is modified.
func Merge(existing, incoming map[string]Value) map[string]Value {
	out := make(map[string]Value, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// MergeFormData applies a POST to the top-level answers with sparse-update
// semantics.
func (s *Submission) MergeFormData(form map[string]Value) {
	s.InputData = Merge(s.InputData, form)
}

// MergeIterationData applies a POST to the single iteration identified by
// uuid, replacing it in place at its current index. Reserved keys in form are
// ignored. It returns false when the iteration does not exist.
func (s *Submission) MergeIterationData(subflow, uuid string, form map[string]Value) bool {
	idx := s.IterationIndex(subflow, uuid)
	if idx < 0 {
		return false
	}

	its := s.subflow(subflow)
	current := its[idx]
	fields := make(map[string]Value, len(form))
	for k, v := range form {
		if k == UUIDKey || k == IterationIsCompleteKey {
			continue
		}
		fields[k] = v
	}
	its[idx] = Iteration{
		UUID:     current.UUID,
		Complete: current.Complete,
		Fields:   Merge(current.Fields, fields),
	}
	return true
}

// MergeURLParams records query parameters captured at flow entry. The first
// call establishes the set; later calls merge additively.
func (s *Submission) MergeURLParams(params map[string]string) {
	if len(s.URLParams) == 0 {
		s.URLParams = make(map[string]string, len(params))
	}
	for k, v := range params {
		s.URLParams[k] = v
	}
}
