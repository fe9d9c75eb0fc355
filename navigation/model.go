package navigation

import (
	"strconv"

	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/submission"
)

// buildModel assembles the render model of screen. Pending data from a
// rejected POST is overlaid on a copy of sub, so the stored submission is
// never changed by rendering.
func (e *Engine) buildModel(rc *RequestContext, fc *flowconfig.FlowConfig, sc *flowconfig.ScreenConfig,
	sub *submission.Submission, iterationUUID string) (*Model, error) {
	view := sub.Clone()
	errs, pending := rc.state().TakePending()

	subflow := sc.Subflow
	if subflow != "" && iterationUUID != "" && pending != nil {
		view.MergeIterationData(subflow, iterationUUID, pending)
	} else if subflow == "" && pending != nil {
		view.MergeFormData(pending)
	}

	m := &Model{
		Flow:          fc.Name,
		Screen:        sc.Name,
		FormAction:    ScreenPath(fc.Name, sc.Name),
		Subflow:       subflow,
		InputData:     view.InputData,
		FieldData:     view.InputData,
		ErrorMessages: errs,
		Submission:    view,
	}
	switch {
	case iterationUUID != "" && subflow != "":
		m.FormAction = IterationPath(fc.Name, sc.Name, iterationUUID)
	case fc.IsIterationStartScreen(sc.Name):
		m.FormAction = NewIterationPath(fc.Name, sc.Name)
	}
	if sf := fc.SubflowForDeleteConfirmation(sc.Name); sf != nil {
		m.Subflow = sf.Name
	}
	if sf := fc.SubflowForReview(sc.Name); sf != nil {
		m.IterationStartScreen = sf.IterationStartScreen
	}

	if subflow == "" {
		return m, nil
	}

	if iterationUUID != "" {
		if it, ok := view.Iteration(subflow, iterationUUID); ok {
			m.FieldData = iterationFields(it)
		}
	} else if pending != nil {
		m.FieldData = pending
	}
	m.CurrentSubflowItem = m.FieldData

	related, err := e.relatedIteration(fc.Name, subflow, sc.Name, iterationUUID, view)
	if err != nil {
		return nil, err
	}
	m.RelatedIteration = related
	return m, nil
}

// relatedIteration finds the related iteration for a driving screen. An
// existing iteration follows its link; otherwise the position rule applies.
func (e *Engine) relatedIteration(flow, subflow, screen, iterationUUID string, sub *submission.Submission) (*submission.Iteration, error) {
	if iterationUUID != "" {
		it, ok, err := e.relationships.RelatedIterationFor(flow, subflow, iterationUUID, sub)
		if err != nil {
			return nil, err
		}
		if ok {
			return &it, nil
		}
	}
	it, ok, err := e.relationships.GetRelatedIterationFor(flow, subflow, screen, sub)
	if err != nil || !ok {
		return nil, err
	}
	return &it, nil
}

// iterationFields flattens an iteration into field data, reserved keys included
func iterationFields(it submission.Iteration) map[string]submission.Value {
	out := make(map[string]submission.Value, len(it.Fields)+2)
	for k, v := range it.Fields {
		out[k] = v
	}
	out[submission.UUIDKey] = submission.Scalar(it.UUID)
	out[submission.IterationIsCompleteKey] = submission.Scalar(strconv.FormatBool(it.Complete))
	return out
}

// nothingToDeleteModel is rendered on a delete confirmation screen when the
// entry to delete no longer exists, for example after the back button
func nothingToDeleteModel(fc *flowconfig.FlowConfig, screen string, sf *flowconfig.SubflowConfig,
	sub *submission.Submission) *Model {
	m := &Model{
		Flow:            fc.Name,
		Screen:          screen,
		FormAction:      ScreenPath(fc.Name, screen),
		Subflow:         sf.Name,
		InputData:       sub.InputData,
		FieldData:       sub.InputData,
		Submission:      sub,
		NoEntryToDelete: true,
		ReviewScreen:    sf.ReviewScreen,
	}
	if !sub.HasSubflow(sf.Name) {
		m.SubflowIsEmpty = true
		m.EntryScreen = sf.EntryScreen
	}
	return m
}
