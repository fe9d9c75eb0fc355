package navigation

import (
	"context"
	"strings"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/session"
	"github.com/c360/formflow/submission"
)

// subflowScreen resolves a screen that must belong to a subflow
func (e *Engine) subflowScreen(flow, screen string) (*flowconfig.FlowConfig, *flowconfig.ScreenConfig, error) {
	fc, err := e.flows.Flow(flow)
	if err != nil {
		return nil, nil, err
	}
	sc, err := fc.Screen(screen)
	if err != nil {
		return nil, nil, err
	}
	if sc.Subflow == "" {
		return nil, nil, errors.NewNotFound(flow, screen, "Screen is not part of a subflow.")
	}
	return fc, sc, nil
}

// GetSubflowScreen renders screen for an existing iteration
func (e *Engine) GetSubflowScreen(ctx context.Context, rc *RequestContext, flow, screen, iterationUUID string) (Outcome, error) {
	if out, ok := e.disabledGate(flow); ok {
		return out, nil
	}
	fc, sc, err := e.subflowScreen(flow, screen)
	if err != nil {
		return Outcome{}, err
	}
	sub, err := e.requireSubmission(ctx, rc, flow)
	if err != nil {
		return Outcome{}, err
	}
	if out, ok := e.lockGate(fc, screen, sub); ok {
		return out, nil
	}
	if _, ok := sub.Iteration(sc.Subflow, iterationUUID); !ok {
		return Outcome{}, iterationNotFound(flow, screen, sc.Subflow, iterationUUID)
	}

	if sc.Condition != "" && !e.evaluate(sc.Condition, sc, sub, iterationUUID) {
		next, err := e.NextViewableScreen(flow, screen, sub, iterationUUID)
		if err != nil {
			return Outcome{}, err
		}
		e.metrics.RecordRedirect(flow, reasonSkipped)
		return redirect(e.screenPathFor(fc, next, iterationUUID)), nil
	}

	if err := e.actions.Run(sc.BeforeDisplayAction, sub, iterationUUID); err != nil {
		return Outcome{}, err
	}
	model, err := e.buildModel(rc, fc, sc, sub, iterationUUID)
	if err != nil {
		return Outcome{}, err
	}
	e.metrics.RecordNavigation(flow, outcomeScreen)
	return Outcome{View: viewName(flow, screen), Model: model}, nil
}

// PostSubflowScreen applies a POST to one iteration of the screen's subflow.
// The uuid "new" creates an iteration under a freshly minted uuid; any other
// uuid must name an existing iteration, whose fields are merged in place.
func (e *Engine) PostSubflowScreen(ctx context.Context, rc *RequestContext, flow, screen, iterationUUID string,
	form *submission.FormSubmission) (Outcome, error) {
	if out, ok := e.disabledGate(flow); ok {
		return out, nil
	}
	fc, sc, err := e.subflowScreen(flow, screen)
	if err != nil {
		return Outcome{}, err
	}

	isNew := strings.EqualFold(iterationUUID, NewIterationID)
	var sub *submission.Submission
	if isNew {
		sub, err = e.loadSubmission(ctx, rc, flow)
	} else {
		sub, err = e.requireSubmission(ctx, rc, flow)
	}
	if err != nil {
		return Outcome{}, err
	}
	if out, ok := e.mutationGate(fc, screen, sub); ok {
		return out, nil
	}
	if isNew {
		iterationUUID = e.newUUID()
	}

	if err := e.actions.RunForm(sc.OnPostAction, form, sub, iterationUUID); err != nil {
		return Outcome{}, err
	}
	if failed, err := e.validate(rc, flow, sc, form, sub); err != nil || failed {
		if err != nil {
			return Outcome{}, err
		}
		if isNew {
			return redirect(ScreenPath(flow, screen)), nil
		}
		return redirect(IterationPath(flow, screen, iterationUUID)), nil
	}
	if err := e.validateAddresses(ctx, form, sub); err != nil {
		return Outcome{}, err
	}

	form.Strip()
	if isNew {
		sub.AppendIteration(sc.Subflow, submission.NewIteration(iterationUUID, form.Data))
		e.logger.Debug("created iteration", "flow", flow, "subflow", sc.Subflow, "uuid", iterationUUID)
	} else if !sub.MergeIterationData(sc.Subflow, iterationUUID, form.Data) {
		return Outcome{}, iterationNotFound(flow, screen, sc.Subflow, iterationUUID)
	}

	if err := e.relationships.AddRelationshipData(flow, sc.Subflow, iterationUUID, sub); err != nil {
		return Outcome{}, err
	}
	if err := e.relationships.MaterializeRepeatFor(flow, sc.Subflow, iterationUUID, sub); err != nil {
		return Outcome{}, err
	}

	if err := e.save(ctx, rc, sc, sub, iterationUUID); err != nil {
		return Outcome{}, err
	}
	return redirect(NavigationPath(flow, screen, iterationUUID)), nil
}

// Navigate decides where to go after a successful POST to screen. Within a
// subflow, leaving the subflow completes the iteration; a related subflow
// with unconsumed related iterations loops back to its iteration start
// screen instead of exiting.
func (e *Engine) Navigate(ctx context.Context, rc *RequestContext, flow, screen, iterationUUID string) (Outcome, error) {
	if out, ok := e.disabledGate(flow); ok {
		return out, nil
	}
	fc, err := e.flows.Flow(flow)
	if err != nil {
		return Outcome{}, err
	}
	sc, err := fc.Screen(screen)
	if err != nil {
		return Outcome{}, err
	}
	id := rc.state().SubmissionID(flow)
	if id == "" {
		return Outcome{}, errors.NewNotFound(flow, screen,
			"Submission not found in session. This can happen if your session expired.")
	}
	sub, err := e.get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	next, err := e.NextViewableScreen(flow, screen, sub, iterationUUID)
	if err != nil {
		return Outcome{}, err
	}
	e.logger.Debug("navigation decision", "flow", flow, "screen", screen, "uuid", iterationUUID, "next", next)

	if iterationUUID == "" || sc.Subflow == "" {
		e.metrics.RecordNavigation(flow, outcomeScreen)
		return redirect(ScreenPath(flow, next)), nil
	}

	target, err := fc.Screen(next)
	if err != nil {
		return Outcome{}, err
	}
	if target.Subflow == sc.Subflow {
		e.metrics.RecordNavigation(flow, outcomeScreen)
		return redirect(IterationPath(flow, next, iterationUUID)), nil
	}
	if out, ok := e.mutationGate(fc, screen, sub); ok {
		return out, nil
	}

	return e.leaveSubflow(ctx, rc, fc, sc.Subflow, next, iterationUUID, sub)
}

// leaveSubflow completes the iteration and either loops for the next
// related iteration or continues to next
func (e *Engine) leaveSubflow(ctx context.Context, rc *RequestContext, fc *flowconfig.FlowConfig, subflow, next,
	iterationUUID string, sub *submission.Submission) (Outcome, error) {
	if !sub.SetIterationComplete(subflow, iterationUUID) {
		e.logger.Warn("completed iteration not found", "flow", fc.Name, "subflow", subflow, "uuid", iterationUUID)
	}

	hasRelationship, err := e.relationships.HasRelationship(fc.Name, subflow)
	if err != nil {
		return Outcome{}, err
	}
	if hasRelationship {
		finished, err := e.relationships.HasFinishedAllSubflowIterations(fc.Name, subflow, sub)
		if err != nil {
			return Outcome{}, err
		}
		if !finished {
			sf, err := fc.Subflow(subflow)
			if err != nil {
				return Outcome{}, err
			}
			if err := e.persist(ctx, rc, sub); err != nil {
				return Outcome{}, err
			}
			e.logger.Debug("related iterations remain, looping", "flow", fc.Name, "subflow", subflow,
				"iterations", sub.SubflowLen(subflow), "next", sf.IterationStartScreen)
			e.metrics.RecordNavigation(fc.Name, outcomeLoop)
			return redirect(ScreenPath(fc.Name, sf.IterationStartScreen)), nil
		}
	}

	if err := e.persist(ctx, rc, sub); err != nil {
		return Outcome{}, err
	}
	e.metrics.RecordNavigation(fc.Name, outcomeExit)
	return redirect(ScreenPath(fc.Name, next)), nil
}

// DeleteConfirmation stages the iteration for deletion and sends the user to
// the subflow's delete confirmation screen
func (e *Engine) DeleteConfirmation(ctx context.Context, rc *RequestContext, flow, subflow, iterationUUID string) (Outcome, error) {
	if out, ok := e.disabledGate(flow); ok {
		return out, nil
	}
	sf, err := e.flows.Subflow(flow, subflow)
	if err != nil {
		return Outcome{}, err
	}

	if id := rc.state().SubmissionID(flow); id != "" {
		sub, err := e.get(ctx, id)
		if err != nil && !errors.IsNotFound(err) {
			return Outcome{}, err
		}
		if sub != nil {
			if it, ok := sub.Iteration(subflow, iterationUUID); ok {
				rc.state().EntryToDelete = &session.DeleteStaging{Flow: flow, Subflow: subflow, Iteration: it}
			}
		}
	}
	return redirect(DeleteConfirmationPath(flow, sf.DeleteConfirmationScreen, iterationUUID)), nil
}

// DeleteIteration removes an iteration. An emptied subflow sends the user
// back to its entry screen, otherwise to its review screen.
func (e *Engine) DeleteIteration(ctx context.Context, rc *RequestContext, flow, subflow, iterationUUID string) (Outcome, error) {
	if out, ok := e.disabledGate(flow); ok {
		return out, nil
	}
	fc, err := e.flows.Flow(flow)
	if err != nil {
		return Outcome{}, err
	}
	sf, err := fc.Subflow(subflow)
	if err != nil {
		return Outcome{}, err
	}
	sub, err := e.requireSubmission(ctx, rc, flow)
	if err != nil {
		return Outcome{}, err
	}
	if out, ok := e.mutationGate(fc, sf.DeleteConfirmationScreen, sub); ok {
		return out, nil
	}

	if !sub.HasSubflow(subflow) {
		return redirect(ScreenPath(flow, sf.EntryScreen)), nil
	}
	remaining, removed := sub.RemoveIteration(subflow, iterationUUID)
	if !removed {
		e.logger.Info("iteration to delete not found", "flow", flow, "subflow", subflow, "uuid", iterationUUID)
	}
	if err := e.persist(ctx, rc, sub); err != nil {
		return Outcome{}, err
	}
	if staged := rc.state().EntryToDelete; staged != nil && staged.Flow == flow && staged.Subflow == subflow {
		rc.state().EntryToDelete = nil
	}
	e.logger.Info("deleted iteration", "flow", flow, "subflow", subflow, "uuid", iterationUUID,
		"remaining", remaining)

	if remaining == 0 {
		return redirect(ScreenPath(flow, sf.EntryScreen)), nil
	}
	return redirect(ScreenPath(flow, sf.ReviewScreen)), nil
}
