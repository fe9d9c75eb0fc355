package navigation

import (
	"context"
	"fmt"
	"maps"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/submission"
	"github.com/c360/formflow/validation"
)

// queryUUID is the query parameter carrying an iteration uuid
const queryUUID = "uuid"

// GetScreen decides whether screen is rendered or the request is redirected.
// Gates are checked before anything is written: disabled flow, missing
// session on a non-landing screen, locked submission. A screen whose own
// condition does not hold is never rendered.
func (e *Engine) GetScreen(ctx context.Context, rc *RequestContext, flow, screen string) (Outcome, error) {
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

	if fc.Landmarks != nil && fc.Landmarks.FirstScreen != "" && screen != fc.Landmarks.FirstScreen &&
		rc.state().SubmissionID(flow) == "" {
		e.logger.Info("no submission in session, sending to first screen", "flow", flow, "screen", screen,
			"first_screen", fc.Landmarks.FirstScreen)
		e.metrics.RecordRedirect(flow, reasonLanding)
		return redirect(ScreenPath(flow, fc.Landmarks.FirstScreen)), nil
	}

	sub, err := e.loadSubmission(ctx, rc, flow)
	if err != nil {
		return Outcome{}, err
	}
	if out, ok := e.lockGate(fc, screen, sub); ok {
		return out, nil
	}

	iterationUUID := rc.Query[queryUUID]
	if sf := fc.SubflowForDeleteConfirmation(screen); sf != nil {
		if _, ok := sub.Iteration(sf.Name, iterationUUID); iterationUUID == "" || !ok {
			e.logger.Info("nothing to delete", "flow", flow, "screen", screen, "subflow", sf.Name,
				"uuid", iterationUUID)
			return Outcome{View: viewName(flow, screen), Model: nothingToDeleteModel(fc, screen, sf, sub)}, nil
		}
	} else if iterationUUID != "" && sc.Subflow != "" {
		if _, ok := sub.Iteration(sc.Subflow, iterationUUID); !ok {
			return Outcome{}, iterationNotFound(flow, screen, sc.Subflow, iterationUUID)
		}
	}

	if sc.Condition != "" && !e.evaluate(sc.Condition, sc, sub, iterationUUID) {
		next, err := e.NextViewableScreen(flow, screen, sub, iterationUUID)
		if err != nil {
			return Outcome{}, err
		}
		e.logger.Debug("screen condition does not hold", "flow", flow, "screen", screen,
			"condition", sc.Condition, "next", next)
		e.metrics.RecordRedirect(flow, reasonSkipped)
		return redirect(e.screenPathFor(fc, next, iterationUUID)), nil
	}

	dirty := false
	if iterationUUID == "" {
		for _, sf := range fc.Subflows {
			if sf.IterationStartScreen != screen {
				continue
			}
			before := sub.SubflowLen(sf.Name)
			sub.RemoveIncompleteIterations(sf.Name, "")
			if pruned := before - sub.SubflowLen(sf.Name); pruned > 0 {
				e.logger.Debug("pruned incomplete iterations", "flow", flow, "subflow", sf.Name, "count", pruned)
				dirty = true
			}
		}
	}

	if params := urlParams(rc.Query); len(params) > 0 && !containsAll(sub.URLParams, params) {
		sub.MergeURLParams(params)
		dirty = true
	}
	if _, locked := e.policies.lockTarget(flow, sub); dirty && !locked {
		if err := e.persist(ctx, rc, sub); err != nil {
			return Outcome{}, err
		}
	}

	if err := e.actions.Run(sc.BeforeDisplayAction, sub, e.iterationArg(sc, iterationUUID)); err != nil {
		return Outcome{}, err
	}

	model, err := e.buildModel(rc, fc, sc, sub, iterationUUID)
	if err != nil {
		return Outcome{}, err
	}
	e.metrics.RecordNavigation(flow, outcomeScreen)
	return Outcome{View: viewName(flow, screen), Model: model}, nil
}

// PostScreen applies a POST to screen. With submit set the submission is
// finalized. Field errors are staged in the session and the same screen is
// shown again; nothing is merged in that case.
func (e *Engine) PostScreen(ctx context.Context, rc *RequestContext, flow, screen string,
	form *submission.FormSubmission, submit bool) (Outcome, error) {
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
	sub, err := e.loadSubmission(ctx, rc, flow)
	if err != nil {
		return Outcome{}, err
	}
	if out, ok := e.mutationGate(fc, screen, sub); ok {
		return out, nil
	}

	if err := e.actions.RunForm(sc.OnPostAction, form, sub, ""); err != nil {
		return Outcome{}, err
	}
	if failed, err := e.validate(rc, fc.Name, sc, form, sub); err != nil || failed {
		if err != nil {
			return Outcome{}, err
		}
		return redirect(ScreenPath(flow, screen)), nil
	}
	if err := e.validateAddresses(ctx, form, sub); err != nil {
		return Outcome{}, err
	}

	form.Strip()
	sub.MergeFormData(form.Data)

	if submit {
		sub.MarkSubmitted(e.now())
		if e.shortCodes != nil {
			if cfg, ok := e.shortCodes.Config(flow); ok && cfg.CreateAtSubmission() {
				if _, err := e.shortCodes.Ensure(ctx, sub); err != nil {
					return Outcome{}, err
				}
			}
		}
	}

	if err := e.save(ctx, rc, sc, sub, ""); err != nil {
		return Outcome{}, err
	}
	if submit {
		e.logger.Info("submission finalized", "flow", flow, "submission_id", sub.ID)
		e.metrics.RecordSubmitted(flow)
	}
	return redirect(NavigationPath(flow, screen, "")), nil
}

// validate runs field and cross-field validation. On failure the errors and
// the posted values are staged for the next GET and true is returned.
func (e *Engine) validate(rc *RequestContext, flow string, sc *flowconfig.ScreenConfig,
	form *submission.FormSubmission, sub *submission.Submission) (bool, error) {
	errs, err := e.validator.Validate(flow, sc, form)
	if err != nil {
		return false, err
	}
	if errs == nil {
		errs = validation.Errors{}
	}
	errs.Merge(e.actions.ValidateFields(sc.CrossFieldValidationAction, form, sub))

	if len(errs) == 0 {
		rc.state().ClearPending()
		return false, nil
	}
	e.logger.Info("validation failed", "flow", flow, "screen", sc.Name, "fields", errs.Fields())
	e.metrics.RecordValidationFailure(flow, sc.Name)
	rc.state().SetPending(errs, maps.Clone(form.Data))
	return true, nil
}

// validateAddresses replaces raw address inputs marked for validation with
// their validated parts. Previously validated parts are cleared first.
func (e *Engine) validateAddresses(ctx context.Context, form *submission.FormSubmission, sub *submission.Submission) error {
	markers := form.AddressValidationFields()
	if len(markers) == 0 {
		return nil
	}
	inputs := validation.AddressInputs(markers)
	validated, err := e.addresses.ValidateAddresses(ctx, inputs, form)
	if err != nil {
		return errors.WrapTransient(err, "Engine", "validateAddresses", "address validation")
	}
	form.SetValidatedAddress(validated)
	for _, input := range inputs {
		sub.ClearAddressFields(input)
	}
	return nil
}

// save runs the before-save action, persists and runs the after-save action
func (e *Engine) save(ctx context.Context, rc *RequestContext, sc *flowconfig.ScreenConfig,
	sub *submission.Submission, iterationUUID string) error {
	arg := e.iterationArg(sc, iterationUUID)
	if err := e.actions.Run(sc.BeforeSaveAction, sub, arg); err != nil {
		return err
	}
	if err := e.persist(ctx, rc, sub); err != nil {
		return err
	}
	return e.actions.Run(sc.AfterSaveAction, sub, arg)
}

// iterationArg returns the uuid to pass to plugins of sc
func (e *Engine) iterationArg(sc *flowconfig.ScreenConfig, iterationUUID string) string {
	if sc.Subflow == "" {
		return ""
	}
	return iterationUUID
}

// screenPathFor returns the path of next, keeping the iteration when next
// is in the same subflow as the iteration
func (e *Engine) screenPathFor(fc *flowconfig.FlowConfig, next, iterationUUID string) string {
	if iterationUUID == "" {
		return ScreenPath(fc.Name, next)
	}
	if target, err := fc.Screen(next); err == nil && target.Subflow != "" {
		return IterationPath(fc.Name, next, iterationUUID)
	}
	return ScreenPath(fc.Name, next)
}

func viewName(flow, screen string) string {
	return flow + "/" + screen
}

func iterationNotFound(flow, screen, subflow, iterationUUID string) error {
	return errors.NewNotFound(flow, screen,
		fmt.Sprintf("Iteration %s could not be found in subflow %s. This can happen if your session expired.",
			iterationUUID, subflow))
}

// urlParams drops the parameters the engine consumes itself
func urlParams(query map[string]string) map[string]string {
	out := make(map[string]string, len(query))
	for k, v := range query {
		if k == queryUUID {
			continue
		}
		out[k] = v
	}
	return out
}

func containsAll(have, want map[string]string) bool {
	for k, v := range want {
		if got, ok := have[k]; !ok || got != v {
			return false
		}
	}
	return true
}
