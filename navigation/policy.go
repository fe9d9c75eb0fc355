package navigation

import (
	"fmt"
	"strings"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/submission"
)

// Policies are the per-flow gates applied before a request touches data
type Policies struct {
	// LockedAfterSubmit maps a flow to the screen users are sent to once
	// their submission has been finalized
	LockedAfterSubmit map[string]string

	// Disabled maps a flow to the static path every request is sent to
	Disabled map[string]string
}

// Validate checks that each policy names a known flow, and that lock
// screens exist in their flow
func (p Policies) Validate(flows *flowconfig.Registry) error {
	for flow, screen := range p.LockedAfterSubmit {
		if _, err := flows.Screen(flow, screen); err != nil {
			return errors.WrapInvalid(err, "Policies", "Validate",
				fmt.Sprintf("locked-after-submit policy for flow %s", flow))
		}
	}
	for flow, path := range p.Disabled {
		if flow == "" || path == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Policies", "Validate",
				"disabled flow policy needs a flow and a redirect path")
		}
	}
	return nil
}

// disabledRedirect returns the static path of a disabled flow
func (p Policies) disabledRedirect(flow string) (string, bool) {
	path, ok := p.Disabled[flow]
	if !ok {
		return "", false
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, true
}

// lockTarget returns the lock screen of flow when sub is finalized and the
// flow locks after submit
func (p Policies) lockTarget(flow string, sub *submission.Submission) (string, bool) {
	target, ok := p.LockedAfterSubmit[flow]
	if !ok || sub == nil || !sub.IsSubmitted() {
		return "", false
	}
	return target, true
}

// lockedRedirect returns the screen to send a request for screen to when
// sub is locked. The lock screen itself and after-submit landmark pages stay
// viewable. Mutations use lockTarget directly and have no exemptions.
func (p Policies) lockedRedirect(flow *flowconfig.FlowConfig, screen string, sub *submission.Submission) (string, bool) {
	target, ok := p.lockTarget(flow.Name, sub)
	if !ok {
		return "", false
	}
	if screen == target || flow.IsAfterSubmitPage(screen) {
		return "", false
	}
	return target, true
}

// gate reasons recorded in metrics
const (
	reasonDisabled = "disabled"
	reasonLocked   = "locked"
	reasonLanding  = "first_screen"
	reasonSkipped  = "condition"
)

func (e *Engine) disabledGate(flow string) (Outcome, bool) {
	path, ok := e.policies.disabledRedirect(flow)
	if !ok {
		return Outcome{}, false
	}
	e.logger.Info("flow is disabled", "flow", flow, "redirect", path)
	e.metrics.RecordRedirect(flow, reasonDisabled)
	return redirect(path), true
}

// lockGate guards a read of screen
func (e *Engine) lockGate(flow *flowconfig.FlowConfig, screen string, sub *submission.Submission) (Outcome, bool) {
	target, ok := e.policies.lockedRedirect(flow, screen, sub)
	if !ok {
		return Outcome{}, false
	}
	e.logger.Info("submission is locked after submit", "flow", flow.Name, "screen", screen,
		"submission_id", sub.ID, "redirect", target)
	e.metrics.RecordRedirect(flow.Name, reasonLocked)
	return redirect(ScreenPath(flow.Name, target)), true
}

// mutationGate guards any request that would change sub. A locked
// submission is never merged into or saved, whatever the screen.
func (e *Engine) mutationGate(flow *flowconfig.FlowConfig, screen string, sub *submission.Submission) (Outcome, bool) {
	target, ok := e.policies.lockTarget(flow.Name, sub)
	if !ok {
		return Outcome{}, false
	}
	e.logger.Info("rejected change to locked submission", "flow", flow.Name, "screen", screen,
		"submission_id", sub.ID, "redirect", target)
	e.metrics.RecordRedirect(flow.Name, reasonLocked)
	return redirect(ScreenPath(flow.Name, target)), true
}
