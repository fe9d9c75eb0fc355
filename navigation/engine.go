// Package navigation decides which screen of a flow a user sees and where
// each post leads. It owns the request pipelines for screens, subflow
// iterations, the navigation endpoint and staged deletion.
package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/metric"
	"github.com/c360/formflow/plugin"
	"github.com/c360/formflow/relationship"
	"github.com/c360/formflow/shortcode"
	"github.com/c360/formflow/store"
	"github.com/c360/formflow/submission"
	"github.com/c360/formflow/validation"
)

// NewIterationID is the path segment that asks for a new iteration
const NewIterationID = "new"

// Navigation outcomes recorded in metrics
const (
	outcomeScreen = "screen"
	outcomeLoop   = "loop"
	outcomeExit   = "exit"
)

// Deps are the collaborators of an Engine. Flows, Conditions, Actions and
// Store are required.
type Deps struct {
	Flows         *flowconfig.Registry
	Conditions    *plugin.Conditions
	Actions       *plugin.Actions
	Relationships *relationship.Manager
	Store         store.Store
	Validator     validation.Validator
	Addresses     validation.AddressValidator
	ShortCodes    *shortcode.Generator
	Policies      Policies
}

// Engine runs the screen pipelines. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	flows         *flowconfig.Registry
	conditions    *plugin.Conditions
	actions       *plugin.Actions
	relationships *relationship.Manager
	store         store.Store
	validator     validation.Validator
	addresses     validation.AddressValidator
	shortCodes    *shortcode.Generator
	policies      Policies

	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
	newUUID func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records navigation metrics into m
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now for submission stamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithUUIDGenerator replaces the iteration uuid source
func WithUUIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newUUID = fn }
}

// NewEngine builds an Engine from deps
func NewEngine(deps Deps, opts ...Option) (*Engine, error) {
	switch {
	case deps.Flows == nil:
		return nil, errors.Invalid("Engine", "NewEngine", "flow registry is required")
	case deps.Conditions == nil:
		return nil, errors.Invalid("Engine", "NewEngine", "condition registry is required")
	case deps.Actions == nil:
		return nil, errors.Invalid("Engine", "NewEngine", "action registry is required")
	case deps.Store == nil:
		return nil, errors.Invalid("Engine", "NewEngine", "submission store is required")
	}
	if err := deps.Policies.Validate(deps.Flows); err != nil {
		return nil, err
	}

	e := &Engine{
		flows:         deps.Flows,
		conditions:    deps.Conditions,
		actions:       deps.Actions,
		relationships: deps.Relationships,
		store:         deps.Store,
		validator:     deps.Validator,
		addresses:     deps.Addresses,
		shortCodes:    deps.ShortCodes,
		policies:      deps.Policies,
		logger:        slog.Default(),
		now:           time.Now,
		newUUID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.relationships == nil {
		e.relationships = relationship.NewManager(deps.Flows, nil, e.logger)
	}
	if e.validator == nil {
		e.validator = validation.NewSchemaValidator()
	}
	if e.addresses == nil {
		e.addresses = validation.NoopAddressValidator{}
	}
	return e, nil
}

// Flows returns the flow registry the engine navigates
func (e *Engine) Flows() *flowconfig.Registry {
	return e.flows
}

// ResolveCurrentScreen looks up a screen; it fails with a not found error
func (e *Engine) ResolveCurrentScreen(flow, screen string) (*flowconfig.ScreenConfig, error) {
	return e.flows.Screen(flow, screen)
}

// evaluate runs a condition for a screen, in iteration shape when the
// screen belongs to a subflow
func (e *Engine) evaluate(condition string, screen *flowconfig.ScreenConfig, sub *submission.Submission, uuid string) bool {
	if screen.Subflow == "" {
		uuid = ""
	}
	return e.conditions.Evaluate(condition, sub, uuid)
}

// NextScreenName picks the transition out of screen. The first conditional
// entry, in declared order, whose condition holds wins; unregistered
// conditions never hold. Otherwise the unconditional entry is used. A
// screen with no unconditional entry is a configuration error; when more
// than one is declared the first wins.
func (e *Engine) NextScreenName(flow, screen string, sub *submission.Submission, iterationUUID string) (string, error) {
	current, err := e.flows.Screen(flow, screen)
	if err != nil {
		return "", err
	}
	return e.nextScreenName(flow, current, sub, iterationUUID)
}

func (e *Engine) nextScreenName(flow string, current *flowconfig.ScreenConfig, sub *submission.Submission, iterationUUID string) (string, error) {
	var fallback []string
	for _, next := range current.NextScreens {
		if !next.IsConditional() {
			fallback = append(fallback, next.Name)
			continue
		}
		if e.evaluate(next.Condition, current, sub, iterationUUID) {
			e.logger.Debug("conditional next screen", "flow", flow, "screen", current.Name,
				"next", next.Name, "condition", next.Condition)
			return next.Name, nil
		}
	}

	switch len(fallback) {
	case 0:
		return "", errors.NewConfigError(flow, current.Name,
			"no condition holds and no unconditional next screen is configured")
	case 1:
	default:
		e.logger.Warn("more than one unconditional next screen, using the first",
			"flow", flow, "screen", current.Name, "candidates", fallback)
	}
	e.logger.Debug("unconditional next screen", "flow", flow, "screen", current.Name, "next", fallback[0])
	return fallback[0], nil
}

// NextViewableScreen follows transitions out of screen until it reaches a
// screen whose own condition holds (or that has none). Reaching a skipped
// screen twice means the flow loops through screens that can never be
// shown, which is reported as ErrNavigationCycle.
func (e *Engine) NextViewableScreen(flow, screen string, sub *submission.Submission, iterationUUID string) (string, error) {
	current, err := e.flows.Screen(flow, screen)
	if err != nil {
		return "", err
	}

	skipped := make(map[string]bool)
	for {
		next, err := e.nextScreenName(flow, current, sub, iterationUUID)
		if err != nil {
			return "", err
		}
		target, err := e.flows.Screen(flow, next)
		if err != nil {
			return "", err
		}
		if target.Condition == "" || e.evaluate(target.Condition, target, sub, iterationUUID) {
			return next, nil
		}
		if skipped[next] {
			cerr := errors.NewConfigError(flow, next,
				fmt.Sprintf("screens skipped by their conditions form a cycle through %s", next))
			cerr.Err = errors.ErrNavigationCycle
			return "", cerr
		}
		skipped[next] = true
		e.logger.Debug("skipping screen whose condition does not hold", "flow", flow, "screen", next,
			"condition", target.Condition)
		current = target
	}
}

// loadSubmission returns the submission recorded in the session for flow,
// or a new unsaved one. A session id the store no longer knows is dropped.
func (e *Engine) loadSubmission(ctx context.Context, rc *RequestContext, flow string) (*submission.Submission, error) {
	id := rc.state().SubmissionID(flow)
	if id == "" {
		return submission.New(flow), nil
	}
	sub, err := e.get(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			e.logger.Warn("session refers to unknown submission", "flow", flow, "submission_id", id)
			return submission.New(flow), nil
		}
		return nil, err
	}
	return sub, nil
}

// requireSubmission returns the session's submission for flow. Requests that
// only make sense after data was posted fail when there is none.
func (e *Engine) requireSubmission(ctx context.Context, rc *RequestContext, flow string) (*submission.Submission, error) {
	id := rc.state().SubmissionID(flow)
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrSessionExpired, "Engine", "requireSubmission",
			fmt.Sprintf("no submission in session for flow %s", flow))
	}
	sub, err := e.get(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.WrapInvalid(errors.ErrSessionExpired, "Engine", "requireSubmission",
				fmt.Sprintf("submission %s for flow %s no longer exists", id, flow))
		}
		return nil, err
	}
	return sub, nil
}

func (e *Engine) get(ctx context.Context, id string) (*submission.Submission, error) {
	start := time.Now()
	sub, err := e.store.Get(ctx, id)
	e.metrics.RecordStoreOperation("get", time.Since(start), errClass(err))
	return sub, err
}

// persist saves sub, generating a creation-time short code for new
// submissions, and records its id in the session
func (e *Engine) persist(ctx context.Context, rc *RequestContext, sub *submission.Submission) error {
	if sub.IsNew() && e.shortCodes != nil {
		if cfg, ok := e.shortCodes.Config(sub.Flow); ok && cfg.CreateAtCreation() {
			if _, err := e.shortCodes.Ensure(ctx, sub); err != nil {
				return err
			}
		}
	}

	start := time.Now()
	err := e.store.Save(ctx, sub)
	e.metrics.RecordStoreOperation("save", time.Since(start), errClass(err))
	if err != nil {
		return errors.Wrap(err, "Engine", "persist", "save submission")
	}
	rc.state().SetSubmissionID(sub.Flow, sub.ID)
	return nil
}

func errClass(err error) string {
	if err == nil || errors.IsNotFound(err) {
		return ""
	}
	return errors.Classify(err).String()
}
