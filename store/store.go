// Package store persists Submission aggregates. The navigation engine only
// depends on the Store interface; memory, NATS KV and SQLite backends are
// provided.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

// Backend names accepted by configuration
const (
	BackendMemory = "memory"
	BackendKV     = "kv"
	BackendSQLite = "sqlite"
)

// Store is a keyed get/create/save collaborator for submissions.
//
// Get returns a NotFound error for unknown ids. Save creates the submission
// when it has no id yet, assigning one along with its timestamps. Returned
// submissions are copies; callers own them.
type Store interface {
	Get(ctx context.Context, id string) (*submission.Submission, error)
	Create(ctx context.Context, sub *submission.Submission) error
	Save(ctx context.Context, sub *submission.Submission) error
	Delete(ctx context.Context, id string) error
	ShortCodeExists(ctx context.Context, code string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Option configures the shared behaviour of every backend
type Option func(*options)

type options struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

func defaultOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now for created/updated stamps
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger for backend warnings
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIDGenerator replaces the uuid-based id generator
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// stampNew assigns identity and timestamps to a submission being created
func (o options) stampNew(sub *submission.Submission) {
	if sub.ID == "" {
		sub.ID = o.newID()
	}
	now := o.now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
}

func notFound(sub string) error {
	return errors.NewNotFound("", "", fmt.Sprintf("submission %s not found", sub))
}

func checkSubmission(component, method string, sub *submission.Submission) error {
	if sub == nil {
		return errors.Invalid(component, method, "submission cannot be nil")
	}
	if sub.Flow == "" {
		return errors.Invalid(component, method, "submission flow cannot be empty")
	}
	return nil
}
