// Package errors provides standardized error handling patterns for formflow.
//
// # Error Classification
//
// Infrastructure errors are grouped into three classes:
//
//   - Transient: network timeouts, store conflicts, temporary unavailability
//   - Invalid: malformed input or requests that cannot be served as sent
//   - Fatal: unusable configuration or corrupted data
//
// # Domain Errors
//
// The navigation engine reports problems with a small taxonomy:
//
//   - NotFoundError (matches ErrNotFound): flow, screen, subflow, iteration or
//     submission absent. The HTTP layer answers 404.
//   - ConfigError (matches ErrConfigAmbiguity): a screen with no unconditional
//     next screen, a relationship to an unknown subflow, or a cycle of screens
//     whose conditions never hold (also matches ErrNavigationCycle).
//   - ErrSubmissionLocked: mutation of a finalized submission.
//
// Validation failures and missing plugins are not errors; the engine absorbs
// them and they only change the navigation outcome.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
//	errors.WrapTransient(err, "KVStore", "Save", "put submission")
//	errors.WrapInvalid(err, "Loader", "Load", "parse flow document")
//	errors.WrapFatal(err, "SQLiteStore", "Get", "unmarshal input data")
package errors
