// Package testutil holds helpers shared by formflow tests: flow registries
// parsed from inline YAML, deterministic id and clock sources, and a
// submission store wrapper with error injection.
package testutil
