// Package formflow runs multi-screen web forms described by YAML flow
// definitions.
//
// A flow is a graph of named screens. Each screen lists ordered next-screen
// entries guarded by optional named conditions; the first entry whose
// condition holds wins. Screens may belong to a subflow, a repeating group
// of screens that collects a list of iterations (household members, income
// sources) keyed by uuid. One subflow may relate to another so that its
// iterations repeat once per iteration of the driving subflow.
//
// # Packages
//
//	flowconfig    flow YAML loading, the immutable registry and graph analysis
//	submission    the submission aggregate, iteration data and form merging
//	plugin        named conditions, actions and filters, including Lua conditions
//	relationship  links between related subflows
//	navigation    the engine deciding what each request renders or redirects to
//	store         submission persistence in memory, NATS KV or SQLite
//	gateway/http  the chi router, session cookie and error mapping
//	config        server configuration with layered JSON files and env overrides
//
// # Binaries
//
//	cmd/formflow  the form server
//	cmd/flowctl   flow validation, graph printing and config tooling
package formflow
