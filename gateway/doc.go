// Package gateway defines the contract between the form flow engine and the
// transport that serves it.
//
// The engine in package navigation decides, for each request, either a
// redirect or a view plus render model. A gateway turns HTTP requests into
// engine calls and hands views to a Renderer:
//
//	┌─────────────────┐
//	│  Browser        │  POST /flow/ubi/householdMember/new
//	└────────┬────────┘
//	         ↓
//	┌────────────────────────────────────────┐
//	│  gateway/http                          │
//	│  session cookie, form parsing, limits  │
//	└────────┬───────────────────────────────┘
//	         ↓ navigation.Engine
//	┌────────────────────────────────────────┐
//	│  Outcome: redirect, or view + Model    │
//	└────────┬───────────────────────────────┘
//	         ↓
//	┌────────────────────────────────────────┐
//	│  Renderer (JSON by default)            │
//	└────────────────────────────────────────┘
//
// # Error responses
//
// Engine errors are mapped to status codes before they reach the Renderer:
//
//	NotFound (flow, screen, subflow, iteration)   404
//	expired session, invalid input                400
//	concurrent modification                       409
//	storage unavailable                           503
//	configuration ambiguity, navigation cycle     500
//
// Only NotFound messages are shown to clients verbatim. Everything else is
// replaced by a generic message and logged with the request id.
package gateway
