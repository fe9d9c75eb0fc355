// Package health reports whether formflow's backing services are usable.
//
// A Monitor holds named checks. Critical checks (the submission store) make
// the aggregate unhealthy when they fail; non-critical checks (the NATS
// connection) only degrade it. Failure messages are sanitized before they
// leave the process so URLs, paths and credentials never reach a client.
//
//	m := health.NewMonitor("formflow", health.WithTimeout(2*time.Second))
//	m.Register("storage", st.Ping, true)
//	status := m.Check(ctx)
//	if status.IsUnhealthy() {
//		// 503
//	}
package health
