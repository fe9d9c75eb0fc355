// Package config loads the formflow server configuration.
//
// Configuration is JSON. A Loader starts from built-in defaults, merges each
// layer file on top (later layers win, objects merge key by key) and finally
// applies FORMFLOW_* environment overrides.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/production.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Durations may be written as strings ("30s", "12h", "7d") or as integer
// nanoseconds.
//
// # Sections
//
//   - http: listen address, timeouts, POST rate limit
//   - metrics: Prometheus endpoint
//   - storage: submission store backend (memory, kv, sqlite)
//   - nats: connection used by the kv backend
//   - session: cookie name and idle TTL
//   - flows: flow definition files and Lua condition scripts
//   - policies: locked-after-submit, disabled flows, short codes
//
// # Environment overrides
//
//	FORMFLOW_HTTP_ADDR            http.addr
//	FORMFLOW_METRICS_PORT         metrics.port
//	FORMFLOW_STORAGE_BACKEND      storage.backend
//	FORMFLOW_STORAGE_BUCKET       storage.bucket
//	FORMFLOW_STORAGE_SQLITE_PATH  storage.sqlite_path
//	FORMFLOW_NATS_URLS            nats.urls (comma separated)
//	FORMFLOW_NATS_USERNAME        nats.username
//	FORMFLOW_NATS_PASSWORD        nats.password
//	FORMFLOW_NATS_TOKEN           nats.token
//	FORMFLOW_SESSION_TTL          session.ttl
//	FORMFLOW_FLOWS_PATHS          flows.paths (comma separated)
//	FORMFLOW_FLOWS_LUA_DIR        flows.lua_dir
package config
