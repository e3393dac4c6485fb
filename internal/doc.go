// Package internal contains the implementation packages of the toast CLI.
//
// # Package Organization
//
//   - registry: the source registry, one record per module keyed by its
//     project-relative path
//   - scanner: discovery of modules under the source directory
//   - importmap: loading and resolving the import map
//   - compiler: per-target rewriting of import specifiers
//   - cache: memoized and persisted compile output keyed by content
//   - routes: the route data record and slug normalization
//   - barrier: the ordered, end-terminated queue of route data events
//   - session: one in-flight build and the producers waiting for it
//   - build: the build orchestrator and its metrics
//   - feed: HTTP, websocket and file transports for route data
//   - watcher: debounced file watching for rebuilds
//   - config, logging, errors, middleware, version: shared infrastructure
//
// # Data Flow
//
// A build opens a session, loads the import map, waits for the barrier to
// drain, registers every module and compiles each one for the browser and
// the server through the cache. Artifacts are only written once every module
// has compiled.
package internal
