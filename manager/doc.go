// Package manager implements the MCP server lifecycle: install, configure,
// inspect, and remove.
//
// The package is intentionally split by concern:
//   - record: persisted server metadata and storage interfaces
//   - resolver: source package inspection (pyproject, entry scripts)
//   - engine: isolated environment creation and teardown (pipx, venv)
//   - platform: host platform targets and their config file shapes
//   - synchronizer: surgical edits to platform JSON configs
//   - manager: orchestration across engine, store, and synchronizer
//
// Every mutating operation is keyed by server name, keeps the registry as the
// last thing written on install, and leaves enough state behind on partial
// failure for a re-run to finish the job.
package manager
