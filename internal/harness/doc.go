// Package harness runs import conformance scenarios.
//
// A scenario imports one or more content packages into a fresh in-memory
// ledger and asserts on the resulting events, ImportLog rows and hash
// chains. Scenarios are the executable form of importer behavior:
// ordering, idempotent re-runs, collision policy and failure atomicity.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	campaign: camp-1
//	packages:
//	  core:
//	    manifest: { package_id: core, title: Core }
//	    files:
//	      entities/alric.json: |
//	        {"stable_id": "npc:alric", "kind": "npc", "name": "Alric"}
//	  on_disk:
//	    dir: ../packages/greenhollow   # relative to the scenario file
//	steps:
//	  - import: core
//	    expect: { outcome: completed, events_created: 3 }
//	  - import: core
//	    expect: { outcome: skipped }
//	assertions:
//	  - type: event_count
//	    count: 3
//	  - type: chain_valid
//
// Inline packages get a valid manifest by default and a content_index
// computed from their files; "unindexed" and "index" entries break the
// index on purpose.
//
// # Assertion Types
//
//   - event_count: number of events, optionally of one event_type
//   - event_order: event types first appear in the listed order
//   - event_contains: an event of event_type has a payload containing payload
//   - import_log_count: ImportLog rows matching phase/action/object_type
//   - chain_valid: the campaign's hash chain recomputes from the store
//
// # Suites
//
// RunSuite runs every scenario file in a directory; the CLI exposes it as
// "loreledger test <scenarios-dir>".
//
// # Deterministic Testing
//
// Every scenario runs with a deterministic wall clock and its own
// database, so golden snapshots (RunWithGolden) are stable across runs.
package harness
