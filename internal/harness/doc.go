// Package harness runs scripted command scenarios against a tree engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: move_to_sibling
//	description: "A node can move below its sibling"
//	steps:
//	  - command: add
//	    id: a
//	    parent: root
//	  - command: move
//	    id: a
//	    parent: b
//	    expect:
//	      outcome: constraint
//	      code: MISSING_PARENT
//	      message: "new parent node does not exist"
//	final:
//	  parents: { a: root }
//	  events: 1
//
// A step without expect must succeed. Commands are add, move and reset.
//
// Each scenario runs against a fresh in-memory SQLite log. After the last
// step the log is replayed through the strict reference tree; any invalid
// committed event fails the scenario.
//
// # Golden Files
//
// RunWithGolden snapshots the step outcomes and the rendered tree as
// canonical JSON under testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
package harness
