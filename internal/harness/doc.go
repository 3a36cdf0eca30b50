// Package harness runs multi-replica convergence scenarios.
//
// A scenario declares a set of replicas, then drives them through a
// sequence of steps: local commits made at chosen instants, pairwise
// syncs and full snapshot regenerations. Assertions check the final state
// of each replica, and the step trace plus final state can be compared
// against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	replicas: [a, b]
//	steps:
//	  - replica: a
//	    at: 1s
//	    label: c1
//	    commit:
//	      - { op: create_word, id: w, text: hello }
//	  - replica: b
//	    at: 2s
//	    commit:
//	      - { op: create_definition, id: d, word: w, gloss: greeting }
//	  - sync: [a, b]
//	assertions:
//	  - type: converged
//	    replicas: [a, b]
//	  - type: entity
//	    replica: b
//	    entity: d
//	    deleted: false
//	    fields: { gloss: greeting, word_id: w }
//
// Entities and commits are referred to by name. Names map to fixed ids, so
// every run of a scenario produces the same commit ids, hashes and state.
//
// # Change Operations
//
//   - create_word: id, text, note
//   - edit_word: id, text, note (unset fields are left alone)
//   - create_definition: id, word, gloss
//   - edit_definition: id, gloss
//   - create_example: id, definition, sentence
//   - create_crossref: id, word, target
//   - set_target: id, target (empty target clears it)
//   - delete: id
//
// # Assertion Types
//
//   - converged: every listed replica holds the same current state
//   - entity: one entity's deletion flag, owning commit and fields
//   - live_count: number of live entities of a type on a replica
//   - commit_order: the replica's log, in order, is exactly these commits
//   - chain_valid: the replica's hash chain validates
//   - replay_equivalent: a replay from scratch matches stored snapshots
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/late_insert.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
