// Package harness runs end-to-end federation scenarios.
//
// A scenario declares its members and their data, one query, and the
// solutions the federation must produce. Each run builds a fresh
// federation over in-memory stores, so scenarios are isolated and
// reproducible.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	default: local
//	batch_size: 2
//	members:
//	  - id: local
//	    data: |
//	      <urn:s1> <urn:p> <urn:o1> .
//	  - id: remote
//	    ref: urn:m:remote
//	    kind: sparql
//	    data: |
//	      <urn:o1> <urn:r> "x1" .
//	query: |
//	  SELECT ?s ?x WHERE {
//	    ?s <urn:p> ?o .
//	    SERVICE <urn:m:remote> { ?o <urn:r> ?x }
//	  }
//	expect:
//	  vars: [s, x]
//	  rows:
//	    - {s: "<urn:s1>", x: '"x1"'}
//	assertions:
//	  - type: dispatch_count
//	    member: remote
//	    count: 1
//
// Terms in bindings and expected rows are written in N-Triples syntax.
// A member of kind "sparql" is served by an in-process endpoint, so the
// engine dispatches rendered query text to it; a "local" member is a
// triple source the engine matches patterns against. A member with
// "refuse" set rejects every connection with that message.
//
// # Assertion Types
//
//   - row_count: the query produced exactly Count solutions
//   - contains_row: some solution binds at least the given values
//   - dispatch_count: the member received exactly Count requests
//   - plan_contains: the optimized tree contains the given text
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/bound_join.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
