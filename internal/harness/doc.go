// Package harness runs query scenarios end to end.
//
// A scenario is a YAML file naming an entity model, seed rows and a list of
// cases. Each case is a query document with parameter values and the
// expected SQL, rows or error:
//
//	name: customers
//	description: null parameters compare with source semantics
//	schema: ../schema/shop.cue
//	seed:
//	  Customer:
//	    - {Id: 1, Name: Ann, City: Berlin, Tags: []}
//	    - {Id: 2, City: Paris, Tags: []}
//	cases:
//	  - name: null name
//	    query:
//	      from: Customer
//	      params: {name: string}
//	      ops:
//	        - [Where, ["=>", c, ["==", c.Name, $name]]]
//	        - [Select, ["=>", c, c.Id]]
//	    params: {name: null}
//	    expect:
//	      rows: [[2]]
//	      cacheable: false
//
// Every scenario runs in a fresh in-memory database. Rows are compared by
// rendered value, unordered unless the case says otherwise, and mismatches
// are reported as unified diffs. Golden files under testdata/golden keep
// the generated SQL of every case under review.
package harness
