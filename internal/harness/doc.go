// Package harness runs scripted multi-peer scenarios against the sync
// coordinator.
//
// A scenario is a YAML document checked against an embedded CUE schema
// (schema.cue) and then decoded strictly:
//
//	name: late_joiner
//	description: a peer joining mid-presentation attaches to the deck on screen
//	decks:
//	  A: {pages: 5, width: 1600, height: 900}
//	peers:
//	  - name: alice
//	  - name: bob
//	    late: true
//	steps:
//	  - {op: create, peer: alice, task: A}
//	  - {op: change, peer: alice, task: A, page: 3}
//	  - {op: join, peer: bob}
//	assertions:
//	  - {type: rendered, peer: bob, task: A, page: 3}
//
// Every run gets a fresh in-memory room hub, a fake clock starting at the
// Unix epoch and one coordinator per joined peer, each with its own headless
// renderer pool. With delivery "manual" room notifications are held until a
// flush step, so scenarios can reorder attribute and scene delivery.
//
// After each step the harness settles every peer's event queue, so the
// state checked by assertions is deterministic. Time only moves on advance
// steps.
//
// # Golden files
//
// RunWithGolden snapshots the step outcomes, the committed room and each
// peer's view as canonical JSON under testdata/golden.
package harness
