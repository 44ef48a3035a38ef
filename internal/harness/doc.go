// Package harness runs scripted engine scenarios headlessly and checks the
// resulting trace.
//
// A scenario is a YAML file naming scripted modules (with phases,
// requirements and failure points), recording layers, a frame count and
// the events to inject before each frame:
//
//	name: resize_drag
//	description: Surface rebuild waits for the drag to end
//	builtins: [window]
//	modules:
//	  - id: sim
//	layers:
//	  - name: game
//	frames: 4
//	events:
//	  - {frame: 1, kind: MouseButtonPressed, button: 0}
//	  - {frame: 1, kind: WindowResize, width: 900, height: 700}
//	  - {frame: 3, kind: MouseButtonReleased, button: 0}
//	assertions:
//	  - type: trace_count
//	    entry: resize surface 900x700
//	    count: 1
//
// The harness drives the same engine the application runs, through the
// headless window and renderer, with a manual clock and a fixed session ID.
// Each run gets its own in-memory session store; the lifecycle log is read
// back from it, so lifecycle_order assertions check what was persisted.
//
// # Trace
//
// The trace is the ordered journal of everything observable:
//
//	frame N                  frame marker, written before events are injected
//	construct|update|destroy <module>
//	attach|detach|release <layer>
//	layer update|layer render <layer>
//	event <layer> <event>
//	resize surface WxH       renderer surface rebuild
//	wait idle                renderer drained at shutdown
//	shutdown                 written before Engine.Shutdown
//
// # Golden Files
//
// RunWithGolden compares the full snapshot (session, frame count, run
// error, trace, lifecycle) against testdata/golden/<name>.golden. Run the
// tests with -update to regenerate.
package harness
