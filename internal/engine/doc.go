// Package engine implements the KILN frame loop.
//
// The Engine is the application context object. It owns the module
// orchestrator, the layer stack, the main-thread task queue and the frame
// timer, and it is handed explicitly to whatever needs it. There is no
// package-level instance.
//
// ARCHITECTURE:
//
// Single Main Goroutine:
// Run, Step, every module Update and every layer callback execute on the one
// goroutine that called Run. Nothing in a frame blocks or waits.
// Cross-goroutine work reaches the main goroutine only through Submit.
//
// Frame Sequence (Step):
// 1. Delta since the previous frame, clamped to MaxDelta
// 2. FPS counter; snapshot once per elapsed real second
// 3. Drain the task queue
// 4. UpdatePre, UpdateNormal, layer OnUpdate (stack order), UpdatePost
// 5. Unless minimized: finish a pending resize, UpdateRender, layer OnRender
// 6. On the snapshot frame only: record Stats and hand them to the sink
//
// Any error from step 3-5 aborts the frame and terminates Run.
//
// Event Routing (OnEvent):
// Built-in handlers run first in fixed order (window close, window iconify,
// window resize), then layers back-to-front until one marks the event
// handled.
//
// Shutdown Sequence:
// Renderer.WaitIdle, DestroyPre, layers Detach, DestroyNormal, layers
// Destroy, DestroyPost. Every step runs even if an earlier one failed; the
// errors are joined.
//
// THREAD-SAFETY:
//   - Submit, Close, Running: safe from any goroutine
//   - everything else: main goroutine only
package engine
