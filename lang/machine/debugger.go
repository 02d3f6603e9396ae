package machine

import "time"

// A Debugger is consulted by the interpreter at source line transitions. The
// higher-level protocol (breakpoint storage, step control) is external; a
// hook attached across threads must synchronize its own state, as the
// interpreter calls it from the execution goroutine.
type Debugger interface {
	// ShouldStop is called when the current instruction's line differs from
	// the previously executed one. It returns whether to pause and a short
	// reason (e.g. "breakpoint", "step").
	ShouldStop(file string, line, frameDepth int) (bool, string)

	// OnStopped notifies the debugger that execution paused.
	OnStopped(reason, file string, line int)

	// IsPaused is polled while execution is suspended; the loop resumes when
	// it returns false.
	IsPaused() bool
}

// debugPause blocks while the debugger holds the machine paused.
func debugPause(d Debugger) {
	for d.IsPaused() {
		time.Sleep(time.Millisecond)
	}
}
