package machine

import (
	"fmt"
	"strings"
)

// A TraceFrame is one entry of a runtime stack trace, innermost first.
type TraceFrame struct {
	Function string
	File     string
	Line     int
}

func (t TraceFrame) String() string {
	return fmt.Sprintf("%s:%d in %s", t.File, t.Line, t.Function)
}

// A RuntimeError is an execution error carrying the source position and the
// call stack at the point of failure.
type RuntimeError struct {
	Msg    string
	File   string
	Line   int
	Trace  []TraceFrame
	Thrown Value // non-nil when the error originates from an uncaught throw
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Msg)
	if e.File != "" {
		fmt.Fprintf(&sb, " (%s:%d", e.File, e.Line)
		if len(e.Trace) > 0 {
			fmt.Fprintf(&sb, " in %s", e.Trace[0].Function)
		}
		sb.WriteString(")")
	}
	for _, fr := range e.Trace {
		sb.WriteString("\n\tat ")
		sb.WriteString(fr.String())
	}
	return sb.String()
}
