package executor

import "fmt"

// StreamExecutionError reports a device fault during a forward pass. The
// partial output is discarded.
type StreamExecutionError struct {
	Layer  int
	Stream int
	Op     string
	Err    error
}

func (e *StreamExecutionError) Error() string {
	return fmt.Sprintf("stream execution failed: layer %d %s on stream %d: %v", e.Layer, e.Op, e.Stream, e.Err)
}

func (e *StreamExecutionError) Unwrap() error { return e.Err }
