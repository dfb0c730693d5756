package device

import "sync"

// TraceEntry is one issued operation.
type TraceEntry struct {
	Stream int
	Kind   OpKind
	Label  Label
}

// Trace records operations in host issue order.
type Trace struct {
	mu      sync.Mutex
	entries []TraceEntry
}

func (t *Trace) add(stream int, kind OpKind, label Label) {
	t.mu.Lock()
	t.entries = append(t.entries, TraceEntry{Stream: stream, Kind: kind, Label: label})
	t.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEntry(nil), t.entries...)
}

// Work returns the labels of issued copies and kernels, in order.
func (t *Trace) Work() []Label {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Label
	for _, e := range t.entries {
		if e.Kind == OpCopy || e.Kind == OpKernel {
			out = append(out, e.Label)
		}
	}
	return out
}

// Reset discards recorded entries.
func (t *Trace) Reset() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}
