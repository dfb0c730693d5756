package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Label names an operation for traces and fault reports.
type Label struct {
	Op    string
	Layer int
}

func (l Label) String() string { return fmt.Sprintf("%s[%d]", l.Op, l.Layer) }

// OpKind classifies an issued stream operation.
type OpKind int

const (
	OpCopy OpKind = iota
	OpKernel
	OpRecord
	OpWait
)

func (k OpKind) String() string {
	switch k {
	case OpCopy:
		return "copy"
	case OpKernel:
		return "kernel"
	case OpRecord:
		return "record"
	case OpWait:
		return "wait"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

type op struct {
	kind  OpKind
	label Label
	bytes int
	run   func() error
	event *Event
}

// Stream is an in-order command queue. Issuing never blocks the caller.
//
// After a fault every later copy and kernel on the stream is skipped, and
// events recorded on it carry the fault, until the next Synchronize.
type Stream struct {
	id  int
	dev *Device

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []op
	closed bool
	err    error
	busy   time.Duration

	done chan struct{}
}

func newStream(d *Device, id int) *Stream {
	s := &Stream{id: id, dev: d, done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// ID returns the stream index on its device.
func (s *Stream) ID() int { return s.id }

func (s *Stream) String() string { return fmt.Sprintf("%s/stream%d", s.dev, s.id) }

// Copy enqueues dst <- src on the shared copy engine.
func (s *Stream) Copy(label Label, dst, src []float32) {
	s.enqueue(op{
		kind:  OpCopy,
		label: label,
		bytes: 4 * len(src),
		run: func() error {
			if len(dst) != len(src) {
				return errors.Errorf("copy %s: size mismatch dst=%d src=%d", label, len(dst), len(src))
			}
			copy(dst, src)
			return nil
		},
	})
}

// Launch enqueues a kernel.
func (s *Stream) Launch(label Label, kernel func() error) {
	s.enqueue(op{kind: OpKernel, label: label, run: kernel})
}

// Record enqueues a marker and returns the event completed when the stream reaches it.
func (s *Stream) Record() *Event {
	ev := newEvent(s.id)
	s.enqueue(op{kind: OpRecord, event: ev})
	return ev
}

// Wait makes all later work on s wait for ev. Waiting on an event of the
// same stream is a no-op since the stream already runs in order.
func (s *Stream) Wait(ev *Event) {
	if ev == nil || ev.Stream() == s.id {
		return
	}
	s.enqueue(op{kind: OpWait, event: ev, label: Label{Op: "wait", Layer: -1}})
}

// Synchronize blocks until every operation issued so far has executed and
// returns (and clears) the stream's fault, if any.
func (s *Stream) Synchronize() error {
	ev := s.Record()
	<-ev.done

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

// Busy reports the accumulated time spent executing copies and kernels.
func (s *Stream) Busy() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// ResetBusy clears the busy-time counter.
func (s *Stream) ResetBusy() {
	s.mu.Lock()
	s.busy = 0
	s.mu.Unlock()
}

// Close drains the queue, stops the worker and detaches the stream from its device.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
	s.dev.forget(s)
}

func (s *Stream) enqueue(o op) {
	if t := s.dev.opts.Trace; t != nil {
		t.add(s.id, o.kind, o.label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if s.err == nil {
			s.err = &Fault{Stream: s.id, Label: o.label, Err: ErrClosed}
		}
		if o.event != nil && o.kind == OpRecord {
			o.event.complete(s.err)
		}
		return
	}
	s.queue = append(s.queue, o)
	s.cond.Signal()
}

func (s *Stream) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		o := s.queue[0]
		s.queue[0] = op{}
		s.queue = s.queue[1:]
		failed := s.err
		s.mu.Unlock()

		s.execute(o, failed)
	}
}

func (s *Stream) execute(o op, failed error) {
	switch o.kind {
	case OpRecord:
		o.event.complete(failed)
	case OpWait:
		if err := o.event.wait(); err != nil && failed == nil {
			s.fail(&Fault{Stream: s.id, Label: o.label, Err: err, Upstream: true})
		}
	default:
		if failed != nil {
			klog.V(3).Infof("%s: skipping %s after fault", s, o.label)
			return
		}
		start := time.Now()
		err := s.run(o)
		elapsed := time.Since(start)

		s.mu.Lock()
		s.busy += elapsed
		s.mu.Unlock()

		klog.V(2).Infof("%s: %s %s took %s", s, o.kind, o.label, elapsed)
		if err != nil {
			s.fail(&Fault{Stream: s.id, Label: o.label, Err: err})
		}
	}
}

func (s *Stream) run(o op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s %s panicked: %v", o.kind, o.label, r)
		}
	}()

	if inject := s.dev.opts.Faults; inject != nil {
		if err := inject(s.id, o.label); err != nil {
			return err
		}
	}
	switch o.kind {
	case OpCopy:
		return s.dev.transfer(o.bytes, o.run)
	case OpKernel:
		if lat := s.dev.opts.LaunchLatency; lat > 0 {
			time.Sleep(lat)
		}
		return o.run()
	}
	return errors.Errorf("unexpected op kind %s", o.kind)
}

func (s *Stream) fail(f *Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = f
		klog.V(1).Infof("%s: fault: %v", s, f)
	}
}
