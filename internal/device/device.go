// Package device simulates an accelerator with independent execution streams.
//
// Each Stream is an in-order command queue drained by its own goroutine, so
// work issued on different streams runs concurrently while work on one stream
// runs strictly in issue order. Cross-stream ordering exists only where a
// Stream.Wait on an Event was issued. Host-to-device copies share a single
// copy engine whose throughput can be capped to model a PCIe-style link.
//
// A Device is an explicit handle: nothing in this package keeps global
// "current device" state.
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultTimerSlots bounds the number of concurrently held timers.
	DefaultTimerSlots = 8
	// DefaultMemoryBytes is the capacity of a device opened without MemoryBytes.
	DefaultMemoryBytes int64 = 16e9
)

var (
	// ErrClosed is returned when a closed device or stream is used.
	ErrClosed = errors.New("device: closed")
	// ErrNoTimer is returned when every timer slot is held.
	ErrNoTimer = errors.New("device: no timer slot available")
	// ErrOutOfMemory is returned when a reservation exceeds the free capacity.
	ErrOutOfMemory = errors.New("device: out of memory")
	// ErrTimerReleased is returned when a timer is released twice.
	ErrTimerReleased = errors.New("device: timer already released")
)

// FaultInjector is consulted before every copy and kernel. A non-nil error
// is treated as a device-level fault on that stream.
type FaultInjector func(stream int, label Label) error

// Options configures a simulated device.
type Options struct {
	// Ordinal identifies the device, as in "cuda:0".
	Ordinal int
	// TransferBandwidth caps copy throughput in bytes per second. Zero means unthrottled.
	TransferBandwidth float64
	// LaunchLatency is added to every kernel on the stream that runs it.
	LaunchLatency time.Duration
	// TimerSlots bounds concurrently acquired timers. Zero selects DefaultTimerSlots.
	TimerSlots int
	// MemoryBytes is the capacity Reserve draws from. Zero selects DefaultMemoryBytes.
	MemoryBytes int64
	// Autotune benchmarks kernel variants on first use and caches the fastest.
	Autotune bool
	// Faults injects device faults, mostly for tests.
	Faults FaultInjector
	// Trace, when set, records every issued operation.
	Trace *Trace
}

// Device owns streams, the copy engine, timer slots and the kernel tuner.
type Device struct {
	opts Options

	mu            sync.Mutex
	streams       map[int]*Stream
	nextStream    int
	closed        bool
	defaultStream *Stream

	copyEngine sync.Mutex
	timers     chan struct{}
	tuner      *Tuner

	memMu    sync.Mutex
	reserved int64
}

// Open creates a device handle and its default stream.
func Open(opts Options) (*Device, error) {
	if opts.Ordinal < 0 {
		return nil, errors.Errorf("device: invalid ordinal %d", opts.Ordinal)
	}
	if opts.TransferBandwidth < 0 {
		return nil, errors.Errorf("device: negative transfer bandwidth %g", opts.TransferBandwidth)
	}
	if opts.LaunchLatency < 0 {
		return nil, errors.Errorf("device: negative launch latency %s", opts.LaunchLatency)
	}
	if opts.TimerSlots < 0 {
		return nil, errors.Errorf("device: negative timer slots %d", opts.TimerSlots)
	}
	if opts.MemoryBytes < 0 {
		return nil, errors.Errorf("device: negative memory capacity %d", opts.MemoryBytes)
	}
	if opts.TimerSlots == 0 {
		opts.TimerSlots = DefaultTimerSlots
	}
	if opts.MemoryBytes == 0 {
		opts.MemoryBytes = DefaultMemoryBytes
	}

	d := &Device{
		opts:    opts,
		streams: make(map[int]*Stream),
		timers:  make(chan struct{}, opts.TimerSlots),
		tuner:   NewTuner(opts.Autotune),
	}
	s, err := d.NewStream()
	if err != nil {
		return nil, err
	}
	d.defaultStream = s
	klog.V(1).Infof("opened %s (bandwidth=%g B/s, launch latency=%s, memory=%s, autotune=%v)",
		d, opts.TransferBandwidth, opts.LaunchLatency, humanize.Bytes(uint64(opts.MemoryBytes)), opts.Autotune)
	return d, nil
}

func (d *Device) String() string { return fmt.Sprintf("sim:%d", d.opts.Ordinal) }

// Ordinal returns the device index.
func (d *Device) Ordinal() int { return d.opts.Ordinal }

// Tuner returns the device-wide kernel selection cache.
func (d *Device) Tuner() *Tuner { return d.tuner }

// DefaultStream is the stream timers record their markers on.
func (d *Device) DefaultStream() *Stream { return d.defaultStream }

// NewStream creates a stream and starts its worker.
func (d *Device) NewStream() (*Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	s := newStream(d, d.nextStream)
	d.streams[s.id] = s
	d.nextStream++
	return s, nil
}

func (d *Device) forget(s *Stream) {
	d.mu.Lock()
	delete(d.streams, s.id)
	d.mu.Unlock()
}

func (d *Device) liveStreams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Stream, 0, len(d.streams))
	for id := 0; id < d.nextStream; id++ {
		if s, ok := d.streams[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Synchronize blocks until every live stream has drained its queue.
// Faults collected since the last synchronization are cleared; the origin
// fault among them is returned.
func (d *Device) Synchronize() error {
	var errs []error
	for _, s := range d.liveStreams() {
		if err := s.Synchronize(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if f := OriginFault(errs); f != nil {
		return f
	}
	return errs[0]
}

// Capacity returns the memory Reserve draws from, in bytes.
func (d *Device) Capacity() int64 { return d.opts.MemoryBytes }

// Reserved returns the bytes currently reserved.
func (d *Device) Reserved() int64 {
	d.memMu.Lock()
	defer d.memMu.Unlock()
	return d.reserved
}

// Reserve claims n bytes of device memory for what. It fails with a wrapped
// ErrOutOfMemory, leaving the reservation unchanged, when n does not fit.
func (d *Device) Reserve(what string, n int64) error {
	if n < 0 {
		return errors.Errorf("device: negative reservation %d for %s", n, what)
	}
	d.memMu.Lock()
	defer d.memMu.Unlock()
	if free := d.opts.MemoryBytes - d.reserved; n > free {
		return errors.Wrapf(ErrOutOfMemory, "%s: %s needs %s, %s of %s free",
			d, what, humanize.Bytes(uint64(n)), humanize.Bytes(uint64(free)), humanize.Bytes(uint64(d.opts.MemoryBytes)))
	}
	d.reserved += n
	klog.V(2).Infof("%s: reserved %s for %s", d, humanize.Bytes(uint64(n)), what)
	return nil
}

// Free returns n reserved bytes.
func (d *Device) Free(n int64) {
	d.memMu.Lock()
	defer d.memMu.Unlock()
	d.reserved -= n
	if d.reserved < 0 {
		d.reserved = 0
	}
}

// Close drains and stops every stream. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	for _, s := range d.liveStreams() {
		s.Close()
	}
	return nil
}

// transfer runs fn on the copy engine, stretching it to the configured bandwidth.
func (d *Device) transfer(bytes int, fn func() error) error {
	d.copyEngine.Lock()
	defer d.copyEngine.Unlock()

	start := time.Now()
	err := fn()
	if bw := d.opts.TransferBandwidth; bw > 0 && bytes > 0 {
		want := time.Duration(float64(bytes) / bw * float64(time.Second))
		if rest := want - time.Since(start); rest > 0 {
			time.Sleep(rest)
		}
	}
	return err
}

// AcquireTimer takes a timer slot without blocking.
func (d *Device) AcquireTimer() (*Timer, error) {
	select {
	case d.timers <- struct{}{}:
		return &Timer{dev: d}, nil
	default:
		return nil, ErrNoTimer
	}
}

// TimersInUse reports how many timer slots are currently held.
func (d *Device) TimersInUse() int { return len(d.timers) }
