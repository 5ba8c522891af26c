package client

import "time"

// Operation names an Event's transfer direction.
type Operation string

const (
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
)

// Event is one progress notification emitted during a transfer (spec §4.9
// "Progress": "the engine emits monotonically non-decreasing progress
// events {operation, path, bytes_done, total_bytes, elapsed}").
type Event struct {
	Operation  Operation
	Path       string
	BytesDone  uint64
	TotalBytes uint64
	Elapsed    time.Duration
}

// ProgressFunc receives Events during Upload/Download. It MAY be called
// from the engine's own goroutine; implementations that touch shared state
// must synchronize themselves.
type ProgressFunc func(Event)

// progressEmitter rate-limits Event delivery so a fast local transfer
// doesn't flood a slow consumer (spec §4.9 "Event emission MAY be
// rate-limited to avoid flooding the consumer"), while always delivering
// the final (bytes_done == total_bytes) event so consumers can detect
// completion.
type progressEmitter struct {
	fn       ProgressFunc
	op       Operation
	path     string
	total    uint64
	start    time.Time
	minGap   time.Duration
	lastSent time.Time
}

func newProgressEmitter(fn ProgressFunc, op Operation, path string, total uint64) *progressEmitter {
	return &progressEmitter{
		fn:     fn,
		op:     op,
		path:   path,
		total:  total,
		start:  time.Now(),
		minGap: 100 * time.Millisecond,
	}
}

func (p *progressEmitter) report(done uint64) {
	if p == nil || p.fn == nil {
		return
	}
	now := time.Now()
	final := done >= p.total
	if !final && now.Sub(p.lastSent) < p.minGap {
		return
	}
	p.lastSent = now
	p.fn(Event{
		Operation:  p.op,
		Path:       p.path,
		BytesDone:  done,
		TotalBytes: p.total,
		Elapsed:    now.Sub(p.start),
	})
}
