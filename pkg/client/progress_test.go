package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProgressEmitterAlwaysSendsFinalEvent(t *testing.T) {
	var events []Event
	p := newProgressEmitter(func(e Event) { events = append(events, e) }, OpUpload, "a.bin", 100)
	p.minGap = time.Hour // make throttling unconditional except for the final event

	p.report(0)
	p.report(50)
	p.report(100)

	require.Len(t, events, 2, "only the first and final (bytes_done == total) events should pass the throttle")
	require.Equal(t, uint64(0), events[0].BytesDone)
	require.Equal(t, uint64(100), events[1].BytesDone)
	require.Equal(t, OpUpload, events[1].Operation)
	require.Equal(t, "a.bin", events[1].Path)
}

func TestProgressEmitterNilFuncIsNoop(t *testing.T) {
	p := newProgressEmitter(nil, OpDownload, "b.bin", 10)
	require.NotPanics(t, func() { p.report(10) })
}

func TestProgressEmitterMonotonicBytesDone(t *testing.T) {
	var lastDone uint64
	p := newProgressEmitter(func(e Event) {
		require.GreaterOrEqual(t, e.BytesDone, lastDone)
		lastDone = e.BytesDone
	}, OpDownload, "c.bin", 300)
	p.minGap = 0

	for _, done := range []uint64{0, 100, 200, 300} {
		p.report(done)
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, uint64(300), lastDone)
}
