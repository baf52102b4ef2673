// SPDX-License-Identifier: MIT
package fifo

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDrifter(t *testing.T) *DriftTolerantQueue[float32] {
	t.Helper()
	q, err := NewDriftTolerantQueue[float32](10, 15, 20)
	require.NoError(t, err)
	return q
}

// startedDrifter returns a queue whose startup padding was replaced by the
// values 1..15.
func startedDrifter(t *testing.T) *DriftTolerantQueue[float32] {
	t.Helper()
	q := newTestDrifter(t)
	require.NoError(t, q.Read(nil))
	for i := range 15 {
		v := []float32{float32(1 + i)}
		require.NoError(t, q.Write(v))
		require.NoError(t, q.Read(v))
	}
	require.Equal(t, 15, q.FillCount())
	return q
}

func write1(q *DriftTolerantQueue[float32], v float32) {
	_ = q.Write([]float32{v})
}

func read1(q *DriftTolerantQueue[float32]) float32 {
	buf := []float32{-1}
	_ = q.Read(buf)
	return buf[0]
}

func TestDriftTolerantQueueConstructor(t *testing.T) {
	q := newTestDrifter(t)

	assert.Equal(t, 20, q.Capacity())
	assert.Equal(t, 15, q.DesiredFill())
	assert.Equal(t, 10, q.MinimumFill())
	assert.Equal(t, 0, q.ringFill())
	assert.Equal(t, 15, q.FillCount())
	assert.Equal(t, 5, q.AvailableSpace())
	assert.Equal(t, XrunStats{}, q.Stats())
	assert.Equal(t, int64(DefaultXrunLimit), q.writerLimit.Load())
	assert.Equal(t, int64(DefaultXrunLimit), q.readerLimit.Load())
	assert.Equal(t, float32(0), q.padding)
	assert.Equal(t, int64(15), q.startupZeros.Load())
}

func TestDriftTolerantQueueInvalidFills(t *testing.T) {
	tests := []struct {
		name             string
		min, desired, mx int
	}{
		{"Negative minimum", -1, 5, 10},
		{"Minimum at capacity", 10, 10, 10},
		{"Desired below minimum", 5, 4, 10},
		{"Desired above capacity", 5, 11, 10},
		{"Negative capacity", 0, 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDriftTolerantQueue[float32](tt.min, tt.desired, tt.mx)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestDriftTolerantQueueStartupWriteFirst(t *testing.T) {
	q := newTestDrifter(t)

	write1(q, 1)
	assert.True(t, q.Stats().WriterStarted)
	assert.False(t, q.Stats().ReaderStarted)
	write1(q, 2)
	assert.Equal(t, 15, q.FillCount(), "data is discarded until the reader starts")

	assert.Equal(t, float32(0), read1(q))
	assert.Equal(t, 14, q.FillCount())
	write1(q, 3)
	assert.Equal(t, 15, q.FillCount())

	for i := range 14 {
		assert.Equal(t, float32(0), read1(q))
		assert.Equal(t, 14, q.FillCount())
		write1(q, float32(4+i))
		s := q.Stats()
		assert.Zero(t, s.ReaderTotal)
		assert.Zero(t, s.WriterTotal)
	}
	for i := range 5 {
		assert.Equal(t, float32(i+3), read1(q))
		s := q.Stats()
		assert.Zero(t, s.ReaderTotal)
		assert.Zero(t, s.WriterTotal)
	}
}

func TestDriftTolerantQueueStartupReadFirst(t *testing.T) {
	q := newTestDrifter(t)

	assert.Equal(t, float32(0), read1(q))
	assert.True(t, q.Stats().ReaderStarted)
	assert.False(t, q.Stats().WriterStarted)
	read1(q)
	assert.Equal(t, 15, q.FillCount())

	write1(q, 2)
	assert.Equal(t, 16, q.FillCount())
	read1(q)
	assert.Equal(t, 15, q.FillCount())
	for i := range 14 {
		write1(q, float32(3+i))
		assert.Equal(t, 16, q.FillCount())
		assert.Equal(t, float32(0), read1(q))
		s := q.Stats()
		assert.Zero(t, s.ReaderTotal)
		assert.Zero(t, s.WriterTotal)
	}
	for i := range 5 {
		assert.Equal(t, float32(i+2), read1(q))
		s := q.Stats()
		assert.Zero(t, s.ReaderTotal)
		assert.Zero(t, s.WriterTotal)
	}
}

func TestDriftTolerantQueueOverrun(t *testing.T) {
	q := startedDrifter(t)

	require.NoError(t, q.Write([]float32{16, 17, 18, 19, 20}))
	assert.Equal(t, 20, q.FillCount())
	assert.Zero(t, q.Stats().WriterTotal)

	write1(q, 21)
	s := q.Stats()
	assert.Equal(t, 1, s.WriterTotal)
	assert.Equal(t, 1, s.WriterSinceStart)
	assert.Equal(t, 1, s.WriterInSuccession)

	// one successful write resets only the in-succession counter
	assert.Equal(t, float32(1), read1(q))
	write1(q, 22)
	assert.Equal(t, 20, q.FillCount())
	s = q.Stats()
	assert.Equal(t, 0, s.WriterInSuccession)
	assert.Equal(t, 1, s.WriterTotal)
	assert.Equal(t, 1, s.WriterSinceStart)

	for i := range 10 {
		write1(q, float32(22+i))
		s = q.Stats()
		assert.Equal(t, i+1, s.WriterInSuccession)
		assert.Equal(t, i+2, s.WriterTotal)
		assert.Equal(t, i+2, s.WriterSinceStart)
	}
	assert.True(t, s.WriterStarted)
	assert.True(t, s.ReaderStarted)

	write1(q, 32)
	s = q.Stats()
	assert.False(t, s.WriterStarted)
	assert.False(t, s.ReaderStarted)
	assert.Equal(t, 12, s.WriterTotal)
	assert.Equal(t, 12, s.WriterSinceStart)
	assert.Equal(t, 11, s.WriterInSuccession)
	assert.Equal(t, 1, s.Stops)

	assert.Zero(t, s.ReaderTotal)
	assert.Zero(t, s.ReaderSinceStart)
	assert.Zero(t, s.ReaderInSuccession)

	// one write and read resynchronise, the write itself is lost
	write1(q, 33)
	assert.Equal(t, float32(0), read1(q))
	s = q.Stats()
	assert.True(t, s.WriterStarted)
	assert.True(t, s.ReaderStarted)
	assert.Equal(t, 14, q.FillCount())
	assert.Equal(t, 12, s.WriterTotal)
	assert.Equal(t, 0, s.WriterSinceStart)
	assert.Equal(t, 0, s.WriterInSuccession)
}

func TestDriftTolerantQueueUnderrun(t *testing.T) {
	q := startedDrifter(t)

	data := make([]float32, 5)
	require.NoError(t, q.Read(data))
	assert.Equal(t, float32(5), data[4])
	assert.Equal(t, 10, q.FillCount())
	assert.Zero(t, q.Stats().ReaderTotal)

	assert.Equal(t, float32(0), read1(q), "shortfall is padded")
	s := q.Stats()
	assert.Equal(t, 1, s.ReaderTotal)
	assert.Equal(t, 1, s.ReaderSinceStart)
	assert.Equal(t, 1, s.ReaderInSuccession)

	write1(q, 16)
	assert.Equal(t, float32(6), read1(q))
	assert.Equal(t, 10, q.FillCount())
	s = q.Stats()
	assert.Equal(t, 0, s.ReaderInSuccession)
	assert.Equal(t, 1, s.ReaderTotal)
	assert.Equal(t, 1, s.ReaderSinceStart)

	for i := range 10 {
		read1(q)
		s = q.Stats()
		assert.Equal(t, i+1, s.ReaderInSuccession)
		assert.Equal(t, i+2, s.ReaderTotal)
		assert.Equal(t, i+2, s.ReaderSinceStart)
	}
	assert.True(t, s.ReaderStarted)

	read1(q)
	s = q.Stats()
	assert.False(t, s.ReaderStarted)
	assert.False(t, s.WriterStarted)
	assert.Equal(t, 12, s.ReaderTotal)
	assert.Equal(t, 12, s.ReaderSinceStart)
	assert.Equal(t, 11, s.ReaderInSuccession)

	assert.Zero(t, s.WriterTotal)
	assert.Zero(t, s.WriterSinceStart)
	assert.Zero(t, s.WriterInSuccession)

	write1(q, 33)
	assert.Equal(t, float32(0), read1(q))
	s = q.Stats()
	assert.True(t, s.WriterStarted)
	assert.True(t, s.ReaderStarted)
	assert.Equal(t, 14, q.FillCount())
	assert.Equal(t, 12, s.ReaderTotal)
	assert.Equal(t, 0, s.ReaderSinceStart)
	assert.Equal(t, 0, s.ReaderInSuccession)
}

func TestDriftTolerantQueueNoXrunsAfterStartup(t *testing.T) {
	q := newTestDrifter(t)
	for i := range 15 {
		write1(q, float32(i))
		read1(q)
	}
	assert.Equal(t, XrunStats{WriterStarted: true, ReaderStarted: true}, q.Stats())
	// the first write was discarded because the reader had not started
	assert.Equal(t, 14, q.FillCount())
}

func TestDriftTolerantQueueOptions(t *testing.T) {
	q, err := NewDriftTolerantQueue(2, 3, 8, WithPadding[float32](0.5), WithXrunLimits[float32](0, -3))
	require.NoError(t, err)

	assert.Equal(t, float32(0.5), read1(q), "padding before the writer starts")
	assert.Equal(t, int64(0), q.readerLimit.Load())

	write1(q, 1)
	require.NoError(t, q.Write(make([]float32, 6)))
	s := q.Stats()
	assert.Equal(t, 1, s.WriterTotal)
	assert.False(t, s.WriterStarted, "limit 0 stops on the first xrun")

	q.SetXrunLimits(4, 4)
	q.Stop()
	assert.Equal(t, 2, q.Stats().Stops)
}

// A reader working through a large request must not hold up the writer.
func TestDriftTolerantQueueWriterNeverWaitsForReader(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates a large read buffer")
	}
	if runtime.GOMAXPROCS(0) < 2 {
		t.Skip("needs two processors")
	}
	q, err := NewDriftTolerantQueue[float32](0, 0, 1<<20)
	require.NoError(t, err)
	big := make([]float32, 1<<24)

	require.NoError(t, q.Read(big))
	start := time.Now()
	require.NoError(t, q.Read(big))
	readTime := time.Since(start)
	if readTime < 5*time.Millisecond {
		t.Skipf("a large read takes only %v on this machine", readTime)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = q.Read(big)
			}
		}
	}()

	var worst time.Duration
	for i := range 200 {
		start := time.Now()
		write1(q, float32(i))
		worst = max(worst, time.Since(start))
		time.Sleep(100 * time.Microsecond)
	}
	close(done)
	wg.Wait()

	assert.Less(t, worst, readTime/2, "a single write waited for the reader")
}

func TestDriftTolerantQueueConcurrentTransfer(t *testing.T) {
	q, err := NewDriftTolerantQueue(0, 0, 64, WithXrunLimits[float32](1<<30, 1<<30))
	require.NoError(t, err)

	const total = 20000
	written := make(chan struct{})
	go func() {
		defer close(written)
		for i := range total {
			write1(q, float32(i+1))
			if i%8 == 0 {
				runtime.Gosched()
			}
		}
	}()

	// values arrive in order; gaps are writer xruns, zeros are padding
	last := float32(0)
	buf := make([]float32, 4)
	check := func() {
		require.NoError(t, q.Read(buf))
		for _, v := range buf {
			if v == 0 {
				continue
			}
			require.Greater(t, v, last)
			last = v
		}
	}
	for running := true; running; {
		select {
		case <-written:
			running = false
		default:
			check()
		}
	}
	for range 64 {
		check()
	}

	assert.Positive(t, last)
	assert.Zero(t, q.Stats().Stops)
}

func TestDriftTolerantQueueAllocations(t *testing.T) {
	q, err := NewDriftTolerantQueue[float32](64, 128, 512)
	require.NoError(t, err)
	block := make([]float32, 64)

	allocs := testing.AllocsPerRun(1000, func() {
		_ = q.Write(block)
		_ = q.Read(block)
	})
	if allocs > 0 {
		t.Errorf("DriftTolerantQueue write/read allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkDriftTolerantQueue(b *testing.B) {
	q, _ := NewDriftTolerantQueue[float32](256, 512, 2048)
	block := make([]float32, 256)

	b.ReportAllocs()
	for b.Loop() {
		_ = q.Write(block)
		_ = q.Read(block)
	}
}
