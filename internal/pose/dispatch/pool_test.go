package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridelens/trickline/internal/monitoring"
	"github.com/ridelens/trickline/internal/pose"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakeDetector records call order and can block on a gate or fail frames.
type fakeDetector struct {
	mu    sync.Mutex
	calls []int
	times []time.Time
	gate  chan struct{}
	delay time.Duration
	fail  map[int]bool
}

func (d *fakeDetector) DetectFrame(ctx context.Context, img pose.FrameImage) pose.RawFrame {
	if d.gate != nil {
		<-d.gate
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	d.calls = append(d.calls, img.FrameNumber)
	d.times = append(d.times, time.Now())
	d.mu.Unlock()

	if d.fail[img.FrameNumber] {
		return pose.RawFrame{
			FrameNumber: img.FrameNumber,
			Timestamp:   float64(img.FrameNumber) / pose.DefaultFPS,
			Error:       "detector timeout",
		}
	}
	return pose.RawFrame{
		FrameNumber: img.FrameNumber,
		Timestamp:   float64(img.FrameNumber) / pose.DefaultFPS,
		Keypoints:   []pose.Keypoint{{Name: "head", X: 100, Y: 100, Confidence: 0.9}},
	}
}

func image(n int) []pose.FrameImage {
	return []pose.FrameImage{{FrameNumber: n, Image: []byte(fmt.Sprintf("frame-%d", n))}}
}

func testConfig() Config {
	return Config{
		MaxConcurrent:       1,
		MaxQueue:            10,
		MinDispatchInterval: 0,
		ShutdownTimeout:     2 * time.Second,
	}
}

func TestFIFOCompletionOrder(t *testing.T) {
	det := &fakeDetector{delay: 5 * time.Millisecond}
	pool := New(testConfig(), det)
	defer pool.Shutdown()

	var handles []*Handle
	for i := 0; i < 5; i++ {
		h, err := pool.Submit(image(i))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}

	det.mu.Lock()
	defer det.mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, det.calls, "dispatch order must equal submission order")
}

func TestCapacityBound(t *testing.T) {
	det := &fakeDetector{gate: make(chan struct{})}
	cfg := testConfig()
	cfg.MaxConcurrent = 2
	cfg.MaxQueue = 3
	pool := New(cfg, det)

	var handles []*Handle
	for i := 0; i < 5; i++ { // 2 active + 3 queued
		h, err := pool.Submit(image(i))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	st := pool.Status()
	assert.Equal(t, 2, st.ActiveProcesses, "active count must not exceed the cap")
	assert.Equal(t, 3, st.QueuedRequests)

	// The sixth submission is rejected, never silently dropped or admitted.
	_, err := pool.Submit(image(5))
	assert.ErrorIs(t, err, ErrQueueFull)

	close(det.gate)
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}
	pool.Shutdown()

	assert.Equal(t, int64(5), pool.Status().TotalProcessed)
}

func TestPerFrameFailureEmbedded(t *testing.T) {
	det := &fakeDetector{fail: map[int]bool{1: true}}
	pool := New(testConfig(), det)
	defer pool.Shutdown()

	h, err := pool.Submit([]pose.FrameImage{
		{FrameNumber: 0}, {FrameNumber: 1}, {FrameNumber: 2},
	})
	require.NoError(t, err)

	frames, err := h.Wait(context.Background())
	require.NoError(t, err, "per-frame failures never surface as batch errors")
	require.Len(t, frames, 3)

	assert.Empty(t, frames[0].Error)
	assert.Equal(t, "detector timeout", frames[1].Error)
	assert.Equal(t, 1, frames[1].FrameNumber, "failed frame still occupies its slot")
	assert.Empty(t, frames[2].Error)

	assert.Equal(t, int64(1), pool.Status().TotalErrors)
}

func TestMinDispatchIntervalSpacesBursts(t *testing.T) {
	det := &fakeDetector{}
	cfg := testConfig()
	cfg.MaxConcurrent = 3
	cfg.MinDispatchInterval = 40 * time.Millisecond
	pool := New(cfg, det)
	defer pool.Shutdown()

	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, err := pool.Submit(image(i))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}

	det.mu.Lock()
	defer det.mu.Unlock()
	require.Len(t, det.times, 3)
	for i := 1; i < 3; i++ {
		gap := det.times[i].Sub(det.times[i-1])
		assert.GreaterOrEqual(t, gap, 35*time.Millisecond,
			"dispatch %d followed too closely (%v)", i, gap)
	}
}

func TestShutdownRejectsNewAndQueued(t *testing.T) {
	det := &fakeDetector{gate: make(chan struct{})}
	pool := New(testConfig(), det)

	inflight, err := pool.Submit(image(0))
	require.NoError(t, err)
	queued, err := pool.Submit(image(1))
	require.NoError(t, err)

	shutdownDone := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()

	// The queued-but-undispatched request rejects before shutdown resolves.
	_, err = queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	// New submissions reject immediately.
	require.Eventually(t, func() bool {
		_, err := pool.Submit(image(2))
		return errors.Is(err, ErrPoolClosed)
	}, time.Second, 5*time.Millisecond)

	// The in-flight dispatch is allowed to finish.
	close(det.gate)
	frames, err := inflight.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, frames, 1)

	<-shutdownDone
}

func TestShutdownTimeoutDoesNotAbortInFlight(t *testing.T) {
	det := &fakeDetector{gate: make(chan struct{})}
	cfg := testConfig()
	cfg.ShutdownTimeout = 30 * time.Millisecond
	pool := New(cfg, det)

	h, err := pool.Submit(image(0))
	require.NoError(t, err)

	start := time.Now()
	pool.Shutdown() // returns after the timeout, leaving the call in flight
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	select {
	case <-h.Done():
		t.Fatal("in-flight dispatch should not have been aborted")
	default:
	}

	close(det.gate)
	frames, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestWaitHonorsCallerContext(t *testing.T) {
	det := &fakeDetector{gate: make(chan struct{})}
	pool := New(testConfig(), det)

	h, err := pool.Submit(image(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(det.gate)
	pool.Shutdown()
}
