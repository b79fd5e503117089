package smoothing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridelens/trickline/internal/pose"
)

func frameWithKeypoint(n int, x, y, conf float64) pose.ProcessedFrame {
	return pose.ProcessedFrame{
		RawFrame: pose.RawFrame{
			FrameNumber: n,
			Keypoints:   []pose.Keypoint{{Name: "wrist", X: x, Y: y, Confidence: conf}},
		},
	}
}

func TestFirstObservationPassesThrough(t *testing.T) {
	s := New(DefaultConfig())
	out := s.SmoothSequence([]pose.ProcessedFrame{frameWithKeypoint(0, 100, 200, 0.9)})
	require.Len(t, out, 1)
	assert.Equal(t, 100.0, out[0].Keypoints[0].X)
	assert.Equal(t, 200.0, out[0].Keypoints[0].Y)
	assert.Equal(t, 0.9, out[0].Keypoints[0].Confidence)
}

func TestSmoothingReducesJitter(t *testing.T) {
	s := New(DefaultConfig())

	// Position oscillates around 100 with ±10 jitter.
	var frames []pose.ProcessedFrame
	for i := 0; i < 20; i++ {
		x := 100.0
		if i%2 == 0 {
			x += 10
		} else {
			x -= 10
		}
		frames = append(frames, frameWithKeypoint(i, x, 0, 0.9))
	}

	out := s.SmoothSequence(frames)
	var rawDev, smoothDev float64
	for i := 5; i < 20; i++ { // skip the settle-in window
		rawDev += math.Abs(frames[i].Keypoints[0].X - 100)
		smoothDev += math.Abs(out[i].Keypoints[0].X - 100)
	}
	assert.Less(t, smoothDev, rawDev/2, "smoothed trajectory should carry far less jitter")
}

func TestSmoothingIsCausal(t *testing.T) {
	s := New(DefaultConfig())

	frames := []pose.ProcessedFrame{
		frameWithKeypoint(0, 10, 0, 0.9),
		frameWithKeypoint(1, 20, 0, 0.9),
		frameWithKeypoint(2, 30, 0, 0.9),
	}

	full := s.SmoothSequence(frames)
	prefix := s.SmoothSequence(frames[:2])

	// Output for frame k depends only on frames 0..k.
	assert.Equal(t, prefix[1].Keypoints[0].X, full[1].Keypoints[0].X)
}

func TestStateResetsBetweenCalls(t *testing.T) {
	s := New(DefaultConfig())

	first := s.SmoothSequence([]pose.ProcessedFrame{
		frameWithKeypoint(0, 1000, 0, 0.9),
		frameWithKeypoint(1, 1000, 0, 0.9),
	})
	second := s.SmoothSequence([]pose.ProcessedFrame{
		frameWithKeypoint(0, 5, 0, 0.9),
	})

	assert.Equal(t, 1000.0, first[0].Keypoints[0].X)
	assert.Equal(t, 5.0, second[0].Keypoints[0].X, "state from the prior call must not leak")
}

func TestConfidenceClampedToUnitInterval(t *testing.T) {
	s := New(DefaultConfig())
	frames := []pose.ProcessedFrame{
		frameWithKeypoint(0, 0, 0, 1.0),
		frameWithKeypoint(1, 0, 0, 1.0),
		frameWithKeypoint(2, 0, 0, 0.0),
	}
	for _, f := range s.SmoothSequence(frames) {
		c := f.Keypoints[0].Confidence
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestIndependentChannels(t *testing.T) {
	s := New(DefaultConfig())
	frames := []pose.ProcessedFrame{
		{RawFrame: pose.RawFrame{FrameNumber: 0, Keypoints: []pose.Keypoint{
			{Name: "wrist", X: 0, Confidence: 0.9},
			{Name: "ankle", X: 500, Confidence: 0.9},
		}}},
		{RawFrame: pose.RawFrame{FrameNumber: 1, Keypoints: []pose.Keypoint{
			{Name: "wrist", X: 100, Confidence: 0.9},
			{Name: "ankle", X: 500, Confidence: 0.9},
		}}},
	}

	out := s.SmoothSequence(frames)
	// The ankle never moved; the wrist's jump must not drag it.
	assert.Equal(t, 500.0, out[1].Keypoints[1].X)
	assert.Less(t, out[1].Keypoints[0].X, 100.0, "wrist estimate lags its measurement")
}
