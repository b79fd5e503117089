// Package smoothing applies a causal per-coordinate filter to a processed
// frame sequence. One independent scalar filter runs per (keypoint, channel),
// so a jittery wrist does not perturb a steady ankle.
package smoothing

import (
	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/pose"
)

// confidenceNoiseDivisor scales down both noise terms for the confidence
// channel; confidence moves far less per frame than screen position.
const confidenceNoiseDivisor = 10.0

// Config holds the smoother noise parameters for position channels. Lower
// process noise smooths harder at the cost of lag; higher measurement noise
// trades the same way.
type Config struct {
	ProcessNoise     float64
	MeasurementNoise float64
}

// ConfigFromTuning builds a smoother Config from the loaded tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ProcessNoise:     cfg.GetProcessNoise(),
		MeasurementNoise: cfg.GetMeasurementNoise(),
	}
}

// DefaultConfig returns the smoother defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// scalarFilter is a one-dimensional Kalman filter over a single channel.
type scalarFilter struct {
	estimate    float64
	covariance  float64
	q           float64 // process noise
	r           float64 // measurement noise
	initialized bool
}

func (f *scalarFilter) update(z float64) float64 {
	if !f.initialized {
		f.estimate = z
		f.covariance = 1
		f.initialized = true
		return z
	}
	f.covariance += f.q
	gain := f.covariance / (f.covariance + f.r)
	f.estimate += gain * (z - f.estimate)
	f.covariance *= 1 - gain
	return f.estimate
}

// channelKey addresses one scalar filter.
type channelKey struct {
	keypoint string
	channel  string // "x", "y", "z", "confidence"
}

// Smoother smooths keypoint trajectories across a frame sequence. Filter
// state is ephemeral: SmoothSequence resets everything at the start of each
// call, so output for frame k depends only on frames 0..k as supplied.
type Smoother struct {
	cfg     Config
	filters map[channelKey]*scalarFilter
}

// New creates a Smoother with the given noise configuration.
func New(cfg Config) *Smoother {
	return &Smoother{cfg: cfg, filters: make(map[channelKey]*scalarFilter)}
}

// Reset discards all per-channel filter state.
func (s *Smoother) Reset() {
	s.filters = make(map[channelKey]*scalarFilter)
}

// filter returns the channel's filter, creating it lazily on first observation.
func (s *Smoother) filter(key channelKey) *scalarFilter {
	f, ok := s.filters[key]
	if ok {
		return f
	}
	q, r := s.cfg.ProcessNoise, s.cfg.MeasurementNoise
	if key.channel == "confidence" {
		q /= confidenceNoiseDivisor
		r /= confidenceNoiseDivisor
	}
	f = &scalarFilter{q: q, r: r}
	s.filters[key] = f
	return f
}

// SmoothSequence resets all filter state and applies the per-channel update
// strictly in the supplied order, returning a new slice with smoothed
// keypoints. Frames must be in original-to-current order; this is a causal
// filter, not a global one.
func (s *Smoother) SmoothSequence(frames []pose.ProcessedFrame) []pose.ProcessedFrame {
	s.Reset()

	out := make([]pose.ProcessedFrame, len(frames))
	for i, frame := range frames {
		smoothed := frame
		smoothed.Keypoints = make([]pose.Keypoint, len(frame.Keypoints))
		for j, kp := range frame.Keypoints {
			sk := kp
			sk.X = s.filter(channelKey{kp.Name, "x"}).update(kp.X)
			sk.Y = s.filter(channelKey{kp.Name, "y"}).update(kp.Y)
			sk.Z = s.filter(channelKey{kp.Name, "z"}).update(kp.Z)
			sk.Confidence = clamp01(s.filter(channelKey{kp.Name, "confidence"}).update(kp.Confidence))
			smoothed.Keypoints[j] = sk
		}
		out[i] = smoothed
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
