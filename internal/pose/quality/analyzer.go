// Package quality scores each raw frame for downstream filtering. Scores
// compose multiplicatively from 1.0: low mean confidence halves the score,
// an off-screen rider drops it to a tenth, and a motion-trend outlier takes
// a further 0.6 factor.
package quality

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/pose"
)

// Score penalties. These are fixed properties of the scoring model, not
// tuning knobs.
const (
	lowConfidencePenalty = 0.5
	offScreenPenalty     = 0.1
	outlierPenalty       = 0.6
)

// Config holds the quality analyzer thresholds.
type Config struct {
	WindowSize             int     // sliding trend window W; up to W/2 neighbors each side
	LowConfidenceThreshold float64 // mean confidence below this flags the frame
	MinConfidence          float64 // mean confidence below this is off-screen outright
	EdgeMarginFraction     float64 // boundary margin as a fraction of frame size
	OffScreenFraction      float64 // boundary-keypoint fraction that flags off-screen
	OutlierThreshold       float64 // mean trend deviation that flags an outlier
	FrameWidth             float64
	FrameHeight            float64
}

// ConfigFromTuning builds an analyzer Config from the loaded tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WindowSize:             cfg.GetWindowSize(),
		LowConfidenceThreshold: cfg.GetLowConfidenceThreshold(),
		MinConfidence:          cfg.GetMinConfidence(),
		EdgeMarginFraction:     cfg.GetEdgeMarginFraction(),
		OffScreenFraction:      cfg.GetOffScreenFraction(),
		OutlierThreshold:       cfg.GetOutlierThreshold(),
		FrameWidth:             cfg.GetFrameWidth(),
		FrameHeight:            cfg.GetFrameHeight(),
	}
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// Analyzer scores frames. It is stateless and safe for concurrent use.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer with the given thresholds.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// AnalyzeSequence scores every frame against its neighbors. Each frame's
// computation reads only the immutable input slice, so frames are scored in
// parallel up to GOMAXPROCS.
func (a *Analyzer) AnalyzeSequence(ctx context.Context, frames []pose.RawFrame) ([]pose.FrameQuality, error) {
	out := make([]pose.FrameQuality, len(frames))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range frames {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = a.AnalyzeFrame(frames, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeFrame scores frames[i] against its neighbor window.
func (a *Analyzer) AnalyzeFrame(frames []pose.RawFrame, i int) pose.FrameQuality {
	frame := &frames[i]
	fq := pose.FrameQuality{
		FrameIndex:    i,
		QualityScore:  1.0,
		KeypointCount: len(frame.Keypoints),
	}

	// A frame with no detections carries no usable signal at all.
	if len(frame.Keypoints) == 0 {
		fq.QualityScore = 0
		fq.LowConfidence = true
		fq.OffScreen = true
		return fq
	}

	confidences := make([]float64, len(frame.Keypoints))
	for j, kp := range frame.Keypoints {
		confidences[j] = kp.Confidence
	}
	fq.AverageConfidence = stat.Mean(confidences, nil)

	if fq.AverageConfidence < a.cfg.LowConfidenceThreshold {
		fq.LowConfidence = true
		fq.QualityScore *= lowConfidencePenalty
	}

	boundaryFraction, minDistance := a.boundaryStats(frame.Keypoints)
	fq.BoundaryDistance = minDistance
	if boundaryFraction > a.cfg.OffScreenFraction || fq.AverageConfidence < a.cfg.MinConfidence {
		fq.OffScreen = true
		fq.QualityScore *= offScreenPenalty
	}

	deviation, neighborCount := a.trendDeviation(frames, i)
	fq.DeviationFromNeighbors = deviation
	fq.NeighborCount = neighborCount
	if deviation > a.cfg.OutlierThreshold {
		fq.Outlier = true
		fq.QualityScore *= outlierPenalty
	}

	return fq
}

// boundaryStats returns the fraction of keypoints inside the edge margin and
// the normalized minimum distance of any keypoint to a frame edge.
func (a *Analyzer) boundaryStats(keypoints []pose.Keypoint) (fraction, minDistance float64) {
	marginX := a.cfg.FrameWidth * a.cfg.EdgeMarginFraction
	marginY := a.cfg.FrameHeight * a.cfg.EdgeMarginFraction

	nearEdge := 0
	minDistance = math.Inf(1)
	for _, kp := range keypoints {
		if kp.X < marginX || kp.X > a.cfg.FrameWidth-marginX ||
			kp.Y < marginY || kp.Y > a.cfg.FrameHeight-marginY {
			nearEdge++
		}
		d := math.Min(
			math.Min(kp.X/a.cfg.FrameWidth, (a.cfg.FrameWidth-kp.X)/a.cfg.FrameWidth),
			math.Min(kp.Y/a.cfg.FrameHeight, (a.cfg.FrameHeight-kp.Y)/a.cfg.FrameHeight),
		)
		if d < minDistance {
			minDistance = d
		}
	}
	if math.IsInf(minDistance, 1) {
		minDistance = 0
	}
	return float64(nearEdge) / float64(len(keypoints)), minDistance
}

// trendDeviation fits, per keypoint, an independent linear motion model over
// the neighbor window (excluding frame i itself) and measures how far frame
// i's actual position sits from the trend's prediction at offset zero. The
// deviation is normalized by the trend's per-frame motion magnitude plus one
// so fast riders are not penalised for moving, capped at 1, and averaged
// across keypoints.
//
// A fit is only trusted when its own neighbor samples agree with it: if the
// normalized fit residual exceeds the outlier threshold, the window contains
// a jump of its own and cannot convict the center frame, so the keypoint is
// skipped. Without this gate a single jump frame would drag every frame in
// its window into outlier state. Two-sample windows fit exactly and leave no
// residual to judge the fit by, so at least three samples are required.
func (a *Analyzer) trendDeviation(frames []pose.RawFrame, i int) (float64, int) {
	half := a.cfg.WindowSize / 2
	lo := i - half
	if lo < 0 {
		lo = 0
	}
	hi := i + half
	if hi > len(frames)-1 {
		hi = len(frames) - 1
	}

	neighborCount := 0
	for j := lo; j <= hi; j++ {
		if j != i {
			neighborCount++
		}
	}
	if neighborCount < 2 {
		return 0, neighborCount
	}

	var total float64
	contributing := 0
	for _, kp := range frames[i].Keypoints {
		var offsets, xs, ys []float64
		for j := lo; j <= hi; j++ {
			if j == i {
				continue
			}
			neighbor := frames[j].Keypoint(kp.Name)
			if neighbor == nil {
				continue
			}
			offsets = append(offsets, float64(j-i))
			xs = append(xs, neighbor.X)
			ys = append(ys, neighbor.Y)
		}
		if len(offsets) < 3 {
			continue
		}

		// Prediction at offset 0 is the regression intercept.
		predX, slopeX := stat.LinearRegression(offsets, xs, nil, false)
		predY, slopeY := stat.LinearRegression(offsets, ys, nil, false)

		motion := math.Hypot(slopeX, slopeY)

		var residualSq float64
		for k, off := range offsets {
			rx := xs[k] - (predX + slopeX*off)
			ry := ys[k] - (predY + slopeY*off)
			residualSq += rx*rx + ry*ry
		}
		fitResidual := math.Sqrt(residualSq / float64(len(offsets)))
		if fitResidual/(motion+1) > a.cfg.OutlierThreshold {
			continue
		}

		deviation := math.Hypot(kp.X-predX, kp.Y-predY)
		normalized := deviation / (motion + 1)
		if normalized > 1 {
			normalized = 1
		}
		total += normalized
		contributing++
	}
	if contributing == 0 {
		return 0, neighborCount
	}
	return total / float64(contributing), neighborCount
}
