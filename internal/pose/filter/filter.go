// Package filter converts per-frame quality scores into remove, interpolate,
// or keep decisions and synthesizes replacement frames for isolated outliers.
//
// The pass is strictly sequential over frame index: each interpolation
// candidate's neighbor search depends on removal decisions already made,
// including earlier candidates demoted to removal.
package filter

import (
	"fmt"
	"math"

	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/monitoring"
	"github.com/ridelens/trickline/internal/pose"
	"github.com/ridelens/trickline/internal/pose/mesh"
)

// Config holds the filter's interpolation policy.
type Config struct {
	// MaxInterpolationGap is the widest original-index span (after minus
	// before) the filter will bridge. Bridging a long unreliable gap with a
	// straight-line guess is disallowed; wider gaps demote to removal.
	MaxInterpolationGap int
}

// ConfigFromTuning builds a filter Config from the loaded tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{MaxInterpolationGap: cfg.GetMaxInterpolationGap()}
}

// DefaultConfig returns the filter defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

type decision int

const (
	decideKeep decision = iota
	decideRemove
	decideInterpolate
)

// FrameFilter applies the removal/interpolation policy.
type FrameFilter struct {
	cfg Config
}

// New creates a FrameFilter.
func New(cfg Config) *FrameFilter {
	return &FrameFilter{cfg: cfg}
}

// Apply walks the scored sequence in order and produces the dense,
// order-preserving processed sequence. frames and qualities must be
// parallel slices over original frame indices.
func (f *FrameFilter) Apply(frames []pose.RawFrame, qualities []pose.FrameQuality) *pose.FilteredSequence {
	n := len(frames)
	decisions := make([]decision, n)
	removed := make(map[int]bool, n)

	for i := 0; i < n; i++ {
		q := qualities[i]
		switch {
		case q.OffScreen || q.LowConfidence:
			decisions[i] = decideRemove
			removed[i] = true
		case q.Outlier:
			decisions[i] = decideInterpolate
		}
	}

	// Resolve interpolation candidates in index order. A candidate may be
	// demoted to removal here, which earlier resolutions cannot observe but
	// later neighbor searches must.
	synthesized := make(map[int]pose.ProcessedFrame, n)
	for i := 0; i < n; i++ {
		if decisions[i] != decideInterpolate {
			continue
		}
		before := f.searchNeighbor(decisions, removed, i, -1)
		after := f.searchNeighbor(decisions, removed, i, +1)

		if before < 0 || after < 0 {
			monitoring.Logf("filter: frame %d has no trusted neighbor on one side, removing instead of interpolating", i)
			decisions[i] = decideRemove
			removed[i] = true
			continue
		}
		if after-before > f.cfg.MaxInterpolationGap {
			monitoring.Logf("filter: frame %d gap %d exceeds max %d, removing instead of interpolating",
				i, after-before, f.cfg.MaxInterpolationGap)
			decisions[i] = decideRemove
			removed[i] = true
			continue
		}
		synthesized[i] = interpolateFrame(&frames[before], &frames[after], before, after, i)
	}

	logRemovalBlocks(removed, n)

	seq := &pose.FilteredSequence{
		IndexMap:      make(map[int]int, n),
		OriginalCount: n,
	}
	for i := 0; i < n; i++ {
		if removed[i] {
			seq.RemovedFrames = append(seq.RemovedFrames, i)
			continue
		}
		var pf pose.ProcessedFrame
		if decisions[i] == decideInterpolate {
			pf = synthesized[i]
			seq.InterpolatedFrames = append(seq.InterpolatedFrames, i)
		} else {
			pf = pose.ProcessedFrame{RawFrame: frames[i]}
		}
		seq.IndexMap[i] = len(seq.Frames)
		seq.Frames = append(seq.Frames, pf)
	}
	seq.ProcessedCount = len(seq.Frames)
	return seq
}

// searchNeighbor walks outward from i in the given direction and returns the
// nearest index whose original data is trusted: not removed and not itself an
// interpolation candidate. Returns -1 at the sequence boundary.
func (f *FrameFilter) searchNeighbor(decisions []decision, removed map[int]bool, i, dir int) int {
	for j := i + dir; j >= 0 && j < len(decisions); j += dir {
		if removed[j] || decisions[j] == decideInterpolate {
			continue
		}
		return j
	}
	return -1
}

// interpolateFrame synthesizes a replacement for original index i at
// fraction t between the before and after frames.
func interpolateFrame(before, after *pose.RawFrame, beforeIdx, afterIdx, i int) pose.ProcessedFrame {
	t := float64(i-beforeIdx) / float64(afterIdx-beforeIdx)

	pf := pose.ProcessedFrame{
		RawFrame: pose.RawFrame{
			FrameNumber: i,
			Timestamp:   before.Timestamp + (after.Timestamp-before.Timestamp)*t,
		},
		Interpolated: true,
	}

	for _, kb := range before.Keypoints {
		ka := after.Keypoint(kb.Name)
		if ka == nil {
			continue
		}
		pf.Keypoints = append(pf.Keypoints, pose.Keypoint{
			Name: kb.Name,
			X:    kb.X + (ka.X-kb.X)*t,
			Y:    kb.Y + (ka.Y-kb.Y)*t,
			Z:    kb.Z + (ka.Z-kb.Z)*t,
			// Never rate interpolated data more confident than its worse source.
			Confidence: math.Min(kb.Confidence, ka.Confidence),
		})
	}

	// Mesh topology is only interpolable when the equal-count check holds;
	// otherwise the before frame's mesh is carried wholesale.
	switch {
	case before.Mesh == nil:
		pf.Mesh = nil
	case after.Mesh != nil && len(before.Mesh.Vertices) == len(after.Mesh.Vertices):
		pf.Mesh = mesh.Interpolate(before.Mesh, after.Mesh, t)
	default:
		pf.Mesh = before.Mesh
	}

	return pf
}

// logRemovalBlocks groups contiguous removed indices into spans. This is
// diagnostic only ("rider left frame" ranges); each index is still removed
// individually.
func logRemovalBlocks(removed map[int]bool, n int) {
	var blocks []string
	start := -1
	for i := 0; i <= n; i++ {
		if i < n && removed[i] {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if start == i-1 {
				blocks = append(blocks, fmt.Sprintf("%d", start))
			} else {
				blocks = append(blocks, fmt.Sprintf("%d-%d", start, i-1))
			}
			start = -1
		}
	}
	if len(blocks) > 0 {
		monitoring.Logf("filter: removed frame blocks: %v", blocks)
	}
}
