// Package pipeline wires the full processing chain for one video: dispatch to
// the detector pool, quality scoring, filtering, index mapping, and storage.
// Each ProcessVideo call is one run; re-running a video replaces its stored
// artifacts atomically.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/monitoring"
	"github.com/ridelens/trickline/internal/pose"
	"github.com/ridelens/trickline/internal/pose/dispatch"
	"github.com/ridelens/trickline/internal/pose/filter"
	"github.com/ridelens/trickline/internal/pose/indexmap"
	"github.com/ridelens/trickline/internal/pose/quality"
	"github.com/ridelens/trickline/internal/pose/smoothing"
	"github.com/ridelens/trickline/internal/storage"
)

// defaultBatchSize is how many frames ride in one pool submission. Small
// enough to keep the queue-full drain responsive, large enough to amortize
// dispatch pacing.
const defaultBatchSize = 8

// submitBackoff paces retries when the pool queue is full and no earlier
// batch of ours is outstanding to drain.
const submitBackoff = 5 * time.Millisecond

// Runtime owns one detector pool and the stateless analysis stages. It is
// safe to process several videos sequentially on one Runtime; the pool's
// lifecycle spans all of them.
type Runtime struct {
	pool     *dispatch.Pool
	analyzer *quality.Analyzer
	filter   *filter.FrameFilter
	smoother *smoothing.Smoother
	store    *storage.Store
	batch    int
}

// New builds a Runtime from the tuning file. store may be nil for callers
// that only want in-memory results.
func New(cfg *config.TuningConfig, det dispatch.Detector, store *storage.Store) *Runtime {
	return &Runtime{
		pool:     dispatch.New(dispatch.ConfigFromTuning(cfg), det),
		analyzer: quality.New(quality.ConfigFromTuning(cfg)),
		filter:   filter.New(filter.ConfigFromTuning(cfg)),
		smoother: smoothing.New(smoothing.ConfigFromTuning(cfg)),
		store:    store,
		batch:    defaultBatchSize,
	}
}

// Shutdown drains the detector pool. Call once, after the last ProcessVideo.
func (r *Runtime) Shutdown() { r.pool.Shutdown() }

// PoolStatus reports the dispatch pool snapshot for the monitoring surface.
func (r *Runtime) PoolStatus() dispatch.Status { return r.pool.Status() }

// RunResult summarises one completed run.
type RunResult struct {
	RunID          string
	VideoID        string
	Mapping        *indexmap.Mapping
	Frames         []pose.ProcessedFrame
	DetectorErrors int
	Elapsed        time.Duration
}

// ProcessVideo runs the full chain over the ordered frame images and, when a
// store is attached, persists the run under a fresh run ID. Detector failures
// on individual frames do not fail the run; those frames carry no keypoints
// and fall out at the filtering stage.
func (r *Runtime) ProcessVideo(ctx context.Context, videoID string, images []pose.FrameImage) (*RunResult, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("pipeline: no frames supplied for video %s", videoID)
	}
	start := time.Now()

	raw, err := r.detectAll(ctx, images)
	if err != nil {
		return nil, err
	}

	detectorErrors := 0
	for _, frame := range raw {
		if frame.Error != "" {
			detectorErrors++
			monitoring.Logf("pipeline: video %s frame %d detector error: %s",
				videoID, frame.FrameNumber, frame.Error)
		}
	}

	qualities, err := r.analyzer.AnalyzeSequence(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("pipeline: analyze video %s: %w", videoID, err)
	}

	seq := r.filter.Apply(raw, qualities)
	mapping := indexmap.Build(videoID, seq.OriginalCount, seq.RemovedFrames, seq.InterpolatedFrames)

	result := &RunResult{
		RunID:          uuid.NewString(),
		VideoID:        videoID,
		Mapping:        mapping,
		Frames:         seq.Frames,
		DetectorErrors: detectorErrors,
	}

	if r.store != nil {
		if err := r.store.ReplaceRun(result.RunID, mapping.Serialize(), seq.Frames); err != nil {
			return nil, fmt.Errorf("pipeline: persist run %s: %w", result.RunID, err)
		}
	}

	result.Elapsed = time.Since(start)
	monitoring.Logf("pipeline: video %s run %s done in %s: %d original, %d processed, %d removed, %d interpolated, %d detector errors",
		videoID, result.RunID, result.Elapsed,
		mapping.OriginalCount(), mapping.ProcessedCount(),
		len(mapping.RemovedFrames()), len(mapping.InterpolatedFrames()), detectorErrors)
	return result, nil
}

// detectAll submits the images in fixed-size batches and reassembles the raw
// frames in submission order. A full pool queue is drained by waiting on our
// own oldest outstanding batch before retrying.
func (r *Runtime) detectAll(ctx context.Context, images []pose.FrameImage) ([]pose.RawFrame, error) {
	var handles []*dispatch.Handle
	waitIdx := 0

	for lo := 0; lo < len(images); lo += r.batch {
		hi := lo + r.batch
		if hi > len(images) {
			hi = len(images)
		}

		for {
			h, err := r.pool.Submit(images[lo:hi])
			if err == nil {
				handles = append(handles, h)
				break
			}
			if !errors.Is(err, dispatch.ErrQueueFull) {
				return nil, fmt.Errorf("pipeline: submit frames %d-%d: %w", lo, hi-1, err)
			}
			if waitIdx < len(handles) {
				if _, werr := handles[waitIdx].Wait(ctx); werr != nil {
					return nil, fmt.Errorf("pipeline: await batch %d: %w", waitIdx, werr)
				}
				waitIdx++
				continue
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(submitBackoff):
			}
		}
	}

	raw := make([]pose.RawFrame, 0, len(images))
	for i, h := range handles {
		frames, err := h.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("pipeline: await batch %d: %w", i, err)
		}
		raw = append(raw, frames...)
	}
	return raw, nil
}

// Mapping loads and rebuilds the stored frame index mapping for a video.
func (r *Runtime) Mapping(videoID string) (*indexmap.Mapping, error) {
	if r.store == nil {
		return nil, errors.New("pipeline: no store attached")
	}
	persisted, err := r.store.LoadMapping(videoID)
	if err != nil {
		return nil, err
	}
	return indexmap.Deserialize(persisted)
}

// FrameByOriginal resolves an original frame index through the stored mapping
// and loads the processed frame it maps to. The second return is false when
// the original index was removed or out of range; that is a defined "no data"
// answer, not an error.
func (r *Runtime) FrameByOriginal(videoID string, originalIndex int) (*pose.ProcessedFrame, bool, error) {
	mapping, err := r.Mapping(videoID)
	if err != nil {
		return nil, false, err
	}
	processedIdx, ok := mapping.ToProcessed(originalIndex)
	if !ok {
		return nil, false, nil
	}
	return r.store.ProcessedFrame(videoID, processedIdx)
}

// SmoothedSequence loads a video's stored processed frames and applies the
// temporal smoother over the whole sequence. Smoothing happens on read; the
// stored frames stay unsmoothed so noise parameters can be retuned without
// re-running detection.
func (r *Runtime) SmoothedSequence(videoID string) ([]pose.ProcessedFrame, error) {
	if r.store == nil {
		return nil, errors.New("pipeline: no store attached")
	}
	frames, err := r.store.ProcessedFrames(videoID)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		// Distinguish "never processed" from "processed down to nothing".
		if _, err := r.store.LoadMapping(videoID); err != nil {
			return nil, err
		}
	}
	return r.smoother.SmoothSequence(frames), nil
}
