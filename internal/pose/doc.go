// Package pose defines the domain types shared across the pose processing
// pipeline.
//
// Each pipeline stage consumes and produces a distinct frame type so stage
// contracts are checkable at compile time:
//
//	FrameImage      → dispatch/detector input (undecoded video frame)
//	RawFrame        → detector output, dense by original frame number
//	FrameQuality    → quality analyzer score for one raw frame
//	ProcessedFrame  → filter output (kept or synthesized), dense by processed index
//
// The pipeline packages (dispatch, quality, filter, smoothing, indexmap) all
// import pose; none of them import each other except through the composition
// root in internal/pipeline.
package pose
