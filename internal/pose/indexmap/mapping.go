// Package indexmap builds the bidirectional mapping between original
// (as-captured) and processed (post-filtering) frame numbering.
//
// Consumers must resolve lookups through this mapping before querying
// processed-frame storage; a removed original index answers "absent", which
// callers treat as "no data for this frame", never as an error.
package indexmap

import (
	"fmt"
	"sort"
)

// Mapping is the in-memory lookup structure. Both directions are O(1).
type Mapping struct {
	videoID             string
	originalCount       int
	originalToProcessed map[int]int
	processedToOriginal map[int]int
	removed             map[int]bool
	interpolated        []int
}

// Build assigns every non-removed original index the next processed index in
// increasing order, producing a dense monotonic mapping over
// 0..(originalCount-len(removed)-1).
func Build(videoID string, originalCount int, removedFrames, interpolatedFrames []int) *Mapping {
	m := &Mapping{
		videoID:             videoID,
		originalCount:       originalCount,
		originalToProcessed: make(map[int]int, originalCount),
		processedToOriginal: make(map[int]int, originalCount),
		removed:             make(map[int]bool, len(removedFrames)),
		interpolated:        append([]int(nil), interpolatedFrames...),
	}
	for _, idx := range removedFrames {
		m.removed[idx] = true
	}

	processed := 0
	for original := 0; original < originalCount; original++ {
		if m.removed[original] {
			continue
		}
		m.originalToProcessed[original] = processed
		m.processedToOriginal[processed] = original
		processed++
	}
	sort.Ints(m.interpolated)
	return m
}

// VideoID returns the video this mapping belongs to.
func (m *Mapping) VideoID() string { return m.videoID }

// OriginalCount returns the frame count before filtering.
func (m *Mapping) OriginalCount() int { return m.originalCount }

// ProcessedCount returns the frame count after filtering.
func (m *Mapping) ProcessedCount() int { return len(m.processedToOriginal) }

// ToProcessed maps an original frame index to its processed index. The
// second return is false for removed or out-of-range indices.
func (m *Mapping) ToProcessed(original int) (int, bool) {
	p, ok := m.originalToProcessed[original]
	return p, ok
}

// ToOriginal maps a processed frame index back to its original index.
func (m *Mapping) ToOriginal(processed int) (int, bool) {
	o, ok := m.processedToOriginal[processed]
	return o, ok
}

// RemovedFrames returns the removed original indices in increasing order.
func (m *Mapping) RemovedFrames() []int {
	out := make([]int, 0, len(m.removed))
	for idx := range m.removed {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// InterpolatedFrames returns the synthesized original indices in increasing order.
func (m *Mapping) InterpolatedFrames() []int {
	return append([]int(nil), m.interpolated...)
}

// Metadata summarises a persisted mapping.
type Metadata struct {
	OriginalFrameCount  int `json:"originalFrameCount"`
	ProcessedFrameCount int `json:"processedFrameCount"`
	RemovedCount        int `json:"removedCount"`
	InterpolatedCount   int `json:"interpolatedCount"`
}

// Persisted is the flat, storage-safe form of a Mapping: paired-entry lists
// and plain index lists, ordered by their first element.
type Persisted struct {
	VideoID             string   `json:"videoId"`
	OriginalToProcessed [][2]int `json:"originalToProcessed"`
	ProcessedToOriginal [][2]int `json:"processedToOriginal"`
	RemovedFrames       []int    `json:"removedFrames"`
	InterpolatedFrames  []int    `json:"interpolatedFrames"`
	Metadata            Metadata `json:"metadata"`
}

// Serialize flattens the mapping for storage. Deserialize(Serialize(m))
// answers every lookup identically to m.
func (m *Mapping) Serialize() *Persisted {
	p := &Persisted{
		VideoID:             m.videoID,
		OriginalToProcessed: make([][2]int, 0, len(m.originalToProcessed)),
		ProcessedToOriginal: make([][2]int, 0, len(m.processedToOriginal)),
		RemovedFrames:       m.RemovedFrames(),
		InterpolatedFrames:  m.InterpolatedFrames(),
		Metadata: Metadata{
			OriginalFrameCount:  m.originalCount,
			ProcessedFrameCount: m.ProcessedCount(),
			RemovedCount:        len(m.removed),
			InterpolatedCount:   len(m.interpolated),
		},
	}
	for original := 0; original < m.originalCount; original++ {
		if processed, ok := m.originalToProcessed[original]; ok {
			p.OriginalToProcessed = append(p.OriginalToProcessed, [2]int{original, processed})
			p.ProcessedToOriginal = append(p.ProcessedToOriginal, [2]int{processed, original})
		}
	}
	sort.Slice(p.ProcessedToOriginal, func(i, j int) bool {
		return p.ProcessedToOriginal[i][0] < p.ProcessedToOriginal[j][0]
	})
	return p
}

// Deserialize rebuilds the lookup structure from its persisted form. The two
// directional lists must be exact inverses restricted to kept indices.
func Deserialize(p *Persisted) (*Mapping, error) {
	m := &Mapping{
		videoID:             p.VideoID,
		originalCount:       p.Metadata.OriginalFrameCount,
		originalToProcessed: make(map[int]int, len(p.OriginalToProcessed)),
		processedToOriginal: make(map[int]int, len(p.ProcessedToOriginal)),
		removed:             make(map[int]bool, len(p.RemovedFrames)),
		interpolated:        append([]int(nil), p.InterpolatedFrames...),
	}
	for _, pair := range p.OriginalToProcessed {
		m.originalToProcessed[pair[0]] = pair[1]
	}
	for _, pair := range p.ProcessedToOriginal {
		m.processedToOriginal[pair[0]] = pair[1]
	}
	for _, idx := range p.RemovedFrames {
		m.removed[idx] = true
	}
	sort.Ints(m.interpolated)

	if len(m.originalToProcessed) != len(m.processedToOriginal) {
		return nil, fmt.Errorf("mapping for %s is not bidirectional: %d forward vs %d reverse entries",
			p.VideoID, len(m.originalToProcessed), len(m.processedToOriginal))
	}
	for original, processed := range m.originalToProcessed {
		if back, ok := m.processedToOriginal[processed]; !ok || back != original {
			return nil, fmt.Errorf("mapping for %s: processed %d does not invert to original %d",
				p.VideoID, processed, original)
		}
	}
	return m, nil
}
