// Package mesh interpolates 3D body-mesh data across a synthesized frame gap.
package mesh

import (
	"github.com/ridelens/trickline/internal/monitoring"
	"github.com/ridelens/trickline/internal/pose"
)

// Interpolate blends two mesh frames at fraction t in [0,1], where t=0
// yields before and t=1 yields after.
//
// Vertices are interpolated component-wise when counts match. Mismatched
// counts are a lossy fallback: the shorter array is padded by repeating its
// last vertex before interpolating, and the mismatch is logged. Face lists
// are never interpolated; whichever side has at least as many faces wins.
func Interpolate(before, after *pose.MeshData, t float64) *pose.MeshData {
	if before == nil && after == nil {
		return nil
	}
	if before == nil {
		return after
	}
	if after == nil {
		return before
	}

	out := &pose.MeshData{
		Faces:  pickFaces(before.Faces, after.Faces),
		Camera: interpolateCamera(before.Camera, after.Camera, t),
	}

	bv, av := before.Vertices, after.Vertices
	if len(bv) == 0 && len(av) == 0 {
		return out
	}

	if len(bv) != len(av) {
		monitoring.Logf("mesh: vertex count mismatch (%d vs %d), padding shorter side", len(bv), len(av))
		if len(bv) < len(av) {
			bv = padVertices(bv, len(av))
		} else {
			av = padVertices(av, len(bv))
		}
	}

	out.Vertices = make([]pose.Vertex, len(bv))
	for i := range bv {
		for c := 0; c < 3; c++ {
			out.Vertices[i][c] = bv[i][c] + (av[i][c]-bv[i][c])*t
		}
	}
	return out
}

// pickFaces returns the larger face list; topology is copied, never blended.
func pickFaces(a, b []pose.Face) []pose.Face {
	if len(a) >= len(b) {
		return a
	}
	return b
}

func padVertices(v []pose.Vertex, n int) []pose.Vertex {
	if len(v) == 0 {
		return make([]pose.Vertex, n)
	}
	out := make([]pose.Vertex, n)
	copy(out, v)
	last := v[len(v)-1]
	for i := len(v); i < n; i++ {
		out[i] = last
	}
	return out
}

func interpolateCamera(before, after *pose.CameraTranslation, t float64) *pose.CameraTranslation {
	if before == nil {
		return after
	}
	if after == nil {
		return before
	}
	return &pose.CameraTranslation{
		TX:          before.TX + (after.TX-before.TX)*t,
		TY:          before.TY + (after.TY-before.TY)*t,
		TZ:          before.TZ + (after.TZ-before.TZ)*t,
		FocalLength: before.FocalLength + (after.FocalLength-before.FocalLength)*t,
	}
}
