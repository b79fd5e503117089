package mesh

import "github.com/ridelens/trickline/internal/pose"

// IngestVertices applies the viewer-space transform the renderer expects:
// a 180° rotation about the X axis, flipping Y and Z. Detector output is in
// model space; everything stored downstream is viewer space.
func IngestVertices(vertices []pose.Vertex) []pose.Vertex {
	out := make([]pose.Vertex, len(vertices))
	for i, v := range vertices {
		out[i] = pose.Vertex{v[0], -v[1], -v[2]}
	}
	return out
}

// IngestCamera flips the camera translation's X component to match the
// vertex transform applied by IngestVertices.
func IngestCamera(cam *pose.CameraTranslation) *pose.CameraTranslation {
	if cam == nil {
		return nil
	}
	out := *cam
	out.TX = -out.TX
	return &out
}
