package pose

// DefaultFPS is assumed when the detector does not supply frame timestamps.
const DefaultFPS = 30.0

// Keypoint is a named body landmark with screen-space position and a
// detection confidence in [0,1]. Z is zero for 2D-only detectors.
type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Vertex is one 3D mesh vertex as [x, y, z].
type Vertex [3]float64

// Face is one triangle as three vertex indices.
type Face [3]int

// CameraTranslation positions the weak-perspective camera for a mesh frame.
type CameraTranslation struct {
	TX          float64 `json:"tx"`
	TY          float64 `json:"ty"`
	TZ          float64 `json:"tz"`
	FocalLength float64 `json:"focalLength"`
}

// MeshData carries the optional body-mesh output of the detector.
type MeshData struct {
	Vertices []Vertex           `json:"vertices,omitempty"`
	Faces    []Face             `json:"faces,omitempty"`
	Camera   *CameraTranslation `json:"camera,omitempty"`
}

// FrameImage is one undecoded video frame queued for detection.
type FrameImage struct {
	FrameNumber int
	Image       []byte
}

// RawFrame is one frame's detection result, dense by original frame number.
// A failed detector call is still a RawFrame: Error is set and the frame
// occupies its original index until the filter stage removes it.
type RawFrame struct {
	FrameNumber    int        `json:"frameNumber"`
	Timestamp      float64    `json:"timestamp"`
	Keypoints      []Keypoint `json:"keypoints"`
	Mesh           *MeshData  `json:"mesh,omitempty"`
	ProcessingTime float64    `json:"processingTime,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Keypoint returns the named keypoint, or nil if the frame does not have it.
func (f *RawFrame) Keypoint(name string) *Keypoint {
	for i := range f.Keypoints {
		if f.Keypoints[i].Name == name {
			return &f.Keypoints[i]
		}
	}
	return nil
}

// FrameQuality is the quality analyzer's verdict for one raw frame.
type FrameQuality struct {
	FrameIndex             int     `json:"frameIndex"`
	QualityScore           float64 `json:"qualityScore"`
	LowConfidence          bool    `json:"lowConfidence"`
	OffScreen              bool    `json:"offScreen"`
	Outlier                bool    `json:"outlier"`
	AverageConfidence      float64 `json:"averageConfidence"`
	BoundaryDistance       float64 `json:"boundaryDistance"`
	DeviationFromNeighbors float64 `json:"deviationFromNeighbors"`
	KeypointCount          int     `json:"keypointCount"`
	NeighborCount          int     `json:"neighborCount"`
}

// ProcessedFrame is a post-filter frame: either a kept RawFrame or a
// synthesized replacement for an outlier.
type ProcessedFrame struct {
	RawFrame
	Interpolated bool `json:"interpolated,omitempty"`
}

// FilteredSequence is the filter stage's output. Frames is dense and
// order-preserving over processed indices 0..ProcessedCount-1.
type FilteredSequence struct {
	Frames             []ProcessedFrame
	RemovedFrames      []int // original indices dropped
	InterpolatedFrames []int // original indices synthesized
	IndexMap           map[int]int
	OriginalCount      int
	ProcessedCount     int
}
