// Package detector wraps the external pose detection service. The service
// is an opaque HTTP/JSON collaborator; this wrapper owns the per-call
// timeout and reports every failure inside the frame's result so the
// dispatch pool never sees a call-level fault.
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/httputil"
	"github.com/ridelens/trickline/internal/pose"
	"github.com/ridelens/trickline/internal/pose/mesh"
)

// detectRequest is the wire payload sent to the pose service.
type detectRequest struct {
	FrameNumber int    `json:"frameNumber"`
	Image       string `json:"image"` // base64-encoded frame
}

// detectResponse mirrors the pose service's response document.
type detectResponse struct {
	FrameNumber    int                     `json:"frameNumber"`
	Timestamp      *float64                `json:"timestamp,omitempty"`
	Keypoints      []pose.Keypoint         `json:"keypoints"`
	MeshVertices   []pose.Vertex           `json:"meshVertices,omitempty"`
	MeshFaces      []pose.Face             `json:"meshFaces,omitempty"`
	Camera         *pose.CameraTranslation `json:"camera,omitempty"`
	ProcessingTime float64                 `json:"processingTime,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// Client calls the pose detection service one frame at a time.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
	timeout time.Duration
}

// NewClient creates a detector client. A nil httpClient uses the standard
// library default.
func NewClient(baseURL string, httpClient httputil.HTTPClient, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: baseURL, http: httpClient, timeout: timeout}
}

// FromTuning creates a client configured from the loaded tuning file.
func FromTuning(cfg *config.TuningConfig) *Client {
	return NewClient(cfg.GetDetectorURL(), nil, cfg.GetDetectorTimeout())
}

// DetectFrame runs one frame through the detector. The returned RawFrame
// always occupies the submitted frame number; a failed or timed-out call
// sets its Error field instead of returning a Go error.
func (c *Client) DetectFrame(ctx context.Context, img pose.FrameImage) pose.RawFrame {
	frame := pose.RawFrame{
		FrameNumber: img.FrameNumber,
		Timestamp:   float64(img.FrameNumber) / pose.DefaultFPS,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, img)
	if err != nil {
		frame.Error = err.Error()
		return frame
	}

	if resp.Error != "" {
		frame.Error = resp.Error
		return frame
	}
	if resp.Timestamp != nil {
		frame.Timestamp = *resp.Timestamp
	}
	frame.Keypoints = resp.Keypoints
	frame.ProcessingTime = resp.ProcessingTime

	if len(resp.MeshVertices) > 0 || len(resp.MeshFaces) > 0 || resp.Camera != nil {
		frame.Mesh = &pose.MeshData{
			Vertices: mesh.IngestVertices(resp.MeshVertices),
			Faces:    resp.MeshFaces,
			Camera:   mesh.IngestCamera(resp.Camera),
		}
	}
	return frame
}

func (c *Client) post(ctx context.Context, img pose.FrameImage) (*detectResponse, error) {
	body, err := json.Marshal(detectRequest{
		FrameNumber: img.FrameNumber,
		Image:       base64.StdEncoding.EncodeToString(img.Image),
	})
	if err != nil {
		return nil, fmt.Errorf("encode detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector call failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", httpResp.StatusCode, payload)
	}

	var resp detectResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	return &resp, nil
}
