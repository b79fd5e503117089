package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/pipeline"
	"github.com/ridelens/trickline/internal/pose"
	"github.com/ridelens/trickline/internal/pose/dispatch"
	"github.com/ridelens/trickline/internal/pose/indexmap"
	"github.com/ridelens/trickline/internal/storage"
)

// steadyDetector answers every frame with a centered, confident detection,
// except the indices listed in dropout which come back at confidence 0.1.
type steadyDetector struct {
	dropout map[int]bool
}

func (d *steadyDetector) DetectFrame(ctx context.Context, img pose.FrameImage) pose.RawFrame {
	conf := 0.9
	if d.dropout[img.FrameNumber] {
		conf = 0.1
	}
	return pose.RawFrame{
		FrameNumber: img.FrameNumber,
		Timestamp:   float64(img.FrameNumber) / pose.DefaultFPS,
		Keypoints: []pose.Keypoint{
			{Name: "head", X: 100 + 3*float64(img.FrameNumber), Y: 400, Confidence: conf},
		},
	}
}

// newTestServer processes one 8-frame video with frames 2 and 3 removed and
// returns a server over the resulting store.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	interval := "0s"
	cfg := config.EmptyTuningConfig()
	cfg.MinDispatchInterval = &interval

	rt := pipeline.New(cfg, &steadyDetector{dropout: map[int]bool{2: true, 3: true}}, store)
	t.Cleanup(rt.Shutdown)

	images := make([]pose.FrameImage, 8)
	for i := range images {
		images[i] = pose.FrameImage{FrameNumber: i, Image: []byte(fmt.Sprintf("frame-%d", i))}
	}
	_, err = rt.ProcessVideo(context.Background(), "video-api", images)
	require.NoError(t, err)

	return NewServer(rt)
}

func doGet(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, req)
	return rec
}

func TestPoolStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doGet(t, s, "/api/pool_status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status dispatch.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(8), status.TotalProcessed)
	assert.Equal(t, 0, status.ActiveProcesses)
}

func TestMappingEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doGet(t, s, "/api/mapping?video=video-api")
	require.Equal(t, http.StatusOK, rec.Code)

	var p indexmap.Persisted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "video-api", p.VideoID)
	assert.Equal(t, []int{2, 3}, p.RemovedFrames)
	assert.Equal(t, 8, p.Metadata.OriginalFrameCount)
	assert.Equal(t, 6, p.Metadata.ProcessedFrameCount)
}

func TestMappingEndpointUnknownVideo(t *testing.T) {
	s := newTestServer(t)
	rec := doGet(t, s, "/api/mapping?video=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMappingEndpointMissingParam(t *testing.T) {
	s := newTestServer(t)
	rec := doGet(t, s, "/api/mapping")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFrameEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Original 5 survived the removals at 2 and 3.
	rec := doGet(t, s, "/api/frame?video=video-api&original=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Found bool                 `json:"found"`
		Frame *pose.ProcessedFrame `json:"frame"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Found)
	assert.Equal(t, 5, resp.Frame.FrameNumber)

	// A removed original answers found=false, not an error.
	rec = doGet(t, s, "/api/frame?video=video-api&original=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Found)
	assert.Nil(t, resp.Frame)
}

func TestSmoothedEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doGet(t, s, "/api/smoothed?video=video-api")
	require.Equal(t, http.StatusOK, rec.Code)

	var frames []pose.ProcessedFrame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frames))
	assert.Len(t, frames, 6)
}

func TestEndpointsRejectPost(t *testing.T) {
	s := newTestServer(t)
	for _, url := range []string{"/api/pool_status", "/api/mapping", "/api/frame", "/api/smoothed"} {
		req := httptest.NewRequest(http.MethodPost, url, nil)
		rec := httptest.NewRecorder()
		s.ServeMux().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, url)
	}
}
