// Package api exposes the pipeline's monitoring and query surface over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ridelens/trickline/internal/monitoring"
	"github.com/ridelens/trickline/internal/pipeline"
	"github.com/ridelens/trickline/internal/storage"
)

// ANSI escape codes for request log coloring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server answers read-only queries against a Runtime and its store.
type Server struct {
	runtime *pipeline.Runtime
}

// NewServer wraps a Runtime for HTTP serving.
func NewServer(runtime *pipeline.Runtime) *Server {
	return &Server{runtime: runtime}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux wires the query routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pool_status", s.showPoolStatus)
	mux.HandleFunc("/api/mapping", s.showMapping)
	mux.HandleFunc("/api/frame", s.showFrame)
	mux.HandleFunc("/api/smoothed", s.showSmoothed)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showPoolStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	json.NewEncoder(w).Encode(s.runtime.PoolStatus())
}

// videoParam pulls the required video query parameter, writing the error
// response itself when absent.
func (s *Server) videoParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	videoID := r.URL.Query().Get("video")
	if videoID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'video' parameter")
		return "", false
	}
	return videoID, true
}

func (s *Server) showMapping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	videoID, ok := s.videoParam(w, r)
	if !ok {
		return
	}

	mapping, err := s.runtime.Mapping(videoID)
	if errors.Is(err, storage.ErrMappingNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "No run stored for video")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to load mapping")
		return
	}
	json.NewEncoder(w).Encode(mapping.Serialize())
}

// showFrame resolves an original frame index through the mapping. A removed
// index answers found=false with status 200; only an unknown video is an
// error.
func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	videoID, ok := s.videoParam(w, r)
	if !ok {
		return
	}
	original, err := strconv.Atoi(r.URL.Query().Get("original"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'original' parameter")
		return
	}

	frame, found, err := s.runtime.FrameByOriginal(videoID, original)
	if errors.Is(err, storage.ErrMappingNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "No run stored for video")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to load frame")
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"found": found,
		"frame": frame,
	})
}

func (s *Server) showSmoothed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	videoID, ok := s.videoParam(w, r)
	if !ok {
		return
	}

	frames, err := s.runtime.SmoothedSequence(videoID)
	if errors.Is(err, storage.ErrMappingNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "No run stored for video")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to smooth sequence")
		return
	}
	json.NewEncoder(w).Encode(frames)
}
