// Package config loads and validates the pipeline tuning parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Tuning defaults. Every Get* accessor falls back to one of these when the
// corresponding field is absent from the loaded JSON.
const (
	DefaultMaxConcurrent       = 2
	DefaultMaxQueue            = 10
	DefaultMinDispatchInterval = 100 * time.Millisecond
	DefaultShutdownTimeout     = 30 * time.Second

	DefaultDetectorURL     = "http://localhost:5000"
	DefaultDetectorTimeout = 2 * time.Minute

	DefaultWindowSize             = 5
	DefaultLowConfidenceThreshold = 0.6
	DefaultMinConfidence          = 0.3
	DefaultEdgeMarginFraction     = 0.05
	DefaultOffScreenFraction      = 0.5
	DefaultOutlierThreshold       = 0.3
	DefaultFrameWidth             = 1920.0
	DefaultFrameHeight            = 1080.0

	DefaultMaxInterpolationGap = 10

	DefaultProcessNoise     = 0.01
	DefaultMeasurementNoise = 0.1
)

// TuningConfig is the root configuration for the pose pipeline. All fields
// are pointers so a partial JSON file only overrides what it names; omitted
// fields retain their defaults through the Get* accessors.
type TuningConfig struct {
	// Dispatch pool params
	MaxConcurrent       *int    `json:"max_concurrent,omitempty"`
	MaxQueue            *int    `json:"max_queue,omitempty"`
	MinDispatchInterval *string `json:"min_dispatch_interval,omitempty"` // duration string like "100ms"
	ShutdownTimeout     *string `json:"shutdown_timeout,omitempty"`

	// Detector params
	DetectorURL     *string `json:"detector_url,omitempty"`
	DetectorTimeout *string `json:"detector_timeout,omitempty"`

	// Quality analyzer params
	WindowSize             *int     `json:"window_size,omitempty"`
	LowConfidenceThreshold *float64 `json:"low_confidence_threshold,omitempty"`
	MinConfidence          *float64 `json:"min_confidence,omitempty"`
	EdgeMarginFraction     *float64 `json:"edge_margin_fraction,omitempty"`
	OffScreenFraction      *float64 `json:"off_screen_fraction,omitempty"`
	OutlierThreshold       *float64 `json:"outlier_threshold,omitempty"`
	FrameWidth             *float64 `json:"frame_width,omitempty"`
	FrameHeight            *float64 `json:"frame_height,omitempty"`

	// Frame filter params
	MaxInterpolationGap *int `json:"max_interpolation_gap,omitempty"`

	// Temporal smoother params
	ProcessNoise     *float64 `json:"process_noise,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset, so every
// accessor answers its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all set fields are in range.
func (c *TuningConfig) Validate() error {
	if c.MaxConcurrent != nil && *c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got %d", *c.MaxConcurrent)
	}
	if c.MaxQueue != nil && *c.MaxQueue < 0 {
		return fmt.Errorf("max_queue must be >= 0, got %d", *c.MaxQueue)
	}
	if c.WindowSize != nil && *c.WindowSize < 2 {
		return fmt.Errorf("window_size must be >= 2, got %d", *c.WindowSize)
	}
	if c.MaxInterpolationGap != nil && *c.MaxInterpolationGap < 1 {
		return fmt.Errorf("max_interpolation_gap must be >= 1, got %d", *c.MaxInterpolationGap)
	}
	for name, v := range map[string]*float64{
		"low_confidence_threshold": c.LowConfidenceThreshold,
		"min_confidence":           c.MinConfidence,
		"edge_margin_fraction":     c.EdgeMarginFraction,
		"off_screen_fraction":      c.OffScreenFraction,
		"outlier_threshold":        c.OutlierThreshold,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be in [0,1], got %f", name, *v)
		}
	}
	for name, v := range map[string]*float64{
		"frame_width":       c.FrameWidth,
		"frame_height":      c.FrameHeight,
		"process_noise":     c.ProcessNoise,
		"measurement_noise": c.MeasurementNoise,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be > 0, got %f", name, *v)
		}
	}
	for name, v := range map[string]*string{
		"min_dispatch_interval": c.MinDispatchInterval,
		"shutdown_timeout":      c.ShutdownTimeout,
		"detector_timeout":      c.DetectorTimeout,
	} {
		if v == nil {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("%s is not a valid duration: %w", name, err)
		}
	}
	return nil
}

func (c *TuningConfig) duration(field *string, fallback time.Duration) time.Duration {
	if field == nil {
		return fallback
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return fallback
	}
	return d
}

// GetMaxConcurrent returns the dispatch pool concurrency cap.
func (c *TuningConfig) GetMaxConcurrent() int {
	if c.MaxConcurrent != nil {
		return *c.MaxConcurrent
	}
	return DefaultMaxConcurrent
}

// GetMaxQueue returns the dispatch pool queue depth.
func (c *TuningConfig) GetMaxQueue() int {
	if c.MaxQueue != nil {
		return *c.MaxQueue
	}
	return DefaultMaxQueue
}

// GetMinDispatchInterval returns the minimum spacing between dispatches.
func (c *TuningConfig) GetMinDispatchInterval() time.Duration {
	return c.duration(c.MinDispatchInterval, DefaultMinDispatchInterval)
}

// GetShutdownTimeout returns how long Shutdown waits for in-flight work.
func (c *TuningConfig) GetShutdownTimeout() time.Duration {
	return c.duration(c.ShutdownTimeout, DefaultShutdownTimeout)
}

// GetDetectorURL returns the pose detector base URL.
func (c *TuningConfig) GetDetectorURL() string {
	if c.DetectorURL != nil {
		return *c.DetectorURL
	}
	return DefaultDetectorURL
}

// GetDetectorTimeout returns the per-call detector timeout.
func (c *TuningConfig) GetDetectorTimeout() time.Duration {
	return c.duration(c.DetectorTimeout, DefaultDetectorTimeout)
}

// GetWindowSize returns the quality analyzer neighbor window size.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize != nil {
		return *c.WindowSize
	}
	return DefaultWindowSize
}

// GetLowConfidenceThreshold returns the mean-confidence floor below which a
// frame is flagged low-confidence.
func (c *TuningConfig) GetLowConfidenceThreshold() float64 {
	if c.LowConfidenceThreshold != nil {
		return *c.LowConfidenceThreshold
	}
	return DefaultLowConfidenceThreshold
}

// GetMinConfidence returns the mean-confidence floor below which a frame is
// treated as off-screen outright.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence != nil {
		return *c.MinConfidence
	}
	return DefaultMinConfidence
}

// GetEdgeMarginFraction returns the frame-edge margin, as a fraction of the
// frame dimension, inside which a keypoint counts as near the boundary.
func (c *TuningConfig) GetEdgeMarginFraction() float64 {
	if c.EdgeMarginFraction != nil {
		return *c.EdgeMarginFraction
	}
	return DefaultEdgeMarginFraction
}

// GetOffScreenFraction returns the fraction of boundary keypoints above
// which a frame is flagged off-screen.
func (c *TuningConfig) GetOffScreenFraction() float64 {
	if c.OffScreenFraction != nil {
		return *c.OffScreenFraction
	}
	return DefaultOffScreenFraction
}

// GetOutlierThreshold returns the mean trend deviation above which a frame
// is flagged as a motion outlier.
func (c *TuningConfig) GetOutlierThreshold() float64 {
	if c.OutlierThreshold != nil {
		return *c.OutlierThreshold
	}
	return DefaultOutlierThreshold
}

// GetFrameWidth returns the source frame width in pixels.
func (c *TuningConfig) GetFrameWidth() float64 {
	if c.FrameWidth != nil {
		return *c.FrameWidth
	}
	return DefaultFrameWidth
}

// GetFrameHeight returns the source frame height in pixels.
func (c *TuningConfig) GetFrameHeight() float64 {
	if c.FrameHeight != nil {
		return *c.FrameHeight
	}
	return DefaultFrameHeight
}

// GetMaxInterpolationGap returns the widest original-index gap the filter
// will bridge by interpolation.
func (c *TuningConfig) GetMaxInterpolationGap() int {
	if c.MaxInterpolationGap != nil {
		return *c.MaxInterpolationGap
	}
	return DefaultMaxInterpolationGap
}

// GetProcessNoise returns the smoother's position-channel process noise.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise != nil {
		return *c.ProcessNoise
	}
	return DefaultProcessNoise
}

// GetMeasurementNoise returns the smoother's position-channel measurement noise.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise != nil {
		return *c.MeasurementNoise
	}
	return DefaultMeasurementNoise
}
