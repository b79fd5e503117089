// Package storage persists frame index mappings and processed frames in
// SQLite. A video's mapping and its dependent frame rows are replaced in a
// single transaction so a re-run never leaves a partial overwrite visible.
package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/ridelens/trickline/internal/pose"
	"github.com/ridelens/trickline/internal/pose/indexmap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrMappingNotFound reports that no mapping has been stored for the video.
var ErrMappingNotFound = errors.New("storage: no mapping for video")

// Store wraps the SQLite database holding pipeline artifacts.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Call Migrate before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Serialized writes; mapping replacement must never interleave.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies all pending schema migrations from the embedded set.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// ReplaceRun atomically replaces the video's mapping, frame rows, and run
// metadata. Readers either see the previous run in full or the new one.
func (s *Store) ReplaceRun(runID string, p *indexmap.Persisted, frames []pose.ProcessedFrame) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace run: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"pose_runs", "pose_frame_index", "pose_removed_frames",
		"pose_interpolated_frames", "pose_frames",
	} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE video_id = ?", p.VideoID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO pose_runs (
			run_id, video_id, original_frame_count, processed_frame_count,
			removed_count, interpolated_count
		) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, p.VideoID,
		p.Metadata.OriginalFrameCount, p.Metadata.ProcessedFrameCount,
		p.Metadata.RemovedCount, p.Metadata.InterpolatedCount,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, pair := range p.OriginalToProcessed {
		if _, err := tx.Exec(
			"INSERT INTO pose_frame_index (video_id, original_index, processed_index) VALUES (?, ?, ?)",
			p.VideoID, pair[0], pair[1],
		); err != nil {
			return fmt.Errorf("insert index pair %v: %w", pair, err)
		}
	}
	for _, idx := range p.RemovedFrames {
		if _, err := tx.Exec(
			"INSERT INTO pose_removed_frames (video_id, original_index) VALUES (?, ?)",
			p.VideoID, idx,
		); err != nil {
			return fmt.Errorf("insert removed frame %d: %w", idx, err)
		}
	}
	for _, idx := range p.InterpolatedFrames {
		if _, err := tx.Exec(
			"INSERT INTO pose_interpolated_frames (video_id, original_index) VALUES (?, ?)",
			p.VideoID, idx,
		); err != nil {
			return fmt.Errorf("insert interpolated frame %d: %w", idx, err)
		}
	}

	for processedIdx, frame := range frames {
		payload, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", processedIdx, err)
		}
		interpolated := 0
		if frame.Interpolated {
			interpolated = 1
		}
		if _, err := tx.Exec(
			"INSERT INTO pose_frames (video_id, processed_index, interpolated, frame_json) VALUES (?, ?, ?, ?)",
			p.VideoID, processedIdx, interpolated, payload,
		); err != nil {
			return fmt.Errorf("insert frame %d: %w", processedIdx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace run: %w", err)
	}
	return nil
}

// LoadMapping rebuilds the persisted mapping form for a video. Returns
// ErrMappingNotFound when no run has been stored.
func (s *Store) LoadMapping(videoID string) (*indexmap.Persisted, error) {
	p := &indexmap.Persisted{VideoID: videoID}

	err := s.db.QueryRow(`
		SELECT original_frame_count, processed_frame_count, removed_count, interpolated_count
		FROM pose_runs WHERE video_id = ?
		ORDER BY created_at DESC LIMIT 1`, videoID,
	).Scan(
		&p.Metadata.OriginalFrameCount, &p.Metadata.ProcessedFrameCount,
		&p.Metadata.RemovedCount, &p.Metadata.InterpolatedCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run metadata: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT original_index, processed_index FROM pose_frame_index
		WHERE video_id = ? ORDER BY original_index`, videoID)
	if err != nil {
		return nil, fmt.Errorf("load frame index: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var original, processed int
		if err := rows.Scan(&original, &processed); err != nil {
			return nil, fmt.Errorf("scan frame index: %w", err)
		}
		p.OriginalToProcessed = append(p.OriginalToProcessed, [2]int{original, processed})
		p.ProcessedToOriginal = append(p.ProcessedToOriginal, [2]int{processed, original})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frame index: %w", err)
	}
	// original_index order equals processed_index order for a dense
	// monotonic mapping, so both lists are already sorted by first element.

	p.RemovedFrames, err = s.indexList("pose_removed_frames", videoID)
	if err != nil {
		return nil, err
	}
	p.InterpolatedFrames, err = s.indexList("pose_interpolated_frames", videoID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) indexList(table, videoID string) ([]int, error) {
	rows, err := s.db.Query(
		"SELECT original_index FROM "+table+" WHERE video_id = ? ORDER BY original_index", videoID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// ProcessedFrames loads a video's full processed sequence in index order.
func (s *Store) ProcessedFrames(videoID string) ([]pose.ProcessedFrame, error) {
	rows, err := s.db.Query(
		"SELECT frame_json FROM pose_frames WHERE video_id = ? ORDER BY processed_index", videoID)
	if err != nil {
		return nil, fmt.Errorf("load processed frames: %w", err)
	}
	defer rows.Close()

	var frames []pose.ProcessedFrame
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan processed frame: %w", err)
		}
		var frame pose.ProcessedFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return nil, fmt.Errorf("decode processed frame: %w", err)
		}
		frames = append(frames, frame)
	}
	return frames, rows.Err()
}

// ProcessedFrame loads one frame by processed index. The second return is
// false when the index holds no frame; that is a defined "no data" answer,
// not an error.
func (s *Store) ProcessedFrame(videoID string, processedIndex int) (*pose.ProcessedFrame, bool, error) {
	var payload []byte
	err := s.db.QueryRow(
		"SELECT frame_json FROM pose_frames WHERE video_id = ? AND processed_index = ?",
		videoID, processedIndex,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load processed frame %d: %w", processedIndex, err)
	}
	var frame pose.ProcessedFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, false, fmt.Errorf("decode processed frame %d: %w", processedIndex, err)
	}
	return &frame, true, nil
}
