package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/livecheck/internal/types"
	"github.com/jackc/pgx/v5"
)

// ErrRecordingNotFound is returned when a recording id is unknown.
var ErrRecordingNotFound = errors.New("recording not found")

// Store keeps raw analyzer observations so capture sessions can be replayed
// against other challenge plans and calibrations. Verification outcomes are never stored.
type Store struct {
	conn *pgx.Conn
}

// Recording summarises one captured observation stream.
type Recording struct {
	ID         string
	Source     string
	Label      string
	Frames     int
	RecordedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_observations (
			id BIGSERIAL PRIMARY KEY,
			recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			face_index INT NOT NULL,
			left_eye_open DOUBLE PRECISION,
			right_eye_open DOUBLE PRECISION,
			smiling DOUBLE PRECISION,
			head_euler_y DOUBLE PRECISION NOT NULL,
			UNIQUE (recording_id, frame_index, face_index)
		);
		CREATE INDEX IF NOT EXISTS face_observations_recording_idx ON face_observations (recording_id, frame_index);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureRecording registers a recording. Re-recording the same id replaces its observations.
func (s *Store) EnsureRecording(ctx context.Context, id, source string) error {
	if _, err := s.conn.Exec(ctx, "DELETE FROM face_observations WHERE recording_id = $1", id); err != nil {
		return err
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO recordings (id, source, recorded_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET recorded_at = NOW(), source = EXCLUDED.source
	`, id, source)
	return err
}

// InsertFrame saves every face the analyzer reported for one frame.
// Frames without faces carry no signal and are skipped.
func (s *Store) InsertFrame(ctx context.Context, recordingID string, frame types.Frame) error {
	if len(frame.Faces) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, face := range frame.Faces {
		batch.Queue(`
			INSERT INTO face_observations
				(recording_id, frame_index, face_index, left_eye_open, right_eye_open, smiling, head_euler_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, recordingID, frame.Index, i,
			face.LeftEyeOpenProbability, face.RightEyeOpenProbability, face.SmilingProbability,
			face.HeadEulerAngleY)
	}
	return s.conn.SendBatch(ctx, batch).Close()
}

// LoadFrames returns a recording's frames in capture order.
func (s *Store) LoadFrames(ctx context.Context, recordingID string) ([]types.Frame, error) {
	var exists bool
	if err := s.conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM recordings WHERE id = $1)", recordingID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, recordingID)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT frame_index, left_eye_open, right_eye_open, smiling, head_euler_y
		FROM face_observations
		WHERE recording_id = $1
		ORDER BY frame_index, face_index
	`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []types.Frame
	for rows.Next() {
		var idx int
		var face types.FaceObservation
		if err := rows.Scan(&idx, &face.LeftEyeOpenProbability, &face.RightEyeOpenProbability, &face.SmilingProbability, &face.HeadEulerAngleY); err != nil {
			return nil, err
		}
		if n := len(frames); n == 0 || frames[n-1].Index != idx {
			frames = append(frames, types.Frame{Index: idx})
		}
		last := &frames[len(frames)-1]
		last.Faces = append(last.Faces, face)
	}
	return frames, rows.Err()
}

// ListRecordings returns every recording, newest first.
func (s *Store) ListRecordings(ctx context.Context) ([]Recording, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id, r.source, r.label, r.recorded_at, COUNT(DISTINCT o.frame_index)
		FROM recordings r
		LEFT JOIN face_observations o ON o.recording_id = r.id
		GROUP BY r.id
		ORDER BY r.recorded_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recordings []Recording
	for rows.Next() {
		var r Recording
		if err := rows.Scan(&r.ID, &r.Source, &r.Label, &r.RecordedAt, &r.Frames); err != nil {
			return nil, err
		}
		recordings = append(recordings, r)
	}
	return recordings, rows.Err()
}

// LabelRecording attaches a human-readable label, e.g. "printed photo attack".
func (s *Store) LabelRecording(ctx context.Context, id, label string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE recordings SET label = $1 WHERE id = $2", label, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_observations CASCADE;
		DROP TABLE IF EXISTS recordings CASCADE;
	`)
	return err
}
