package upload

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pitchkit/pitchkit/internal/common"
)

// ResumeStore persists confirmed chunk offsets so a restarted client picks
// up a chunked upload where it left off instead of re-sending the file.
type ResumeStore struct {
	db *sql.DB
}

// NewResumeStore opens (and migrates) the resume database at path.
func NewResumeStore(path string) (*ResumeStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ResumeStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS upload_resume (
		job_id TEXT PRIMARY KEY,
		total_size INTEGER NOT NULL,
		confirmed_offset INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Offset returns the confirmed offset recorded for jobID. A record whose
// total size does not match the current blob is stale and reads as zero.
func (s *ResumeStore) Offset(jobID string, totalSize int64) (int64, error) {
	var (
		size   int64
		offset int64
	)
	err := s.db.QueryRow(
		`SELECT total_size, confirmed_offset FROM upload_resume WHERE job_id = ?`, jobID,
	).Scan(&size, &offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query resume offset: %w", err)
	}
	if size != totalSize {
		return 0, nil
	}
	return offset, nil
}

// Save records the confirmed offset for jobID.
func (s *ResumeStore) Save(jobID string, totalSize, offset int64) error {
	_, err := s.db.Exec(
		`INSERT INTO upload_resume (job_id, total_size, confirmed_offset, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
			total_size = excluded.total_size,
			confirmed_offset = excluded.confirmed_offset,
			updated_at = excluded.updated_at`,
		jobID, totalSize, offset, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save resume offset: %w", err)
	}
	return nil
}

// Clear removes the resume record once the upload completed.
func (s *ResumeStore) Clear(jobID string) error {
	if _, err := s.db.Exec(`DELETE FROM upload_resume WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("clear resume offset: %w", err)
	}
	return nil
}

func (s *ResumeStore) Close() error {
	return s.db.Close()
}
