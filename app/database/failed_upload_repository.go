package database

import (
	"fmt"
)

var _ FailedUploadRepository = (*failedUploadRepository)(nil)

// failedUploadRepository keeps a log of item batches that could not be
// persisted, so refresh failures stay diagnosable after the fact.
type failedUploadRepository struct {
	db *DB
}

func NewFailedUploadRepository(db *DB) FailedUploadRepository {
	return &failedUploadRepository{db: db}
}

func (r *failedUploadRepository) RecordFailedUpload(link, errorDetail string) error {
	_, err := r.db.Exec(`
		INSERT INTO failed_uploads (link, error_detail)
		VALUES ($1, $2)
	`, link, errorDetail)

	if err != nil {
		return fmt.Errorf("failed to record failed upload: %w", err)
	}

	return nil
}

func (r *failedUploadRepository) GetRecentFailures(limit int) ([]FailedUpload, error) {
	rows, err := r.db.Query(`
		SELECT id, link, COALESCE(error_detail, ''), created_at
		FROM failed_uploads
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent failures: %w", err)
	}
	defer rows.Close()

	var failures []FailedUpload
	for rows.Next() {
		var failure FailedUpload
		if err := rows.Scan(&failure.ID, &failure.Link, &failure.ErrorDetail, &failure.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		failures = append(failures, failure)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failure rows: %w", err)
	}

	return failures, nil
}
