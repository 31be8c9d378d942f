package store

import (
	"context"
	"database/sql"
	"errors"
)

// Job statuses. A job is pending until a worker claims it, running while
// handled, and removed on success. Jobs that exhaust their retries move
// to the failed_jobs table.
const (
	jobPending = "pending"
	jobRunning = "running"
)

// Job is one queued unit of background work.
type Job struct {
	ID       int64
	Kind     string
	Payload  string
	Attempts int
}

// FailedJob is a job that exhausted its retries, kept for inspection
// and manual requeueing.
type FailedJob struct {
	ID       int64
	JobID    int64
	Kind     string
	Payload  string
	Attempts int
	Error    string
	FailedAt string
}

// EnqueueJob appends a job to the queue.
func (s *Store) EnqueueJob(ctx context.Context, kind, payload string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (kind, payload) VALUES (?, ?)`, kind, payload)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ClaimJob marks the oldest pending job as running and returns it.
// Returns nil when the queue is empty.
func (s *Store) ClaimJob(ctx context.Context) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var job Job
	err = tx.QueryRowContext(ctx, `
		SELECT id, kind, payload, attempts FROM jobs
		WHERE status = ? ORDER BY id LIMIT 1`, jobPending).
		Scan(&job.ID, &job.Kind, &job.Payload, &job.Attempts)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, attempts = attempts + 1 WHERE id = ?`,
		jobRunning, job.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	job.Attempts++
	return &job, nil
}

// CompleteJob removes a finished job from the queue.
func (s *Store) CompleteJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// FailJob moves a job to the failed_jobs table.
func (s *Store) FailJob(ctx context.Context, job *Job, jobErr string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO failed_jobs (job_id, kind, payload, attempts, error)
		VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.Payload, job.Attempts, jobErr); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// ReleaseJob puts a claimed job back at pending so it is retried later.
func (s *Store) ReleaseJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ? WHERE id = ?`, jobPending, id)
	return err
}

// ResetRunningJobs returns jobs stranded in the running state to pending.
// Called on worker startup to recover from a crash mid-job.
func (s *Store) ResetRunningJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ? WHERE status = ?`, jobPending, jobRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RetryFailedJobs requeues every failed job and clears the failure log.
func (s *Store) RetryFailedJobs(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (kind, payload)
		SELECT kind, payload FROM failed_jobs ORDER BY id`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM failed_jobs`); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// FailedJobs lists the failure log, oldest first.
func (s *Store) FailedJobs(ctx context.Context) ([]FailedJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, kind, payload, attempts, error, failed_at
		FROM failed_jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failed []FailedJob
	for rows.Next() {
		var f FailedJob
		if err := rows.Scan(&f.ID, &f.JobID, &f.Kind, &f.Payload, &f.Attempts,
			&f.Error, &f.FailedAt); err != nil {
			return nil, err
		}
		failed = append(failed, f)
	}
	return failed, rows.Err()
}

// QueueDepth returns the number of jobs waiting or running.
func (s *Store) QueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
