package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// DB provides queue and result operations over postgresql,
// used instead of the embedded store for shared deployments
type DB struct {
	pool *pgxpool.Pool
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS queue (
		id BIGSERIAL PRIMARY KEY,
		submitter_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		channel_id BIGINT NOT NULL,
		locale TEXT NOT NULL DEFAULT '',
		UNIQUE (message_id))`,
	`CREATE INDEX IF NOT EXISTS idx_queue_submitter ON queue(submitter_id)`,
	`CREATE TABLE IF NOT EXISTS results (
		id BIGSERIAL PRIMARY KEY,
		message_id BIGINT NOT NULL,
		channel_id BIGINT NOT NULL,
		text TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (message_id, channel_id))`,
	`CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at)`,
}

// NewDB creates DB instance and prepares the schema
func NewDB(ctx context.Context, pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	for _, s := range schema {
		if _, err := pool.Exec(ctx, s); err != nil {
			return nil, fmt.Errorf("can't init schema: %w", err)
		}
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// InsertJob adds a job to the end of the queue, assigns the id
func (db *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	err := db.pool.QueryRow(ctx, `INSERT INTO queue(submitter_id, message_id, channel_id, locale)
	VALUES($1, $2, $3, $4) RETURNING id`, job.SubmitterID, job.MessageID, job.ChannelID,
		job.Locale).Scan(&job.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("can't insert job: %w", persistence.ErrDuplicate)
		}
		return fmt.Errorf("can't insert job: %w", err)
	}
	return nil
}

// PopOldestJob removes and returns the oldest job in one atomic statement.
// Returns nil if the queue is empty. Safe under concurrent consumers.
func (db *DB) PopOldestJob(ctx context.Context) (*persistence.Job, error) {
	var job persistence.Job
	err := db.pool.QueryRow(ctx, `DELETE FROM queue
	WHERE id = (SELECT id FROM queue ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED)
	RETURNING id, submitter_id, message_id, channel_id, locale`).Scan(&job.ID, &job.SubmitterID,
		&job.MessageID, &job.ChannelID, &job.Locale)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't pop job: %w", err)
	}
	return &job, nil
}

// CountJobs returns the queue size
func (db *DB) CountJobs(ctx context.Context) (int64, error) {
	var res int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue`).Scan(&res); err != nil {
		return 0, fmt.Errorf("can't count jobs: %w", err)
	}
	return res, nil
}

// ExistsJobBySubmitter checks if the submitter has a queued job
func (db *DB) ExistsJobBySubmitter(ctx context.Context, submitterID int64) (bool, error) {
	var res bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM queue WHERE submitter_id = $1)`,
		submitterID).Scan(&res); err != nil {
		return false, fmt.Errorf("can't check submitter: %w", err)
	}
	return res, nil
}

// ExistsJobByMessage checks if the message is already queued
func (db *DB) ExistsJobByMessage(ctx context.Context, messageID int64) (bool, error) {
	var res bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM queue WHERE message_id = $1)`,
		messageID).Scan(&res); err != nil {
		return false, fmt.Errorf("can't check message: %w", err)
	}
	return res, nil
}

// InsertResult stores a transcription, assigns the id.
// A repeated insert for the same message overwrites the old row.
func (db *DB) InsertResult(ctx context.Context, item *persistence.Result) error {
	err := db.pool.QueryRow(ctx, `INSERT INTO results(message_id, channel_id, text, created_at)
	VALUES($1, $2, $3, $4)
	ON CONFLICT (message_id, channel_id) DO UPDATE SET text = EXCLUDED.text, created_at = EXCLUDED.created_at
	RETURNING id`, item.MessageID, item.ChannelID, item.Text, item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("can't insert result: %w", err)
	}
	return nil
}

// LoadResult returns the stored transcription or nil
func (db *DB) LoadResult(ctx context.Context, messageID, channelID int64) (*persistence.Result, error) {
	var res persistence.Result
	err := db.pool.QueryRow(ctx, `SELECT id, message_id, channel_id, text, created_at FROM results
		WHERE message_id = $1 AND channel_id = $2`, messageID, channelID).Scan(&res.ID, &res.MessageID,
		&res.ChannelID, &res.Text, &res.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load result: %w", err)
	}
	return &res, nil
}

// DeleteResultsBefore drops results created before the passed moment
func (db *DB) DeleteResultsBefore(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := db.pool.Exec(ctx, `DELETE FROM results WHERE created_at < $1`, before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("can't delete results: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// DeleteResult drops one result, returns false if it was not there
func (db *DB) DeleteResult(ctx context.Context, messageID, channelID int64) (bool, error) {
	cmd, err := db.pool.Exec(ctx, `DELETE FROM results WHERE message_id = $1 AND channel_id = $2`,
		messageID, channelID)
	if err != nil {
		return false, fmt.Errorf("can't delete result: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'queue')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no schema")
	}
	return nil
}
