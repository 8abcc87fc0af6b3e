package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airenas/voxy/internal/pkg/persistence"
	_ "modernc.org/sqlite"
)

// DB provides queue and result operations backed by an embedded sqlite file
type DB struct {
	db *sql.DB
}

const (
	sqliteConstraintCode = 19
	busyRetryAttempts    = 5
	busyRetryDelay       = 20 * time.Millisecond
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submitter_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		locale TEXT NOT NULL DEFAULT '')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_message ON queue(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_submitter ON queue(submitter_id)`,
	`CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_results_message ON results(message_id, channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at)`,
}

// NewDB opens or creates the database file and prepares the schema.
// Pragmas go through the DSN so every pooled connection gets them.
func NewDB(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("no db path")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open sqlite db: %w", err)
	}
	res := &DB{db: db}
	for _, s := range schema {
		if _, err := db.Exec(s); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("can't init schema: %w", err)
		}
	}
	return res, nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked")
}

func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()%256 == sqliteConstraintCode {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	var err error
	for i := 0; i < busyRetryAttempts; i++ {
		err = op()
		if !isBusy(err) {
			return err
		}
		select {
		case <-time.After(busyRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// InsertJob adds a job to the end of the queue, assigns the id
func (db *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	err := retryOnBusy(ctx, func() error {
		return db.db.QueryRowContext(ctx, `INSERT INTO queue(submitter_id, message_id, channel_id, locale)
		VALUES(?, ?, ?, ?) RETURNING id`, job.SubmitterID, job.MessageID, job.ChannelID, job.Locale).Scan(&job.ID)
	})
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("can't insert job: %w", persistence.ErrDuplicate)
		}
		return fmt.Errorf("can't insert job: %w", err)
	}
	return nil
}

// PopOldestJob removes and returns the oldest job in one transaction.
// Returns nil if the queue is empty.
func (db *DB) PopOldestJob(ctx context.Context) (*persistence.Job, error) {
	var res *persistence.Job
	err := retryOnBusy(ctx, func() error {
		res = nil
		tx, err := db.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		var job persistence.Job
		err = tx.QueryRowContext(ctx, `SELECT id, submitter_id, message_id, channel_id, locale FROM queue
		ORDER BY id LIMIT 1`).Scan(&job.ID, &job.SubmitterID, &job.MessageID, &job.ChannelID, &job.Locale)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		cmd, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, job.ID)
		if err != nil {
			return err
		}
		if rows, _ := cmd.RowsAffected(); rows != 1 {
			// taken by a concurrent consumer, report empty and let the caller retry
			return nil
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		res = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't pop job: %w", err)
	}
	return res, nil
}

// CountJobs returns the queue size
func (db *DB) CountJobs(ctx context.Context) (int64, error) {
	var res int64
	if err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&res); err != nil {
		return 0, fmt.Errorf("can't count jobs: %w", err)
	}
	return res, nil
}

// ExistsJobBySubmitter checks if the submitter has a queued job
func (db *DB) ExistsJobBySubmitter(ctx context.Context, submitterID int64) (bool, error) {
	var res bool
	if err := db.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM queue WHERE submitter_id = ?)`,
		submitterID).Scan(&res); err != nil {
		return false, fmt.Errorf("can't check submitter: %w", err)
	}
	return res, nil
}

// ExistsJobByMessage checks if the message is already queued
func (db *DB) ExistsJobByMessage(ctx context.Context, messageID int64) (bool, error) {
	var res bool
	if err := db.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM queue WHERE message_id = ?)`,
		messageID).Scan(&res); err != nil {
		return false, fmt.Errorf("can't check message: %w", err)
	}
	return res, nil
}

// InsertResult stores a transcription, assigns the id.
// A repeated insert for the same message overwrites the old row.
func (db *DB) InsertResult(ctx context.Context, item *persistence.Result) error {
	err := retryOnBusy(ctx, func() error {
		return db.db.QueryRowContext(ctx, `INSERT INTO results(message_id, channel_id, text, created_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(message_id, channel_id) DO UPDATE SET text = excluded.text, created_at = excluded.created_at
		RETURNING id`, item.MessageID, item.ChannelID, item.Text, item.CreatedAt).Scan(&item.ID)
	})
	if err != nil {
		return fmt.Errorf("can't insert result: %w", err)
	}
	return nil
}

// LoadResult returns the stored transcription or nil
func (db *DB) LoadResult(ctx context.Context, messageID, channelID int64) (*persistence.Result, error) {
	var res persistence.Result
	err := db.db.QueryRowContext(ctx, `SELECT id, message_id, channel_id, text, created_at FROM results
		WHERE message_id = ? AND channel_id = ?`, messageID, channelID).Scan(&res.ID, &res.MessageID,
		&res.ChannelID, &res.Text, &res.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load result: %w", err)
	}
	return &res, nil
}

// DeleteResultsBefore drops results created before the passed moment
func (db *DB) DeleteResultsBefore(ctx context.Context, before time.Time) (int64, error) {
	var res int64
	err := retryOnBusy(ctx, func() error {
		cmd, err := db.db.ExecContext(ctx, `DELETE FROM results WHERE created_at < ?`, before.UTC().Unix())
		if err != nil {
			return err
		}
		res, err = cmd.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("can't delete results: %w", err)
	}
	return res, nil
}

// DeleteResult drops one result, returns false if it was not there
func (db *DB) DeleteResult(ctx context.Context, messageID, channelID int64) (bool, error) {
	var res int64
	err := retryOnBusy(ctx, func() error {
		cmd, err := db.db.ExecContext(ctx, `DELETE FROM results WHERE message_id = ? AND channel_id = ?`,
			messageID, channelID)
		if err != nil {
			return err
		}
		res, err = cmd.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("can't delete result: %w", err)
	}
	return res > 0, nil
}

// Live returns no error if the db is reachable
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'queue')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no schema")
	}
	return nil
}

// Close closes the underlying pool
func (db *DB) Close() error {
	return db.db.Close()
}
