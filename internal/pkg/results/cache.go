package results

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/pkg/errors"
)

// DB is the store backend contract for result operations
type DB interface {
	InsertResult(ctx context.Context, item *persistence.Result) error
	LoadResult(ctx context.Context, messageID, channelID int64) (*persistence.Result, error)
	DeleteResultsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Cache keeps finished transcriptions keyed by source message for reuse.
// Entries live until they age out, reads do not refresh the age.
type Cache struct {
	db  DB
	now func() time.Time
}

// NewCache creates the result cache over a store backend
func NewCache(db DB) (*Cache, error) {
	if db == nil {
		return nil, errors.New("no db")
	}
	return &Cache{db: db, now: time.Now}, nil
}

// Get returns the cached transcription or nil
func (c *Cache) Get(ctx context.Context, messageID, channelID int64) (*persistence.Result, error) {
	return c.db.LoadResult(ctx, messageID, channelID)
}

// Put stores a transcription and stamps it with the current UTC time.
// Empty text is a valid value, it means no speech was detected.
func (c *Cache) Put(ctx context.Context, messageID, channelID int64, text string) (*persistence.Result, error) {
	res := &persistence.Result{MessageID: messageID, ChannelID: channelID, Text: text,
		CreatedAt: c.now().UTC().Unix()}
	if err := c.db.InsertResult(ctx, res); err != nil {
		return nil, fmt.Errorf("can't save result: %w", err)
	}
	return res, nil
}

// EvictOlderThan drops entries older than retention, purely by age
func (c *Cache) EvictOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return c.db.DeleteResultsBefore(ctx, c.now().Add(-retention))
}

// StartSweepLoop evicts expired entries on startup and then every interval
func (c *Cache) StartSweepLoop(ctx context.Context, interval, retention time.Duration) (<-chan struct{}, error) {
	if interval <= 0 {
		return nil, errors.Errorf("wrong sweep interval %v", interval)
	}
	if retention <= 0 {
		return nil, errors.Errorf("wrong retention %v", retention)
	}
	goapp.Log.Info().Msgf("Starting results sweep every %v, retention %v", interval, retention)
	res := make(chan struct{}, 2)
	go func() {
		defer close(res)
		c.sweepLoop(ctx, interval, retention)
	}()
	return res, nil
}

func (c *Cache) sweepLoop(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	// run on startup
	c.sweep(ctx, retention)
	for {
		select {
		case <-ticker.C:
			c.sweep(ctx, retention)
		case <-ctx.Done():
			ticker.Stop()
			goapp.Log.Info().Msgf("Stopped results sweep")
			return
		}
	}
}

func (c *Cache) sweep(ctx context.Context, retention time.Duration) {
	deleted, err := c.EvictOlderThan(ctx, retention)
	if err != nil {
		goapp.Log.Error().Err(err).Send()
		return
	}
	if deleted > 0 {
		goapp.Log.Info().Int64("deleted", deleted).Msg("swept old results")
	}
}
