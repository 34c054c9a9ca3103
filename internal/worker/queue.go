package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// DB is the subset of *pgxpool.Pool the workers use.
type DB interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// batchLoop drains one Redis list into batches. bulk is tried first; on
// failure each item goes through single, and items that still fail are
// pushed back onto the queue.
type batchLoop[T any] struct {
	rdb    *redis.Client
	queue  string
	log    zerolog.Logger
	bulk   func(ctx context.Context, batch []*T) error
	single func(ctx context.Context, item *T) error

	// requeueBackoff pauses after a requeue so a dead database is not hammered.
	requeueBackoff time.Duration
}

func (l *batchLoop[T]) run(ctx context.Context) {
	buffer := make([]*T, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			l.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			l.shutdown(buffer)
			return
		default:
		}

		result, err := l.rdb.BLPop(ctx, PollTimeout, l.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				l.shutdown(buffer)
				return
			}
			l.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		item := new(T)
		if err := json.Unmarshal([]byte(result[1]), item); err != nil {
			l.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

func (l *batchLoop[T]) flush(ctx context.Context, batch []*T) {
	if len(batch) == 0 {
		return
	}
	err := l.bulk(ctx, batch)
	if err == nil {
		l.log.Debug().Int("count", len(batch)).Msg("Batch persisted")
		return
	}
	l.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	failed := make([]*T, 0)
	for _, item := range batch {
		if err := l.single(ctx, item); err != nil {
			if errors.Is(err, errUnrecoverable) {
				l.log.Error().Err(err).Msg("Dropping record")
				continue
			}
			l.log.Error().Err(err).Msg("Insert failed, requeueing")
			failed = append(failed, item)
		}
	}
	if len(failed) > 0 {
		l.requeue(ctx, failed)
	}
}

func (l *batchLoop[T]) requeue(ctx context.Context, items []*T) {
	pipe := l.rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, l.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	l.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	if l.requeueBackoff > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(l.requeueBackoff):
		}
	}
}

func (l *batchLoop[T]) shutdown(buffer []*T) {
	l.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.flush(shutdownCtx, buffer)
}

// errUnrecoverable marks records that can never be inserted (bad ids).
var errUnrecoverable = errors.New("unrecoverable record")
