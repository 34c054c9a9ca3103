package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

// RecorderBuffer bounds how many audit records wait for Redis.
const RecorderBuffer = 256

type queued struct {
	queue string
	data  []byte
}

// RedisRecorder queues audit records for the persistence workers. Record
// calls never block: records are buffered and pushed by Run, and dropped
// when the buffer is full.
type RedisRecorder struct {
	rdb *redis.Client
	log zerolog.Logger
	ch  chan queued
}

func NewRedisRecorder(rdb *redis.Client, log zerolog.Logger) *RedisRecorder {
	return &RedisRecorder{
		rdb: rdb,
		log: log.With().Str("component", "audit_recorder").Logger(),
		ch:  make(chan queued, RecorderBuffer),
	}
}

func (r *RedisRecorder) RecordIntegrity(_ context.Context, ev model.IntegrityEvent) {
	r.enqueue(config.WorkerKey.PersistIntegrityQueue, ev)
}

func (r *RedisRecorder) RecordSubmission(_ context.Context, rec model.SubmissionRecord) {
	r.enqueue(config.WorkerKey.PersistSubmissionsQueue, rec)
}

func (r *RedisRecorder) enqueue(queue string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Error().Err(err).Str("queue", queue).Msg("Encode audit record")
		return
	}
	select {
	case r.ch <- queued{queue: queue, data: data}:
	default:
		r.log.Warn().Str("queue", queue).Msg("Audit buffer full, dropping record")
	}
}

// Run pushes buffered records until ctx is cancelled, then drains what is left.
func (r *RedisRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case q := <-r.ch:
			r.push(ctx, q)
		}
	}
}

func (r *RedisRecorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case q := <-r.ch:
			r.push(ctx, q)
		default:
			return
		}
	}
}

func (r *RedisRecorder) push(ctx context.Context, q queued) {
	if err := r.rdb.RPush(ctx, q.queue, q.data).Err(); err != nil {
		r.log.Error().Err(err).Str("queue", q.queue).Msg("Push audit record")
	}
}
