package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

var integrityColumns = []string{"session_id", "quiz_id", "fingerprint", "signal", "detail", "infractions", "recorded_at"}

// IntegrityWorker persists proctoring infractions from the Redis queue.
type IntegrityWorker struct {
	db   DB
	loop *batchLoop[model.IntegrityEvent]
	log  zerolog.Logger
}

func NewIntegrityWorker(db DB, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	w := &IntegrityWorker{
		db:  db,
		log: log.With().Str("component", "integrity_worker").Logger(),
	}
	w.loop = &batchLoop[model.IntegrityEvent]{
		rdb:            rdb,
		queue:          config.WorkerKey.PersistIntegrityQueue,
		log:            w.log,
		bulk:           w.bulkInsert,
		single:         w.insertOne,
		requeueBackoff: 2 * time.Second,
	}
	return w
}

func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")
	w.loop.run(ctx)
}

func (w *IntegrityWorker) bulkInsert(ctx context.Context, batch []*model.IntegrityEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, ev := range batch {
		sessionID, err := uuid.Parse(ev.SessionID)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			sessionID, ev.QuizID, ev.Fingerprint, ev.Signal, ev.Detail, ev.Infractions, ev.RecordedAt,
		})
	}

	_, err := w.db.CopyFrom(ctx, pgx.Identifier{"integrity_events"}, integrityColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *IntegrityWorker) insertOne(ctx context.Context, ev *model.IntegrityEvent) error {
	sessionID, err := uuid.Parse(ev.SessionID)
	if err != nil {
		return fmt.Errorf("%w: session_id %q", errUnrecoverable, ev.SessionID)
	}

	_, err = w.db.Exec(ctx,
		`INSERT INTO integrity_events (session_id, quiz_id, fingerprint, signal, detail, infractions, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sessionID, ev.QuizID, ev.Fingerprint, ev.Signal, ev.Detail, ev.Infractions, ev.RecordedAt,
	)
	return err
}
