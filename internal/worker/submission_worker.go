package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

// SubmissionWorker persists every submit attempt, successful or not.
type SubmissionWorker struct {
	db   DB
	loop *batchLoop[model.SubmissionRecord]
	log  zerolog.Logger
}

func NewSubmissionWorker(db DB, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	w := &SubmissionWorker{
		db:  db,
		log: log.With().Str("component", "submission_worker").Logger(),
	}
	w.loop = &batchLoop[model.SubmissionRecord]{
		rdb:            rdb,
		queue:          config.WorkerKey.PersistSubmissionsQueue,
		log:            w.log,
		bulk:           w.bulkInsert,
		single:         w.insertOne,
		requeueBackoff: 2 * time.Second,
	}
	return w
}

func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")
	w.loop.run(ctx)
}

func (w *SubmissionWorker) bulkInsert(ctx context.Context, batch []*model.SubmissionRecord) error {
	n := len(batch)
	sessionIDs := make([]uuid.UUID, 0, n)
	quizIDs := make([]string, 0, n)
	fingerprints := make([]string, 0, n)
	emails := make([]string, 0, n)
	scores := make([]int, 0, n)
	outOfs := make([]int, 0, n)
	forced := make([]bool, 0, n)
	succeeded := make([]bool, 0, n)
	errs := make([]string, 0, n)
	recordedAts := make([]time.Time, 0, n)

	for _, r := range batch {
		id, err := uuid.Parse(r.SessionID)
		if err != nil {
			return err
		}
		sessionIDs = append(sessionIDs, id)
		quizIDs = append(quizIDs, r.QuizID)
		fingerprints = append(fingerprints, r.Fingerprint)
		emails = append(emails, r.Email)
		scores = append(scores, r.Score)
		outOfs = append(outOfs, r.OutOf)
		forced = append(forced, r.Forced)
		succeeded = append(succeeded, r.Succeeded)
		errs = append(errs, r.Error)
		recordedAts = append(recordedAts, r.RecordedAt)
	}

	query := `
		INSERT INTO submission_attempts
			(session_id, quiz_id, fingerprint, email, score, out_of, forced, succeeded, error, recorded_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::int[],
			$6::int[],
			$7::bool[],
			$8::bool[],
			$9::text[],
			$10::timestamptz[]
		)
	`

	_, err := w.db.Exec(ctx, query,
		sessionIDs, quizIDs, fingerprints, emails, scores, outOfs, forced, succeeded, errs, recordedAts)
	return err
}

func (w *SubmissionWorker) insertOne(ctx context.Context, r *model.SubmissionRecord) error {
	id, err := uuid.Parse(r.SessionID)
	if err != nil {
		return fmt.Errorf("%w: session_id %q", errUnrecoverable, r.SessionID)
	}

	_, err = w.db.Exec(ctx,
		`INSERT INTO submission_attempts
			(session_id, quiz_id, fingerprint, email, score, out_of, forced, succeeded, error, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, r.QuizID, r.Fingerprint, r.Email, r.Score, r.OutOf, r.Forced, r.Succeeded, r.Error, r.RecordedAt,
	)
	return err
}
