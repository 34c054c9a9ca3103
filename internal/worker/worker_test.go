package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
)

const testSessionID = "5f0c7c1e-8a55-4a5e-9a43-1d2b9b8e6f10"

type fakeDB struct {
	mu       sync.Mutex
	copyErr  error
	execErr  func(sql string) error
	copied   [][]interface{}
	execs    []string
	copyCall int
}

func (f *fakeDB) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCall++
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		f.copied = append(f.copied, vals)
		n++
	}
	return n, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		if err := f.execErr(sql); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.copied)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func integrityEvent(sessionID string) *model.IntegrityEvent {
	return &model.IntegrityEvent{
		SessionID:   sessionID,
		QuizID:      "17",
		Fingerprint: "fp",
		Signal:      "visibility_hidden",
		Infractions: 1,
		RecordedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRecorderAndIntegrityWorkerEndToEnd(t *testing.T) {
	mr, client := newRedis(t)
	db := &fakeDB{}

	rec := NewRedisRecorder(client, zerolog.Nop())
	w := NewIntegrityWorker(db, client, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); rec.Run(ctx) }()
	go func() { defer wg.Done(); w.Start(ctx) }()

	rec.RecordIntegrity(ctx, *integrityEvent(testSessionID))
	rec.RecordIntegrity(ctx, *integrityEvent(testSessionID))

	deadline := time.Now().Add(5 * time.Second)
	for db.rows() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	if got := db.rows(); got != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", got)
	}
	if mr.Exists(config.WorkerKey.PersistIntegrityQueue) {
		t.Fatal("queue should be drained")
	}
}

func TestIntegrityFlushFallsBackAndDropsBadIDs(t *testing.T) {
	_, client := newRedis(t)
	db := &fakeDB{copyErr: errors.New("copy failed")}
	w := NewIntegrityWorker(db, client, zerolog.Nop())

	w.loop.flush(context.Background(), []*model.IntegrityEvent{
		integrityEvent(testSessionID),
		integrityEvent("not-a-uuid"),
	})

	if len(db.execs) != 1 {
		t.Fatalf("expected 1 row-by-row insert, got %d", len(db.execs))
	}
	if n, _ := client.LLen(context.Background(), config.WorkerKey.PersistIntegrityQueue).Result(); n != 0 {
		t.Fatalf("bad ids must be dropped, not requeued; queue has %d", n)
	}
}

func TestSubmissionFlushRequeuesOnDatabaseError(t *testing.T) {
	_, client := newRedis(t)
	db := &fakeDB{execErr: func(string) error { return errors.New("connection refused") }}
	w := NewSubmissionWorker(db, client, zerolog.Nop())
	w.loop.requeueBackoff = 0

	rec := &model.SubmissionRecord{SessionID: testSessionID, QuizID: "17", Score: 3, OutOf: 5, Succeeded: true}
	w.loop.flush(context.Background(), []*model.SubmissionRecord{rec})

	items, err := client.LRange(context.Background(), config.WorkerKey.PersistSubmissionsQueue, 0, -1).Result()
	if err != nil || len(items) != 1 {
		t.Fatalf("expected the record requeued, got %v, %v", items, err)
	}
	var back model.SubmissionRecord
	if err := json.Unmarshal([]byte(items[0]), &back); err != nil || back.Score != 3 {
		t.Fatalf("requeued payload mismatch: %+v, %v", back, err)
	}
}

func TestSubmissionBulkUsesUnnest(t *testing.T) {
	_, client := newRedis(t)
	db := &fakeDB{}
	w := NewSubmissionWorker(db, client, zerolog.Nop())

	w.loop.flush(context.Background(), []*model.SubmissionRecord{
		{SessionID: testSessionID, QuizID: "17", Score: 1, OutOf: 2},
		{SessionID: testSessionID, QuizID: "17", Score: 2, OutOf: 2, Forced: true},
	})

	if len(db.execs) != 1 {
		t.Fatalf("expected a single bulk statement, got %d", len(db.execs))
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	_, client := newRedis(t)
	rec := NewRedisRecorder(client, zerolog.Nop())

	for i := 0; i < RecorderBuffer+10; i++ {
		rec.RecordSubmission(context.Background(), model.SubmissionRecord{SessionID: testSessionID})
	}
	if len(rec.ch) != RecorderBuffer {
		t.Fatalf("expected buffer capped at %d, got %d", RecorderBuffer, len(rec.ch))
	}
}
