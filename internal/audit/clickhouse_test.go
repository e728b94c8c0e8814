package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"cashback-service/internal/bucketing"
	"cashback-service/internal/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][][]interface{}
}

func (w *fakeWriter) BatchInsert(_ context.Context, _ string, rows [][]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, rows)
	return nil
}

func (w *fakeWriter) rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestClickHouseRecorderBatchesAndFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	r := NewClickHouseRecorder(w, bucketing.New(64, 16), 100, 3, time.Hour)

	for i := 0; i < 7; i++ {
		r.Record(context.Background(), models.SecurityEvent{EventType: models.EventOTPSent, Email: "a@example.com"})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := w.rows(); got != 7 {
		t.Fatalf("rows written = %d, want 7", got)
	}
	if len(w.batches) != 3 {
		t.Errorf("batches = %d, want 3", len(w.batches))
	}
	row := w.batches[0][0]
	if row[3] != models.EventOTPSent || row[5] != "a@example.com" {
		t.Errorf("row = %v", row)
	}
	if b := row[0].(uint16); b >= 16 {
		t.Errorf("event bucket %d out of range", b)
	}
}

func TestClickHouseRecorderFlushesOnInterval(t *testing.T) {
	w := &fakeWriter{}
	r := NewClickHouseRecorder(w, bucketing.New(1, 1), 10, 100, 10*time.Millisecond)
	defer r.Close(context.Background())

	r.Record(context.Background(), models.SecurityEvent{EventType: models.EventLoginSucceeded, UserID: "u1"})
	deadline := time.Now().Add(2 * time.Second)
	for w.rows() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.rows() != 1 {
		t.Fatal("event not flushed on interval")
	}
}
