package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"cashback-service/internal/bucketing"
	"cashback-service/internal/models"
	"cashback-service/internal/util"
)

const CreateSecurityEventsTable = `
CREATE TABLE IF NOT EXISTS security_events (
    event_bucket UInt16,
    event_date   Date,
    event_time   DateTime64(3, 'UTC'),
    event_type   LowCardinality(String),
    user_id      String,
    email        String,
    ip_address   String,
    details      String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(event_date)
ORDER BY (event_bucket, event_type, event_time)
TTL event_date + INTERVAL 400 DAY`

const insertSecurityEvents = `INSERT INTO security_events
    (event_bucket, event_date, event_time, event_type, user_id, email, ip_address, details)`

// BatchWriter is satisfied by *client.ClickHouseClient.
type BatchWriter interface {
	BatchInsert(ctx context.Context, query string, rows [][]interface{}) error
}

// ClickHouseRecorder buffers events and writes them in batches. When the
// buffer is full new events are dropped and counted.
type ClickHouseRecorder struct {
	writer    BatchWriter
	buckets   *bucketing.Manager
	events    chan models.SecurityEvent
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	dropped int64

	done chan struct{}
	once sync.Once
}

func NewClickHouseRecorder(w BatchWriter, buckets *bucketing.Manager, bufferSize, batchSize int, interval time.Duration) *ClickHouseRecorder {
	r := &ClickHouseRecorder{
		writer:    w,
		buckets:   buckets,
		events:    make(chan models.SecurityEvent, bufferSize),
		batchSize: batchSize,
		interval:  interval,
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *ClickHouseRecorder) Record(_ context.Context, ev models.SecurityEvent) {
	if ev.EventTime.IsZero() {
		ev.EventTime = time.Now().UTC()
	}
	select {
	case r.events <- ev:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

func (r *ClickHouseRecorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *ClickHouseRecorder) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]models.SecurityEvent, 0, r.batchSize)
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *ClickHouseRecorder) flush(batch []models.SecurityEvent) {
	if len(batch) == 0 {
		return
	}
	rows := make([][]interface{}, 0, len(batch))
	for _, ev := range batch {
		details, _ := json.Marshal(ev.Details)
		bucketKey := ev.UserID
		if bucketKey == "" {
			bucketKey = ev.Email
		}
		rows = append(rows, []interface{}{
			uint16(r.buckets.EventBucket(bucketKey)),
			ev.EventTime.UTC().Truncate(24 * time.Hour),
			ev.EventTime.UTC(),
			ev.EventType,
			ev.UserID,
			ev.Email,
			ev.IPAddress,
			string(details),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.writer.BatchInsert(ctx, insertSecurityEvents, rows); err != nil {
		util.Error("failed to write security events",
			zap.Int("count", len(rows)),
			zap.Error(err))
	}
}

// Close flushes buffered events. Record must not be called afterwards.
func (r *ClickHouseRecorder) Close(ctx context.Context) error {
	r.once.Do(func() { close(r.events) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
