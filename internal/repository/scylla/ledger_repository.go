package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cashback-service/internal/bucketing"
	"cashback-service/internal/models"
	"cashback-service/internal/util"
)

const defaultListLimit = 50

// LedgerRepository journals balance movements in wallet_ledger. A user's
// entries share one partition, newest first.
type LedgerRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewLedgerRepository(client *ScyllaClient, buckets *bucketing.Manager) *LedgerRepository {
	return &LedgerRepository{client: client, buckets: buckets}
}

func (r *LedgerRepository) Append(ctx context.Context, e models.LedgerEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	entryID := gocql.UUIDFromTime(e.CreatedAt)

	query := r.client.Query(r.client.Prepared.AppendEntry,
		r.buckets.UserBucket(e.UserID), e.UserID, entryID, e.Kind,
		e.Amount.String(), e.Reference, e.Description, e.CreatedAt)
	if err := r.client.ExecuteWithRetry(ctx, query, 2); err != nil {
		util.Error("Failed to append ledger entry",
			zap.String("user_id", e.UserID),
			zap.String("kind", e.Kind),
			zap.Error(err))
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) List(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	iter := r.client.Query(r.client.Prepared.ListEntries, r.buckets.UserBucket(userID), userID, limit).
		WithContext(ctx).
		Iter()

	var (
		entries []models.LedgerEntry
		id      gocql.UUID
		amount  string
		e       models.LedgerEntry
	)
	for iter.Scan(&id, &e.Kind, &amount, &e.Reference, &e.Description, &e.CreatedAt) {
		e.UserID = userID
		e.EntryID = id.String()
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("ledger entry %s: bad amount %q: %w", e.EntryID, amount, err)
		}
		e.Amount = parsed
		entries = append(entries, e)
		e = models.LedgerEntry{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
