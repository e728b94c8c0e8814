package scylla

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashback-service/internal/bucketing"
	"cashback-service/internal/config"
	"cashback-service/internal/models"
)

func TestNewScyllaClientRequiresNodes(t *testing.T) {
	cfg := &config.Config{Environment: "development"}
	if _, err := NewScyllaClient(cfg); err == nil {
		t.Fatal("NewScyllaClient without nodes should fail")
	}
}

// Runs against SCYLLA_NODES and skips when it is unset.
func TestLedgerAppendAndList(t *testing.T) {
	nodes := os.Getenv("SCYLLA_NODES")
	if nodes == "" {
		t.Skip("SCYLLA_NODES not set; skipping integration test")
	}
	cfg := &config.Config{Environment: "development"}
	cfg.Scylla.Nodes = strings.Split(nodes, ",")
	cfg.Scylla.Keyspace = os.Getenv("SCYLLA_KEYSPACE")
	if cfg.Scylla.Keyspace == "" {
		cfg.Scylla.Keyspace = "cashback"
	}

	client, err := NewScyllaClient(cfg)
	if err != nil {
		t.Fatalf("NewScyllaClient: %v", err)
	}
	defer client.Close()

	repo := NewLedgerRepository(client, bucketing.New(8, 4))
	ctx := context.Background()
	userID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, kind := range []string{models.EntryReferralBonus, models.EntryWithdrawalDebit} {
		err := repo.Append(ctx, models.LedgerEntry{
			UserID:    userID,
			Kind:      kind,
			Amount:    decimal.RequireFromString("10.25"),
			Reference: "ref",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := repo.List(ctx, userID, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Kind != models.EntryWithdrawalDebit {
		t.Errorf("newest entry = %s, want %s", entries[0].Kind, models.EntryWithdrawalDebit)
	}
	if !entries[1].Amount.Equal(decimal.RequireFromString("10.25")) {
		t.Errorf("amount = %s", entries[1].Amount)
	}
}
