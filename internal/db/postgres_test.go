package db

import (
	"testing"

	"cashback-service/internal/config"
)

func TestOpenEmptyDSN(t *testing.T) {
	db, err := Open(config.PostgresConfig{})
	if err == nil {
		db.Close()
		t.Fatal("Open with empty DSN should fail")
	}
}
