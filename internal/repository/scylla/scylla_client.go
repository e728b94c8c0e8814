package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"cashback-service/internal/config"
	"cashback-service/internal/util"
)

const ledgerTableDDL = `
	CREATE TABLE IF NOT EXISTS wallet_ledger (
		user_bucket int,
		user_id text,
		entry_id timeuuid,
		kind text,
		amount text,
		reference text,
		description text,
		created_at timestamp,
		PRIMARY KEY ((user_bucket, user_id), entry_id)
	) WITH CLUSTERING ORDER BY (entry_id DESC)`

// PreparedStatements holds the CQL the journal uses. gocql prepares and
// caches each statement on first use; a *gocql.Query is built per call
// because Bind mutates it.
type PreparedStatements struct {
	AppendEntry string
	ListEntries string
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla
	if len(scyllaConfig.Nodes) == 0 {
		return nil, fmt.Errorf("SCYLLA_NODES is not set")
	}

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.CAFile != "" {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 scyllaConfig.CAFile,
			EnableHostVerification: !cfg.IsDevelopment(),
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.ensureSchema(); err != nil {
		session.Close()
		return nil, err
	}
	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) ensureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Session.Query(ledgerTableDDL).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create wallet_ledger: %w", err)
	}
	return nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	s.Prepared = &PreparedStatements{
		AppendEntry: `
			INSERT INTO wallet_ledger (user_bucket, user_id, entry_id, kind, amount, reference, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ListEntries: `
			SELECT entry_id, kind, amount, reference, description, created_at
			FROM wallet_ledger WHERE user_bucket = ? AND user_id = ? LIMIT ?`,
	}
	s.isPrepared = true
	return nil
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ExecuteWithRetry retries transient write failures with a linear backoff
// and stops early when ctx ends.
func (s *ScyllaClient) ExecuteWithRetry(ctx context.Context, query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = query.WithContext(ctx).Exec(); lastErr == nil {
			return nil
		}
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return lastErr
}
