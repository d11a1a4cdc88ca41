package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"rating-service/internal/config"
	"rating-service/internal/util"
)

// schema is applied in order when SCYLLA_AUTO_MIGRATE is set.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rate_limit_entries (
        bucket int,
        identity text,
        action text,
        scope text,
        count int,
        window_start bigint,
        window_ms bigint,
        PRIMARY KEY ((bucket), identity, action, scope)
    )`,
	`CREATE TABLE IF NOT EXISTS raw_submissions (
        resource_id text,
        day text,
        identity text,
        performance int,
        speed int,
        intelligence int,
        reliability int,
        issue_tag text,
        created_at timestamp,
        PRIMARY KEY ((resource_id, day), identity)
    )`,
	`CREATE TABLE IF NOT EXISTS daily_summaries (
        resource_id text,
        day text,
        total_votes int,
        avg_performance double,
        avg_speed double,
        avg_intelligence double,
        avg_reliability double,
        computed_at timestamp,
        PRIMARY KEY ((resource_id), day)
    ) WITH CLUSTERING ORDER BY (day ASC)`,
	`CREATE TABLE IF NOT EXISTS comments (
        resource_id text,
        created_at timestamp,
        comment_id uuid,
        identity text,
        comment_text text,
        PRIMARY KEY ((resource_id), created_at, comment_id)
    ) WITH CLUSTERING ORDER BY (created_at DESC, comment_id ASC)`,
}

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	if scyllaConfig.AutoMigrate {
		if err := ensureKeyspace(cfg); err != nil {
			return nil, err
		}
	}

	cluster := newCluster(cfg)
	cluster.Keyspace = scyllaConfig.Keyspace

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if scyllaConfig.AutoMigrate {
		if err := client.migrate(); err != nil {
			session.Close()
			return nil, err
		}
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace),
		zap.Bool("auto_migrate", scyllaConfig.AutoMigrate))

	return client, nil
}

func newCluster(cfg *config.Config) *gocql.ClusterConfig {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	// no driver retries, failures surface to the caller
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 0}

	if cfg.IsProduction() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_TLS_CA_FILE", "/root/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_TLS_CERT_FILE", "/root/certs/server.pem"),
			KeyPath:                util.GetEnv("SCYLLA_TLS_KEY_FILE", "/root/certs/server.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	return cluster
}

func ensureKeyspace(cfg *config.Config) error {
	session, err := newCluster(cfg).CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create scylla session: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, cfg.Scylla.Keyspace)
	if err := session.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}
	return nil
}

func (s *ScyllaClient) migrate() error {
	for _, stmt := range schema {
		if err := s.Session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	util.Info("ScyllaDB schema applied", zap.Int("statements", len(schema)))
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}
