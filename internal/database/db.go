package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"
)

// BunDB wraps bun.DB and provides repository access
type BunDB struct {
	db *bun.DB

	maxOpenConns int

	// Repositories
	Agents      AgentRepository
	Releases    ReleaseRepository
	Deployments DeploymentRepository
	Settings    SettingRepository
}

// Option is a functional option for configuring the database
type Option func(*BunDB)

// WithDebug enables query logging for debugging
func WithDebug(enabled bool) Option {
	return func(db *BunDB) {
		if enabled {
			db.db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
			))
			log.Info().Msg("Bun query logging enabled")
		}
	}
}

// WithMaxOpenConns sets the connection pool size. In-memory databases always
// use a single connection since every connection would get its own database.
func WithMaxOpenConns(n int) Option {
	return func(db *BunDB) {
		db.maxOpenConns = n
	}
}

// New opens the sqlite database at dsn, applies pragmas and migrates the schema
func New(dsn string, opts ...Option) (*BunDB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, withConnPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	bunDB := &BunDB{
		db:           bun.NewDB(sqldb, sqlitedialect.New()),
		maxOpenConns: 1,
	}

	for _, opt := range opts {
		opt(bunDB)
	}

	if isMemoryDSN(dsn) || bunDB.maxOpenConns < 1 {
		bunDB.maxOpenConns = 1
	}
	sqldb.SetMaxOpenConns(bunDB.maxOpenConns)
	sqldb.SetMaxIdleConns(bunDB.maxOpenConns)

	ctx := context.Background()
	if err := bunDB.applyPragmas(ctx, isMemoryDSN(dsn)); err != nil {
		sqldb.Close()
		return nil, err
	}

	bunDB.Agents = NewAgentRepository(bunDB.db)
	bunDB.Releases = NewReleaseRepository(bunDB.db)
	bunDB.Deployments = NewDeploymentRepository(bunDB.db)
	bunDB.Settings = NewSettingRepository(bunDB.db)

	if err := bunDB.Migrate(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("dsn", dsn).Int("max_open_conns", bunDB.maxOpenConns).Msg("Database initialized")
	return bunDB, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// connPragmas are applied by the driver on every new pool connection
var connPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

func withConnPragmas(dsn string) string {
	params := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// applyPragmas sets database-wide pragmas once at startup
func (db *BunDB) applyPragmas(ctx context.Context, memory bool) error {
	if memory {
		return nil
	}
	if _, err := db.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *BunDB) Close() error {
	return db.db.Close()
}

// DB returns the underlying bun.DB instance for advanced operations
func (db *BunDB) DB() *bun.DB {
	return db.db
}

// Migrate creates tables and indexes if they do not exist
func (db *BunDB) Migrate(ctx context.Context) error {
	log.Debug().Msg("Running database migrations")

	tables := []struct {
		model       any
		foreignKeys []string
	}{
		{model: (*Agent)(nil)},
		{model: (*Release)(nil)},
		{
			model:       (*Deployment)(nil),
			foreignKeys: []string{`("agent_id") REFERENCES "agents" ("id") ON DELETE CASCADE`},
		},
		{model: (*Setting)(nil)},
	}

	for _, table := range tables {
		q := db.db.NewCreateTable().
			Model(table.model).
			IfNotExists()
		for _, fk := range table.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status)",
		"CREATE INDEX IF NOT EXISTS idx_deployments_agent_status_created ON deployments(agent_id, status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status)",
		"CREATE INDEX IF NOT EXISTS idx_deployments_created_at ON deployments(created_at)",
	}

	for _, idx := range indexes {
		if _, err := db.db.ExecContext(ctx, idx); err != nil {
			log.Warn().Err(err).Str("index", idx).Msg("Failed to create index")
		}
	}

	log.Debug().Msg("Database migrations completed")
	return nil
}

// Clean removes all rows from every table. Used by tests and dev resets.
func (db *BunDB) Clean(ctx context.Context) error {
	log.Warn().Msg("Cleaning all data from database")

	for _, table := range []string{"deployments", "agents", "releases", "settings"} {
		if _, err := db.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clean table %s: %w", table, err)
		}
	}
	return nil
}
