// Package persistence provides database implementations backing the
// discovery engine's storage layer.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresDB implements Database for PostgreSQL. It is the explicit
// Storage handle described in §9, with lifecycle owned by whoever
// constructs it (cmd/cmd's buildApp, in production, whose cleanup closes
// it; the discovery run coordinator neither opens nor closes it).
type PostgresDB struct {
	db *sql.DB

	monitoredPages MonitoredWikipediaPageRepository
	citations      CitationRepository
	content        ContentRepository
	feedQueue      FeedQueueRepository
	agentMemory    AgentMemoryRepository
	runs           DiscoveryRunRepository
}

// NewPostgresDB opens a connection pool and verifies connectivity before
// returning, so construction failures surface immediately rather than on
// first query.
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresDB{db: db}
	pg.monitoredPages = &postgresMonitoredPageRepo{db: db}
	pg.citations = &postgresCitationRepo{db: db}
	pg.content = &postgresContentRepo{db: db}
	pg.feedQueue = &postgresFeedQueueRepo{db: db}
	pg.agentMemory = &postgresAgentMemoryRepo{db: db}
	pg.runs = &postgresRunRepo{db: db}

	return pg, nil
}

func (p *PostgresDB) MonitoredPages() MonitoredWikipediaPageRepository { return p.monitoredPages }
func (p *PostgresDB) Citations() CitationRepository                    { return p.citations }
func (p *PostgresDB) Content() ContentRepository                       { return p.content }
func (p *PostgresDB) FeedQueue() FeedQueueRepository                   { return p.feedQueue }
func (p *PostgresDB) AgentMemory() AgentMemoryRepository               { return p.agentMemory }
func (p *PostgresDB) Runs() DiscoveryRunRepository                     { return p.runs }

func (p *PostgresDB) Close() error { return p.db.Close() }

func (p *PostgresDB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// querier is satisfied by both *sql.DB and *sql.Tx, letting every repo
// method run inside or outside a transaction without duplicating SQL.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
