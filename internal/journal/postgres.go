package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresJournal implements Journal using PostgreSQL.
type PostgresJournal struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresJournal creates a new PostgreSQL journal.
func NewPostgresJournal(cfg *PostgresConfig) (*PostgresJournal, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Test connection
	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-journal-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresJournal{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// newPostgresJournalWithDB wires an existing handle; used by tests.
func newPostgresJournalWithDB(db *sql.DB, logger *zap.Logger) *PostgresJournal {
	return &PostgresJournal{db: db, logger: logger}
}

// RecordClose inserts one closed-trade record.
func (p *PostgresJournal) RecordClose(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO closed_trades (
			id, account_id, symbol, side, quantity,
			entry_price, exit_price, realized_pnl, unrealized_pnl,
			net_pnl, auto_trigger, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		rec.ID,
		rec.AccountID,
		rec.Symbol,
		rec.Side,
		rec.Quantity,
		rec.EntryPrice,
		rec.ExitPrice,
		rec.RealizedPnl,
		rec.UnrealizedPnl,
		rec.NetPnl,
		rec.AutoTrigger,
		rec.ClosedAt,
	)

	if err != nil {
		return fmt.Errorf("insert closed trade: %w", err)
	}

	p.logger.Debug("trade-journaled",
		zap.String("id", rec.ID),
		zap.String("symbol", rec.Symbol),
		zap.Float64("net-pnl", rec.NetPnl))

	return nil
}

// Close closes the database connection.
func (p *PostgresJournal) Close() error {
	p.logger.Info("closing-postgres-journal")
	return p.db.Close()
}
