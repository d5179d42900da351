package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/signalnoise/factgate/internal/shared/models"
)

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// LogAnalysis records one analysis request for audit and spend reporting
func (db *DB) LogAnalysis(ctx context.Context, entry *models.AnalysisLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO analysis_logs (
			id, subject, network, endpoint, model, tier, escalated, escalate_reason,
			turns, cost_usd, latency_ms, bonus_used, entitled, status_code, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		entry.ID,
		entry.Subject,
		entry.Network,
		entry.Endpoint,
		entry.Model,
		entry.Tier,
		entry.Escalated,
		entry.EscalateReason,
		entry.Turns,
		entry.CostUSD,
		entry.LatencyMs,
		entry.BonusUsed,
		entry.Entitled,
		entry.StatusCode,
		entry.ErrorMessage,
	)

	return err
}
