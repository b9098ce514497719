// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type BuyerStats struct {
	Date          string
	Buyer         string
	RequestCount  uint64
	SuccessCount  uint64
	RejectedCount uint64
	ErrorCount    uint64
	TotalTimeMs   int64
}

// MySQLStore persists usage buckets into buyer_daily_stats
type MySQLStore struct {
	DB *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{DB: db}
}

func (s *MySQLStore) SaveBuyerStats(ctx context.Context, stats []BuyerStats) error {
	if len(stats) == 0 {
		return nil
	}
	return ExecuteTransaction(ctx, s.DB, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			return SaveBuyerStats(ctx, tx, stats)
		},
	})
}

// SaveBuyerStats accumulates the given rows into the daily stats table
func SaveBuyerStats(ctx context.Context, tx *sql.Tx, stats []BuyerStats) error {
	statsSQLStr := `INSERT INTO buyer_daily_stats (
		date, buyer_peer_id, request_count, success_count, rejected_count, error_count, total_time
	) VALUES`

	statsVals := []any{}
	for _, val := range stats {
		statsSQLStr += "(?, ?, ?, ?, ?, ?, ?),"
		statsVals = append(statsVals, val.Date, val.Buyer, val.RequestCount, val.SuccessCount, val.RejectedCount, val.ErrorCount, val.TotalTimeMs)
	}

	statsSQLStr = strings.TrimSuffix(statsSQLStr, ",")
	statsSQLStr += ` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		success_count = success_count + VALUES(success_count),
		rejected_count = rejected_count + VALUES(rejected_count),
		error_count = error_count + VALUES(error_count),
		total_time = total_time + VALUES(total_time)`

	_, err := tx.ExecContext(ctx, statsSQLStr, statsVals...)
	if err != nil {
		return fmt.Errorf("failed to save buyer stats: %w", err)
	}
	return nil
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Execute all functions in the transaction
	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	// Commit the transaction if all functions succeeded
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
