/*

This file persists plan snapshots: one row per planning attempt, updated when
execution settles. The full plan is stored as JSONB next to the indexed
columns so failed executions can be diffed against what was promised.

*/

package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/levered-fi/ltm/internal/types"
)

// SavePlanRecord inserts a new plan snapshot and returns its record ID.
// planPayload is marshaled into the plan_json column; nil skips it.
func SavePlanRecord(record types.PlanRecord, planPayload any) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if record.PlanID == "" {
		return 0, fmt.Errorf("plan ID cannot be empty")
	}

	var planJSON []byte
	if planPayload != nil {
		var err error
		planJSON, err = json.Marshal(planPayload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal plan payload: %w", err)
		}
	}

	planNumber, err := IncrementPlanNumber()
	if err != nil {
		return 0, fmt.Errorf("failed to assign plan number: %w", err)
	}

	insertSQL := `
		INSERT INTO plan_snapshots (
			plan_id, plan_number, kind, token_address, chain_id,
			amount_in, expected_out, min_out, slippage_bps,
			call_count, quote_source_name, plan_json, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING record_id;`

	var recordID int64
	err = DB.QueryRow(insertSQL,
		record.PlanID, planNumber, string(record.Kind), record.TokenAddress, record.ChainID,
		record.AmountIn, record.ExpectedOut, record.MinOut, record.SlippageBps,
		record.CallCount, record.QuoteSourceName, nullableJSON(planJSON), string(record.Status),
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert plan snapshot: %w", err)
	}

	log.Info().
		Int64("recordID", recordID).
		Int("planNumber", planNumber).
		Str("planID", record.PlanID).
		Str("kind", string(record.Kind)).
		Msg("Plan snapshot saved")

	return recordID, nil
}

// UpdatePlanStatus settles a plan record after execution. txHash and
// errorMessage may be empty depending on the outcome.
func UpdatePlanStatus(planID string, status types.PlanStatus, txHash, errorMessage string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if planID == "" {
		return fmt.Errorf("plan ID cannot be empty")
	}

	updateSQL := `
		UPDATE plan_snapshots
		SET status = $2,
		    tx_hash = NULLIF($3, ''),
		    error_message = NULLIF($4, ''),
		    updated_at = CURRENT_TIMESTAMP
		WHERE plan_id = $1;`

	result, err := DB.Exec(updateSQL, planID, string(status), txHash, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update plan %s: %w", planID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no plan snapshot found for plan ID %s", planID)
	}

	log.Info().
		Str("planID", planID).
		Str("status", string(status)).
		Str("txHash", txHash).
		Msg("Plan snapshot settled")

	return nil
}

// GetPlanByID fetches one plan record.
func GetPlanByID(planID string) (*types.PlanRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if planID == "" {
		return nil, fmt.Errorf("plan ID cannot be empty")
	}

	query := selectPlanColumns + ` WHERE plan_id = $1;`

	record, err := scanPlanRecord(DB.QueryRow(query, planID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("plan %s not found", planID)
		}
		return nil, fmt.Errorf("failed to get plan %s: %w", planID, err)
	}
	return record, nil
}

// GetRecentPlans returns the latest plan records, newest first.
func GetRecentPlans(limit int) ([]types.PlanRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := selectPlanColumns + ` ORDER BY created_at DESC LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent plans: %w", err)
	}
	defer rows.Close()

	var records []types.PlanRecord
	for rows.Next() {
		record, err := scanPlanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return records, nil
}

const selectPlanColumns = `
	SELECT record_id, plan_id, kind, token_address, chain_id,
	       amount_in, expected_out, min_out, slippage_bps,
	       call_count, quote_source_name, status,
	       COALESCE(tx_hash, ''), COALESCE(error_message, ''), created_at
	FROM plan_snapshots`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlanRecord(row rowScanner) (*types.PlanRecord, error) {
	var record types.PlanRecord
	var kind, status string
	err := row.Scan(
		&record.RecordID, &record.PlanID, &kind, &record.TokenAddress, &record.ChainID,
		&record.AmountIn, &record.ExpectedOut, &record.MinOut, &record.SlippageBps,
		&record.CallCount, &record.QuoteSourceName, &status,
		&record.TxHash, &record.ErrorMessage, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Kind = types.PlanKind(kind)
	record.Status = types.PlanStatus(status)
	return &record, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
