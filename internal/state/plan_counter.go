/*

This file manages the persistent global plan counter. The counter is stored in
the database so plan numbering stays monotonic across restarts.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentPlanNumber retrieves the current plan number from the database
func GetCurrentPlanNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `SELECT current_plan FROM plan_counter WHERE id = 1;`

	var currentPlan int
	row := DB.QueryRow(query)
	err := row.Scan(&currentPlan)

	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn().Msg("No plan counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current plan number: %w", err)
	}

	return currentPlan, nil
}

// IncrementPlanNumber increments the plan counter and returns the new value
func IncrementPlanNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	updateQuery := `
		UPDATE plan_counter
		SET current_plan = current_plan + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_plan;`

	var newPlan int
	row := DB.QueryRow(updateQuery)
	err := row.Scan(&newPlan)

	if err != nil {
		return 0, fmt.Errorf("failed to increment plan number: %w", err)
	}

	log.Debug().Int("newPlan", newPlan).Msg("Incremented plan counter")
	return newPlan, nil
}
