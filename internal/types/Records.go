/*

Audit-record types persisted by the state package. One row is written when a
plan is produced and updated when execution settles, so every mint/redeem
attempt leaves a trail of what was promised versus what was broadcast.

*/

package types

import "time"

// PlanKind distinguishes mint from redeem records.
type PlanKind string

const (
	PlanKindMint   PlanKind = "mint"
	PlanKindRedeem PlanKind = "redeem"
)

// PlanStatus tracks a plan through the plan -> execute -> settle flow.
type PlanStatus string

const (
	PlanStatusPlanned  PlanStatus = "planned"
	PlanStatusExecuted PlanStatus = "executed"
	PlanStatusFailed   PlanStatus = "failed"
)

// PlanRecord is the persisted snapshot of one planning attempt.
// Amounts are stored as decimal strings to keep full integer precision.
type PlanRecord struct {
	RecordID        int64      `json:"record_id"`
	PlanID          string     `json:"plan_id"`
	Kind            PlanKind   `json:"kind"`
	TokenAddress    string     `json:"token_address"`
	ChainID         uint64     `json:"chain_id"`
	AmountIn        string     `json:"amount_in"`
	ExpectedOut     string     `json:"expected_out"`
	MinOut          string     `json:"min_out"`
	SlippageBps     uint32     `json:"slippage_bps"`
	CallCount       int        `json:"call_count"`
	QuoteSourceName string     `json:"quote_source_name"`
	Status          PlanStatus `json:"status"`
	TxHash          string     `json:"tx_hash,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
