package settlement

import (
	"github.com/shopspring/decimal"
)

// Outcome is the result class of one settlement attempt.
type Outcome string

const (
	OutcomeOK             Outcome = "OK"
	OutcomeAlreadySettled Outcome = "ALREADY_SETTLED"
	OutcomeFailed         Outcome = "FAILED"
)

// Result is the typed per-candidate settlement outcome. Failures are values,
// not propagated errors, so sibling candidates keep processing.
type Result struct {
	VendorTxKey string
	Outcome     Outcome
	Reason      string
	Fee         decimal.Decimal
	NetAmount   decimal.Decimal
	Commission  decimal.Decimal
}

// Failed reports whether the attempt must count as a failure.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// Progress is the queryable state of a batch run.
type Progress struct {
	BatchID        uint            `json:"batch_id"`
	Status         string          `json:"status"`
	CandidateCount int             `json:"candidate_count"`
	ProcessedCount int             `json:"processed_count"`
	FailedCount    int             `json:"failed_count"`
	Percent        float64         `json:"percent"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}
