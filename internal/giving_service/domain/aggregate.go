package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyAggregate is the per-date-per-category rollup of contributions.
//
// TotalCount and TotalAmount are incremented at contribution-creation time
// only. SuccessCount and FailedCount move only in lockstep with status
// transitions, inside the same database transaction, so that at all times
// SuccessCount equals the number of SUCCESSFUL contributions in the bucket
// and FailedCount the number of FAILED ones.
type DailyAggregate struct {
	BucketDate   time.Time       `json:"bucket_date"`
	CategoryCode string          `json:"category_code"`
	TotalCount   int64           `json:"total_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	SuccessCount int64           `json:"success_count"`
	FailedCount  int64           `json:"failed_count"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
