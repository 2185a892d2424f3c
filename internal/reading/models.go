package reading

import (
	"fmt"
)

// Reading is one validated, stored set of sensor measurements.
// Readings are immutable once stored: the store assigns the id and no
// update or delete path exists anywhere in the service.
type Reading struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	TS           int64    `json:"ts" gorm:"index;not null"`
	PM25         float64  `json:"pm25" gorm:"not null"`
	VOC          float64  `json:"voc" gorm:"not null"`
	Ethanol      float64  `json:"c2h5oh" gorm:"column:ethanol;not null"`
	CO           float64  `json:"co" gorm:"not null"`
	PredictedIAQ float64  `json:"predicted_iaq" gorm:"not null"`
	CurrentIAQ   *float64 `json:"current_iaq" gorm:"column:current_iaq"`
}

// TableName specifies the table name for the Reading model.
func (Reading) TableName() string {
	return "readings"
}

// Calibrated returns a display copy of the reading with the given
// calibration offset applied to the predicted IAQ. The stored value is
// never offset; this only affects outbound representations.
func (r Reading) Calibrated(offset float64) Reading {
	if offset == 0 {
		return r
	}
	out := r
	out.PredictedIAQ += offset
	return out
}

// ValidationError reports a malformed ingestion payload. It maps to a
// 4xx at the API boundary and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
