package reading

import (
	"context"
	"log"
	"math"
	"time"
)

// Store is the contract the durable reading log must satisfy.
type Store interface {
	Append(ctx context.Context, r *Reading) (uint, error)
	Latest(ctx context.Context) (*Reading, error)
	Range(ctx context.Context, limit int) ([]Reading, error)
}

// Publisher pushes a stored reading to all connected live viewers.
type Publisher interface {
	Publish(r Reading)
}

// IngestPayload is the raw device record before validation. Pointer
// fields distinguish "absent" from a literal zero.
type IngestPayload struct {
	TS           *int64   `json:"ts"`
	PM25         *float64 `json:"pm25" validate:"required"`
	VOC          *float64 `json:"voc" validate:"required"`
	Ethanol      *float64 `json:"c2h5oh" validate:"required"`
	CO           *float64 `json:"co" validate:"required"`
	PredictedIAQ *float64 `json:"predicted_iaq"`
	CurrentIAQ   *float64 `json:"current_iaq"`
}

// Service validates incoming device records, persists them, and fans
// them out to live viewers.
type Service struct {
	store     Store
	publisher Publisher
	now       func() time.Time
}

// NewService creates a new ingestion Service.
func NewService(store Store, publisher Publisher) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Ingest validates a raw device payload, appends the normalized reading
// to the store and, only after the durable write succeeded, publishes it
// to live viewers. Returns the stored reading with its assigned id.
func (s *Service) Ingest(ctx context.Context, p IngestPayload) (*Reading, error) {
	r, err := s.normalize(p)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Append(ctx, r)
	if err != nil {
		return nil, err
	}
	r.ID = id

	// Broadcast strictly after the durable write; a viewer must never
	// see a reading that did not make it into the log.
	if s.publisher != nil {
		s.publisher.Publish(*r)
	}

	log.Printf("ingested reading id=%d predicted_iaq=%.1f", r.ID, r.PredictedIAQ)
	return r, nil
}

// Latest delegates to the underlying store.
func (s *Service) Latest(ctx context.Context) (*Reading, error) {
	return s.store.Latest(ctx)
}

// Range delegates to the underlying store.
func (s *Service) Range(ctx context.Context, limit int) ([]Reading, error) {
	return s.store.Range(ctx, limit)
}

func (s *Service) normalize(p IngestPayload) (*Reading, error) {
	fields := []struct {
		name  string
		value *float64
	}{
		{"pm25", p.PM25},
		{"voc", p.VOC},
		{"c2h5oh", p.Ethanol},
		{"co", p.CO},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, newValidationError(f.name, "required numeric field is missing")
		}
		if !isFinite(*f.value) {
			return nil, newValidationError(f.name, "value must be a finite number")
		}
	}

	predicted, err := derivePrediction(p.PredictedIAQ, p.CurrentIAQ)
	if err != nil {
		return nil, err
	}

	ts := s.now().Unix()
	if p.TS != nil {
		ts = *p.TS
	}

	r := &Reading{
		TS:           ts,
		PM25:         *p.PM25,
		VOC:          *p.VOC,
		Ethanol:      *p.Ethanol,
		CO:           *p.CO,
		PredictedIAQ: predicted,
	}
	if p.CurrentIAQ != nil && isFinite(*p.CurrentIAQ) {
		v := *p.CurrentIAQ
		r.CurrentIAQ = &v
	}
	return r, nil
}

// derivePrediction picks the stored prediction value: the device
// prediction when finite, else the device's current IAQ when finite.
func derivePrediction(predicted, current *float64) (float64, error) {
	if predicted != nil && isFinite(*predicted) {
		return *predicted, nil
	}
	if current != nil && isFinite(*current) {
		return *current, nil
	}
	return 0, newValidationError("predicted_iaq", "no usable prediction value")
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
