package reading

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeStore struct {
	appended []Reading
	failWith error
	calls    *[]string
}

func (f *fakeStore) Append(_ context.Context, r *Reading) (uint, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.appended = append(f.appended, *r)
	if f.calls != nil {
		*f.calls = append(*f.calls, "store")
	}
	return uint(len(f.appended)), nil
}

func (f *fakeStore) Latest(context.Context) (*Reading, error) {
	if len(f.appended) == 0 {
		return nil, errors.New("empty")
	}
	r := f.appended[len(f.appended)-1]
	return &r, nil
}

func (f *fakeStore) Range(context.Context, int) ([]Reading, error) {
	return f.appended, nil
}

type fakePublisher struct {
	published []Reading
	calls     *[]string
}

func (f *fakePublisher) Publish(r Reading) {
	f.published = append(f.published, r)
	if f.calls != nil {
		*f.calls = append(*f.calls, "publish")
	}
}

func fptr(v float64) *float64 { return &v }

func validPayload() IngestPayload {
	return IngestPayload{
		PM25:         fptr(12.5),
		VOC:          fptr(120),
		Ethanol:      fptr(30),
		CO:           fptr(1.2),
		PredictedIAQ: fptr(88),
	}
}

func TestIngestRejectsMissingRequiredField(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakePublisher{})

	p := validPayload()
	p.CO = nil

	_, err := svc.Ingest(context.Background(), p)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIngestRejectsNonFiniteField(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakePublisher{})

	p := validPayload()
	p.PM25 = fptr(math.NaN())

	_, err := svc.Ingest(context.Background(), p)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIngestRejectsMissingPrediction(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakePublisher{})

	p := validPayload()
	p.PredictedIAQ = nil
	p.CurrentIAQ = nil

	_, err := svc.Ingest(context.Background(), p)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIngestDerivesPredictionFromCurrent(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakePublisher{})

	p := validPayload()
	p.PredictedIAQ = nil
	p.CurrentIAQ = fptr(42.0)

	r, err := svc.Ingest(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.PredictedIAQ != 42.0 {
		t.Fatalf("expected predicted_iaq 42.0, got %v", r.PredictedIAQ)
	}
}

func TestIngestPrefersDevicePrediction(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakePublisher{})

	p := validPayload()
	p.PredictedIAQ = fptr(77)
	p.CurrentIAQ = fptr(42)

	r, err := svc.Ingest(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.PredictedIAQ != 77 {
		t.Fatalf("expected predicted_iaq 77, got %v", r.PredictedIAQ)
	}
}

func TestIngestAssignsServerTimestamp(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakePublisher{})
	fixed := time.Unix(1712345678, 0)
	svc.now = func() time.Time { return fixed }

	r, err := svc.Ingest(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TS != fixed.Unix() {
		t.Fatalf("expected server-assigned ts %d, got %d", fixed.Unix(), r.TS)
	}
}

func TestIngestKeepsDeviceTimestamp(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakePublisher{})

	p := validPayload()
	ts := int64(1700000000)
	p.TS = &ts

	r, err := svc.Ingest(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TS != ts {
		t.Fatalf("expected device ts %d, got %d", ts, r.TS)
	}
}

func TestIngestStoresBeforeBroadcast(t *testing.T) {
	var calls []string
	st := &fakeStore{calls: &calls}
	pub := &fakePublisher{calls: &calls}
	svc := NewService(st, pub)

	if _, err := svc.Ingest(context.Background(), validPayload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(calls) != 2 || calls[0] != "store" || calls[1] != "publish" {
		t.Fatalf("expected store-then-broadcast ordering, got %v", calls)
	}
	if pub.published[0].ID == 0 {
		t.Fatalf("expected the broadcast record to carry the assigned id")
	}
}

func TestIngestDoesNotBroadcastOnStorageFailure(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewService(&fakeStore{failWith: errors.New("disk full")}, pub)

	if _, err := svc.Ingest(context.Background(), validPayload()); err == nil {
		t.Fatalf("expected storage error")
	}
	if len(pub.published) != 0 {
		t.Fatalf("nothing must be broadcast when the durable write fails")
	}
}
