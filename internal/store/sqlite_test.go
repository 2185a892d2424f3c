package store

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/airsense/airsense/internal/profile"
	"github.com/airsense/airsense/internal/reading"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func testReading(predicted float64) *reading.Reading {
	return &reading.Reading{
		TS:           1700000000,
		PM25:         10,
		VOC:          100,
		Ethanol:      20,
		CO:           1,
		PredictedIAQ: predicted,
	}
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := NewReadingStore(openTestDB(t))
	ctx := context.Background()

	var prev uint
	for i := 0; i < 5; i++ {
		id, err := s.Append(ctx, testReading(float64(50+i)))
		if err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
		if id <= prev {
			t.Fatalf("expected monotonically increasing ids, got %d after %d", id, prev)
		}
		prev = id
	}
}

func TestLatestOnEmptyStore(t *testing.T) {
	s := NewReadingStore(openTestDB(t))

	_, err := s.Latest(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestReturnsNewestReading(t *testing.T) {
	s := NewReadingStore(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, testReading(float64(i))); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	r, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.PredictedIAQ != 2 {
		t.Fatalf("expected latest predicted_iaq 2, got %v", r.PredictedIAQ)
	}
}

func TestRangeChronologicalOrder(t *testing.T) {
	s := NewReadingStore(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := s.Append(ctx, testReading(float64(i))); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	rows, err := s.Range(ctx, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	// Most recent 4, oldest first.
	for i, want := range []float64{6, 7, 8, 9} {
		if rows[i].PredictedIAQ != want {
			t.Fatalf("row %d: expected predicted_iaq %v, got %v", i, want, rows[i].PredictedIAQ)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{500, 500},
		{5000, 5000},
		{10000, 5000},
	}
	for _, c := range cases {
		if got := ClampLimit(c.in); got != c.want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestForEachWalksAscending(t *testing.T) {
	s := NewReadingStore(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, testReading(float64(i))); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	var seen []float64
	err := s.ForEach(ctx, func(r *reading.Reading) error {
		seen = append(seen, r.PredictedIAQ)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []float64{0, 1, 2, 3, 4} {
		if seen[i] != want {
			t.Fatalf("position %d: expected %v, got %v", i, want, seen[i])
		}
	}
}

func TestProfileVersionLog(t *testing.T) {
	s := NewProfileStore(openTestDB(t))
	ctx := context.Background()

	if _, err := s.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty profile store, got %v", err)
	}

	first := &profile.Profile{
		OwnerName: "first",
		Members: []profile.Member{
			{Name: "Ana", Relation: "partner", Age: 34, Conditions: []string{"asthma"}},
		},
		Preferences: profile.Preferences{ShareWithExternal: true},
	}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	second := &profile.Profile{OwnerName: "second"}
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.OwnerName != "second" {
		t.Fatalf("expected latest version to win, got owner %q", latest.OwnerName)
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := s.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProfileMembersRoundTrip(t *testing.T) {
	s := NewProfileStore(openTestDB(t))
	ctx := context.Background()

	in := &profile.Profile{
		OwnerName: "owner",
		Members: []profile.Member{
			{Name: "Ana", Relation: "partner", Age: 34, Conditions: []string{"asthma", "pollen allergy"}},
			{Name: "Mirko", Relation: "father", Age: 71},
		},
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	out, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(out.Members))
	}
	if out.Members[0].Conditions[1] != "pollen allergy" {
		t.Fatalf("conditions did not survive the round trip: %+v", out.Members[0])
	}
	if out.Members[1].Age != 71 {
		t.Fatalf("expected age 71, got %d", out.Members[1].Age)
	}
}
