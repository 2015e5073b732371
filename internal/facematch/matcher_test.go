package facematch

import (
	"context"
	"errors"
	"iter"
	"math"
	"testing"
)

// unit returns a 128-dim descriptor with value v at index i.
func unit(i int, v float64) Descriptor {
	d := make(Descriptor, 128)
	d[i] = v
	return d
}

func TestMatchers_EmptyCollection(t *testing.T) {
	for name, m := range map[string]Matcher{"first": FirstMatcher{}, "nearest": NearestMatcher{}} {
		t.Run(name, func(t *testing.T) {
			_, ok, err := m.Match(context.Background(), unit(0, 1), Slice(nil), 0.6)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if ok {
				t.Error("expected no match on an empty collection")
			}
		})
	}
}

func TestMatchers_Reflexive(t *testing.T) {
	d := unit(3, 0.42)
	for _, tolerance := range []float64{0, 0.1, 0.6, 10} {
		for name, m := range map[string]Matcher{"first": FirstMatcher{}, "nearest": NearestMatcher{}} {
			got, ok, err := m.Match(context.Background(), d, Slice([]Candidate{{ID: "self", Descriptor: d}}), tolerance)
			if err != nil || !ok || got.ID != "self" {
				t.Errorf("%s: Match(self, tolerance=%v) = %v, %v, %v; want self", name, tolerance, got.ID, ok, err)
			}
		}
	}
}

func TestMatchers_BoundaryInclusive(t *testing.T) {
	// Distance between unit(0, 0) and unit(0, 0.5) is exactly 0.5.
	known := Slice([]Candidate{{ID: "a", Descriptor: unit(0, 0.5)}})
	candidate := unit(0, 0)

	tests := []struct {
		name      string
		tolerance float64
		want      bool
	}{
		{"exactly at tolerance", 0.5, true},
		{"tolerance minus epsilon", math.Nextafter(0.5, 0), false},
		{"above tolerance", 0.51, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := FirstMatcher{}.Match(context.Background(), candidate, known, tt.tolerance)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("Match(tolerance=%v) = %v, want %v", tt.tolerance, ok, tt.want)
			}
		})
	}
}

func TestFirstMatcher_FirstNotClosest(t *testing.T) {
	known := Slice([]Candidate{
		{ID: "far", Descriptor: unit(0, 0.5)},
		{ID: "near", Descriptor: unit(0, 0.1)},
	})

	got, ok, err := FirstMatcher{}.Match(context.Background(), unit(0, 0), known, 0.6)
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v", ok, err)
	}
	if got.ID != "far" {
		t.Errorf("FirstMatcher picked %q, want far (iteration order)", got.ID)
	}

	got, ok, err = NearestMatcher{}.Match(context.Background(), unit(0, 0), known, 0.6)
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v", ok, err)
	}
	if got.ID != "near" {
		t.Errorf("NearestMatcher picked %q, want near", got.ID)
	}
}

func TestFirstMatcher_StopsAtFirstHit(t *testing.T) {
	read := 0
	known := func(yield func(Candidate, error) bool) {
		for i := range 10 {
			read++
			if !yield(Candidate{ID: string(rune('a' + i)), Descriptor: unit(0, 0)}, nil) {
				return
			}
		}
	}

	if _, ok, _ := (FirstMatcher{}).Match(context.Background(), unit(0, 0), known, 0.1); !ok {
		t.Fatal("expected a match")
	}
	if read != 1 {
		t.Errorf("read %d candidates, want 1", read)
	}
}

func TestMatchers_MalformedStoredDescriptor(t *testing.T) {
	known := Slice([]Candidate{{ID: "short", Descriptor: Descriptor{1, 2}}})
	for name, m := range map[string]Matcher{"first": FirstMatcher{}, "nearest": NearestMatcher{}} {
		_, ok, err := m.Match(context.Background(), unit(0, 0), known, 0.6)
		if !errors.Is(err, ErrMalformedDescriptor) {
			t.Errorf("%s: expected ErrMalformedDescriptor, got %v", name, err)
		}
		if ok {
			t.Errorf("%s: malformed descriptor must not match", name)
		}
	}
}

func TestMatchers_StreamError(t *testing.T) {
	boom := errors.New("cursor closed")
	var known iter.Seq2[Candidate, error] = func(yield func(Candidate, error) bool) {
		yield(Candidate{}, boom)
	}

	_, _, err := FirstMatcher{}.Match(context.Background(), unit(0, 0), known, 0.6)
	if !errors.Is(err, boom) {
		t.Errorf("expected stream error, got %v", err)
	}
}

func TestMatchers_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	known := Slice([]Candidate{{ID: "a", Descriptor: unit(0, 0)}})
	_, ok, err := FirstMatcher{}.Match(ctx, unit(0, 0), known, 0.6)
	if !errors.Is(err, context.Canceled) || ok {
		t.Errorf("Match() = %v, %v; want context.Canceled", ok, err)
	}
}

func TestVerify(t *testing.T) {
	stored := unit(5, 0.3)

	ok, err := Verify(unit(5, 0.3), stored, 0.65)
	if err != nil || !ok {
		t.Errorf("Verify(identical) = %v, %v; want true", ok, err)
	}

	ok, err = Verify(unit(5, 1.0), stored, 0.65)
	if err != nil || ok {
		t.Errorf("Verify(distance 0.7) = %v, %v; want false", ok, err)
	}

	if _, err := Verify(Descriptor{1}, stored, 0.65); !errors.Is(err, ErrMalformedDescriptor) {
		t.Errorf("Verify(short) error = %v, want ErrMalformedDescriptor", err)
	}
}

func TestNewMatcher(t *testing.T) {
	if _, ok := NewMatcher("nearest").(NearestMatcher); !ok {
		t.Error("NewMatcher(nearest) should return NearestMatcher")
	}
	if _, ok := NewMatcher("first").(FirstMatcher); !ok {
		t.Error("NewMatcher(first) should return FirstMatcher")
	}
	if _, ok := NewMatcher("").(FirstMatcher); !ok {
		t.Error("NewMatcher(\"\") should default to FirstMatcher")
	}
}
