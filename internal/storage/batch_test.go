package storage

import (
	"reflect"
	"testing"
)

func TestSplitBatches(t *testing.T) {
	got, err := SplitBatches(5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Span{{From: 0, To: 2}, {From: 2, To: 4}, {From: 4, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("spans mismatch: %+v != %+v", got, want)
	}
	if got[2].Len() != 1 {
		t.Fatalf("last span len = %d", got[2].Len())
	}
}

func TestSplitBatchesSingle(t *testing.T) {
	got, err := SplitBatches(3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Span{{From: 0, To: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("spans mismatch: %+v != %+v", got, want)
	}

	got, err = SplitBatches(0, 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty input: %+v %v", got, err)
	}
}

func TestSplitBatchesInvalid(t *testing.T) {
	if _, err := SplitBatches(10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
	if _, err := SplitBatches(-1, 1); err == nil {
		t.Fatalf("expected error for negative count")
	}
}
