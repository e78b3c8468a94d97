package indexer

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestSplitRangeChunksFromZero(t *testing.T) {
	got, err := SplitRange(0, 25_000, 10_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 0, To: 9_999},
		{From: 10_000, To: 19_999},
		{From: 20_000, To: 25_000},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
	if got[2].Len() != 5_001 {
		t.Fatalf("len mismatch: %d", got[2].Len())
	}
}

func TestNextBlock(t *testing.T) {
	cases := []struct {
		cursor int64
		floor  uint64
		want   uint64
	}{
		{-1, 0, 0},
		{-1, 100, 100},
		{15, 10, 16},
		{5, 100, 100},
		{99, 100, 100},
	}
	for _, tc := range cases {
		if got := NextBlock(tc.cursor, tc.floor); got != tc.want {
			t.Fatalf("NextBlock(%d, %d) = %d, want %d", tc.cursor, tc.floor, got, tc.want)
		}
	}
}
