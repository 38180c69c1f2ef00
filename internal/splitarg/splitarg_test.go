package splitarg

import (
	"strconv"
	"strings"
	"testing"
)

func TestSplitShortInput(t *testing.T) {
	got := Split([]int64{1, 2, 3, 4, 5}, false, 100, SequenceNumbers)
	want := []string{"1:5"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitNonContiguous(t *testing.T) {
	got := Split([]int64{10, 11, 12, 15, 20, 21}, false, 100, SequenceNumbers)
	want := []string{"10:12,15,20:21"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitBudgetOverflow(t *testing.T) {
	nums := make([]int64, 4000)
	for i := range nums {
		nums[i] = int64(i + 1)
	}
	got := Split(nums, true, 7990, SequenceNumbers)

	if len(got) < 1 {
		t.Fatalf("expected at least 1 chunk, got %d", len(got))
	}

	seen := make(map[int64]bool)
	for _, chunk := range got {
		if len(chunk) > 10 {
			t.Errorf("chunk %q exceeds budget of 10 bytes (len=%d)", chunk, len(chunk))
		}
		for _, tok := range strings.Split(chunk, ",") {
			if err := expandInto(tok, seen); err != nil {
				t.Fatalf("invalid token %q in chunk %q: %v", tok, chunk, err)
			}
		}
	}

	if len(seen) != len(nums) {
		t.Fatalf("expected union to cover %d numbers, got %d", len(nums), len(seen))
	}
	for _, n := range nums {
		if !seen[n] {
			t.Fatalf("number %d missing from union of chunks", n)
		}
	}
}

func TestSplitManyChunksForNonConsecutiveInput(t *testing.T) {
	// Even numbers only: every token is a singleton, so coalescing can't
	// shrink them, forcing multiple budget-bounded chunks.
	nums := make([]int64, 0, 2000)
	for i := int64(2); i <= 8000; i += 2 {
		nums = append(nums, i)
	}
	got := Split(nums, false, 7900, SequenceNumbers)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks for non-consecutive input, got %d", len(got))
	}

	seen := make(map[int64]bool)
	for _, chunk := range got {
		if len(chunk) > 100 {
			t.Errorf("chunk %q exceeds budget (len=%d)", chunk, len(chunk))
		}
		for _, tok := range strings.Split(chunk, ",") {
			if err := expandInto(tok, seen); err != nil {
				t.Fatalf("invalid token %q: %v", tok, err)
			}
		}
	}
	for _, n := range nums {
		if !seen[n] {
			t.Fatalf("number %d missing from union of chunks", n)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if got := Split(nil, false, 100, SequenceNumbers); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestSplitFiltersNonPositiveSequenceNumbers(t *testing.T) {
	got := Split([]int64{0, -1, 3, 4}, false, 100, SequenceNumbers)
	want := []string{"3:4"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitUIDsAllowsZero(t *testing.T) {
	got := Split([]int64{0, 1, -5}, false, 100, UIDs)
	want := []string{"0:1"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitDefaultConsumed(t *testing.T) {
	got := Split([]int64{1, 2, 3}, false, -1, SequenceNumbers)
	want := []string{"1:3"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestSplitKeepOrder: with keep_order=true, coalescing only merges an
// ascending run seen in the given order (algorithm step 3). 5,4,3 walks
// descending, so none of those three merge with each other even though
// they're numerically adjacent; 10,11 walks ascending and merges.
func TestSplitKeepOrder(t *testing.T) {
	got := Split([]int64{5, 4, 3, 10, 11}, true, 100, SequenceNumbers)
	want := []string{"5,4,3,10:11"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// expandInto parses a sequence-set token ("N" or "N:M") and records every
// number it denotes into seen.
func expandInto(tok string, seen map[int64]bool) error {
	if idx := strings.IndexByte(tok, ':'); idx >= 0 {
		start, err := strconv.ParseInt(tok[:idx], 10, 64)
		if err != nil {
			return err
		}
		end, err := strconv.ParseInt(tok[idx+1:], 10, 64)
		if err != nil {
			return err
		}
		if start > end {
			return strconv.ErrRange
		}
		for n := start; n <= end; n++ {
			seen[n] = true
		}
		return nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return err
	}
	seen[n] = true
	return nil
}
