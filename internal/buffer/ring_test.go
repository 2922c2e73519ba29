package buffer

import (
	"reflect"
	"testing"
)

func TestRingKeepsNewestEntries(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}

	if ring.Len() != 3 {
		t.Fatalf("expected len 3, got %d", ring.Len())
	}
	if got := ring.List(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestRingLast(t *testing.T) {
	ring := NewRing[string](4)
	ring.Add("a")
	ring.Add("b")
	ring.Add("c")

	cases := []struct {
		n        int
		expected []string
	}{
		{n: 0, expected: []string{"a", "b", "c"}},
		{n: 1, expected: []string{"c"}},
		{n: 2, expected: []string{"b", "c"}},
		{n: 10, expected: []string{"a", "b", "c"}},
	}
	for _, testCase := range cases {
		if got := ring.Last(testCase.n); !reflect.DeepEqual(got, testCase.expected) {
			t.Fatalf("last(%d): expected %v, got %v", testCase.n, testCase.expected, got)
		}
	}
}

func TestRingLastAfterWrap(t *testing.T) {
	ring := NewRing[int](2)
	ring.Add(1)
	ring.Add(2)
	ring.Add(3)

	if got := ring.Last(1); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("expected [3], got %v", got)
	}
}

func TestRingLastMatching(t *testing.T) {
	ring := NewRing[int](5)
	for i := 1; i <= 7; i++ {
		ring.Add(i)
	}

	even := func(value int) bool { return value%2 == 0 }
	if got := ring.LastMatching(0, even); !reflect.DeepEqual(got, []int{4, 6}) {
		t.Fatalf("expected [4 6], got %v", got)
	}
	if got := ring.LastMatching(1, even); !reflect.DeepEqual(got, []int{6}) {
		t.Fatalf("expected [6], got %v", got)
	}
	if got := ring.LastMatching(2, nil); !reflect.DeepEqual(got, []int{6, 7}) {
		t.Fatalf("expected [6 7], got %v", got)
	}
	if got := ring.LastMatching(0, func(int) bool { return false }); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestNilRingIsSafe(t *testing.T) {
	var ring *Ring[int]
	ring.Add(1)
	if ring.Len() != 0 || ring.List() != nil {
		t.Fatalf("expected nil ring to stay empty")
	}
}
