package ledger

import (
	"errors"
	"testing"
)

func TestParseLevels(t *testing.T) {
	table, err := ParseLevels("")
	if err != nil {
		t.Fatalf("ParseLevels default: %v", err)
	}
	if len(table) != 5 || table[4].Name != "Master" || table[4].Number != 5 {
		t.Fatalf("table=%+v", table)
	}

	for _, bad := range []string{
		"Beginner:10,Pro:20",
		"Beginner:0,Pro:0",
		"Beginner:0,Pro:50,Elite:40",
		"Beginner",
		"Beginner:zero",
		":0",
	} {
		if _, err := ParseLevels(bad); !errors.Is(err, ErrInvalidLevels) {
			t.Fatalf("ParseLevels(%q) err=%v", bad, err)
		}
	}
}

func TestLevelFor(t *testing.T) {
	table, _ := ParseLevels(DefaultLevels)
	cases := []struct {
		points int
		want   int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{499, 2},
		{500, 3},
		{1000, 4},
		{4999, 4},
		{5000, 5},
		{1_000_000, 5},
	}
	for _, tc := range cases {
		if got := table.For(tc.points).Number; got != tc.want {
			t.Fatalf("For(%d)=%d want %d", tc.points, got, tc.want)
		}
	}

	next, ok := table.Next(120)
	if !ok || next.Name != "Advanced" || next.Threshold != 500 {
		t.Fatalf("Next(120)=%+v ok=%v", next, ok)
	}
	if _, ok := table.Next(7000); ok {
		t.Fatalf("top level should have no next")
	}
}
