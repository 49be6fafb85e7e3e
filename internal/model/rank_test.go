package model

import "testing"

func TestRankTable(t *testing.T) {
	for level := 1; level <= 5; level++ {
		rank, ok := Ranks[level]
		if !ok {
			t.Fatalf("rank table missing level %d", level)
		}
		if rank.Level != level {
			t.Errorf("rank %d has mismatched level %d", level, rank.Level)
		}
		if rank.Name == "" {
			t.Errorf("rank %d has no name", level)
		}
		if rank.Salary <= 0 || rank.CallReward <= 0 {
			t.Errorf("rank %d has non-positive pay", level)
		}
	}
}

func TestValidRank(t *testing.T) {
	for _, level := range []int{1, 2, 3, 4, 5} {
		if !ValidRank(level) {
			t.Errorf("rank %d should be valid", level)
		}
	}
	for _, level := range []int{0, -1, 6, 100} {
		if ValidRank(level) {
			t.Errorf("rank %d should be invalid", level)
		}
	}
}

func TestIsSupervisor(t *testing.T) {
	if IsSupervisor(3) {
		t.Errorf("rank 3 should not be supervisor")
	}
	if !IsSupervisor(4) || !IsSupervisor(5) {
		t.Errorf("ranks 4 and 5 should be supervisor")
	}
}
