package guard

import (
	"testing"
)

func TestGuard_CheckEpisodes(t *testing.T) {
	g := New(Budget{MaxEpisodes: 5})

	t.Run("Within", func(t *testing.T) {
		if v := g.CheckEpisodes(5); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
	})

	t.Run("Exceeded", func(t *testing.T) {
		v := g.CheckEpisodes(6)
		if v == nil {
			t.Fatal("Expected episode violation")
		}
		if v.Rule != "max_episodes" || !v.Fatal {
			t.Errorf("Unexpected violation: %+v", v)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		gz := New(Budget{})
		if v := gz.CheckEpisodes(1000000); v != nil {
			t.Errorf("Expected no violation with zero limit, got %v", v.Message)
		}
	})
}

func TestGuard_CheckTurns(t *testing.T) {
	g := New(Budget{MaxTurnsPerEpisode: 50})

	if v := g.CheckTurns(50); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
	if v := g.CheckTurns(51); v == nil {
		t.Error("Expected turn violation")
	}
}

func TestGuard_CheckStoreSize(t *testing.T) {
	g := New(Budget{MaxStoreRecords: 100})

	if v := g.CheckStoreSize(100); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
	if v := g.CheckStoreSize(101); v == nil {
		t.Error("Expected store size violation")
	}
}

func TestGuard_CheckFailures(t *testing.T) {
	g := New(Budget{MaxConsecutiveFailures: 3})

	if v := g.CheckFailures(3); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
	v := g.CheckFailures(4)
	if v == nil {
		t.Fatal("Expected failure violation")
	}
	if v.Rule != "max_consecutive_failures" {
		t.Errorf("Unexpected rule: %s", v.Rule)
	}
}

func TestGuard_CheckTokens(t *testing.T) {
	t.Run("Default Disabled", func(t *testing.T) {
		g := New(DefaultBudget)
		if v := g.CheckTokens(1 << 30); v != nil {
			t.Errorf("Expected token check disabled by default, got %v", v.Message)
		}
	})

	t.Run("Enforced", func(t *testing.T) {
		g := New(Budget{MaxTotalTokens: 1000})
		if v := g.CheckTokens(1000); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
		if v := g.CheckTokens(1001); v == nil {
			t.Error("Expected token violation")
		}
	})
}
