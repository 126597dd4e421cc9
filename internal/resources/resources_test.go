package resources

import "testing"

func TestNewDefaultPoolSeedsFromDefaults(t *testing.T) {
	p := NewDefaultPool()
	for _, k := range Kinds {
		d := ResourceDefaults[k]
		if p.Holdings[k] != d.Initial {
			t.Errorf("%s: holdings = %v, want %v", k, p.Holdings[k], d.Initial)
		}
		if p.Caps[k] != d.Cap {
			t.Errorf("%s: caps = %v, want %v", k, p.Caps[k], d.Cap)
		}
	}
}

func TestCanAfford(t *testing.T) {
	p := NewDefaultPool()
	if !p.CanAfford(ActionCosts[ActionMove]) {
		t.Fatal("expected to afford move at full resources")
	}
	p.Holdings[Energy] = 1
	if p.CanAfford(ActionCosts[ActionFork]) {
		t.Fatal("should not afford fork with only 1 energy")
	}
}

func TestDeductAllOrNothing(t *testing.T) {
	p := NewDefaultPool()
	before := p.Holdings[Bandwidth]

	costs := map[Kind]float64{Energy: 1000, Bandwidth: 1}
	if p.Deduct(costs) {
		t.Fatal("expected deduct to fail when energy is insufficient")
	}
	if p.Holdings[Bandwidth] != before {
		t.Fatalf("bandwidth should be untouched on failed deduct, got %v want %v", p.Holdings[Bandwidth], before)
	}

	ok := p.Deduct(ActionCosts[ActionMove])
	if !ok {
		t.Fatal("expected move cost to be affordable")
	}
	if p.Holdings[Energy] != ResourceDefaults[Energy].Initial-5 {
		t.Fatalf("energy after move cost = %v, want %v", p.Holdings[Energy], ResourceDefaults[Energy].Initial-5)
	}
}

func TestRegenerateClampsToCap(t *testing.T) {
	p := NewDefaultPool()
	p.Holdings[Energy] = ResourceDefaults[Energy].Cap - 1
	p.Regenerate(1.0)
	if p.Holdings[Energy] != ResourceDefaults[Energy].Cap {
		t.Fatalf("energy = %v, want clamped to cap %v", p.Holdings[Energy], ResourceDefaults[Energy].Cap)
	}
}

func TestRegenerateScalesByRegionMultiplier(t *testing.T) {
	p := NewDefaultPool()
	p.Holdings[Compute] = 0
	p.Regenerate(2.0)
	want := ResourceDefaults[Compute].Regen * 2.0
	if p.Holdings[Compute] != want {
		t.Fatalf("compute = %v, want %v", p.Holdings[Compute], want)
	}
}

func TestApplyDangerDepletesAndClampsAtZero(t *testing.T) {
	p := NewDefaultPool()
	p.Holdings[Energy] = 3
	depleted := p.ApplyDanger(1.0)
	if !depleted {
		t.Fatal("expected depletion: drain of 5 against 3 energy")
	}
	if p.Holdings[Energy] != 0 {
		t.Fatalf("energy = %v, want 0", p.Holdings[Energy])
	}
}

func TestApplyDangerSurvives(t *testing.T) {
	p := NewDefaultPool()
	depleted := p.ApplyDanger(0.05)
	if depleted {
		t.Fatal("low danger level should not deplete a full pool")
	}
	if p.Holdings[Energy] != ResourceDefaults[Energy].Initial-0.25 {
		t.Fatalf("energy = %v", p.Holdings[Energy])
	}
}

func TestHalfSplitsEvenlyAndMutatesParent(t *testing.T) {
	p := NewDefaultPool()
	energyBefore := p.Holdings[Energy]

	child := p.Half()

	if child.Holdings[Energy] != energyBefore/2 {
		t.Fatalf("child energy = %v, want %v", child.Holdings[Energy], energyBefore/2)
	}
	if p.Holdings[Energy] != energyBefore/2 {
		t.Fatalf("parent energy after split = %v, want %v", p.Holdings[Energy], energyBefore/2)
	}
	if child.Caps[Energy] != ResourceDefaults[Energy].Cap {
		t.Fatalf("child cap = %v, want %v", child.Caps[Energy], ResourceDefaults[Energy].Cap)
	}
}

func TestTotalCostScalesEveryKind(t *testing.T) {
	base := ActionCosts[ActionMove]
	scaled := TotalCost(base, 2.5)
	if scaled[Energy] != base[Energy]*2.5 {
		t.Fatalf("scaled energy = %v, want %v", scaled[Energy], base[Energy]*2.5)
	}
	if base[Energy] != ActionCosts[ActionMove][Energy] {
		t.Fatal("TotalCost must not mutate the input map")
	}
}

func TestClampBounds(t *testing.T) {
	p := NewDefaultPool()
	p.Holdings[Memory] = -10
	p.Holdings[Compute] = ResourceDefaults[Compute].Cap + 50
	p.Clamp()
	if p.Holdings[Memory] != 0 {
		t.Fatalf("memory = %v, want 0", p.Holdings[Memory])
	}
	if p.Holdings[Compute] != ResourceDefaults[Compute].Cap {
		t.Fatalf("compute = %v, want cap %v", p.Holdings[Compute], ResourceDefaults[Compute].Cap)
	}
}
