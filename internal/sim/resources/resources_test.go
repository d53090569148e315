package resources

import "testing"

func TestHarvestNeverNegative(t *testing.T) {
	r := NewRegistry(1)
	r.AddNode(Node{ID: "R1", Type: TypeBerries, Quantity: 5, Harvestable: true, Quality: 80})

	res := r.Harvest("R1", 8)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if res.Amount != 5 {
		t.Fatalf("expected clamped yield 5, got %v", res.Amount)
	}
	n, _ := r.Node("R1")
	if n.Quantity != 0 {
		t.Fatalf("expected empty node, got %v", n.Quantity)
	}

	res = r.Harvest("R1", 1)
	if res.Success {
		t.Fatalf("expected failure on depleted node")
	}
}

func TestHarvestMissingAndUnharvestable(t *testing.T) {
	r := NewRegistry(1)
	r.AddNode(Node{ID: "R1", Type: TypeShelter, Quantity: 1, Harvestable: false})

	if res := r.Harvest("nope", 1); res.Success {
		t.Fatalf("expected failure for missing node")
	}
	if res := r.Harvest("R1", 1); res.Success {
		t.Fatalf("expected failure for unharvestable node")
	}
	n, _ := r.Node("R1")
	if n.Quantity != 1 {
		t.Fatalf("failed harvest must not mutate quantity, got %v", n.Quantity)
	}
}

func TestRegenerateBounded(t *testing.T) {
	r := NewRegistry(5)
	r.AddNode(Node{ID: "R1", Type: TypeBerries, Quantity: 10, Harvestable: true, Regenerates: true})
	r.AddNode(Node{ID: "R2", Type: TypeWood, Quantity: 3, Harvestable: true, Regenerates: false})

	r.RegenerateTick()
	n1, _ := r.Node("R1")
	if n1.Quantity != 12 {
		t.Fatalf("expected regen up to ceiling 12, got %v", n1.Quantity)
	}
	n2, _ := r.Node("R2")
	if n2.Quantity != 3 {
		t.Fatalf("non-regenerating node must not change, got %v", n2.Quantity)
	}
}

func TestQueryNearby(t *testing.T) {
	r := NewRegistry(1)
	r.AddNode(Node{ID: "near", Type: TypeWater, X: 3, Z: 0, Quantity: 10, Harvestable: true})
	r.AddNode(Node{ID: "far", Type: TypeWater, X: 50, Z: 0, Quantity: 10, Harvestable: true})
	r.AddNode(Node{ID: "empty", Type: TypeWater, X: 1, Z: 0, Quantity: 0, Harvestable: true})
	// Y offset must not affect planar reach.
	r.AddNode(Node{ID: "tall", Type: TypeWood, X: 0, Z: 4, Y: 90, Quantity: 2, Harvestable: true})

	got := r.QueryNearby(0, 0, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(got))
	}
	if got[0].ID != "near" || got[1].ID != "tall" {
		t.Fatalf("expected nearest-first [near tall], got [%s %s]", got[0].ID, got[1].ID)
	}
}
