package base

import (
	"testing"
	"time"

	"github.com/COSAE-FR/riarp/address"
)

func TestNeighbors(t *testing.T) {
	if _, err := NewNeighbors(0); err == nil {
		t.Error("NewNeighbors(0) should fail")
	}

	n, err := NewNeighbors(2)
	if err != nil {
		t.Fatalf("NewNeighbors() unexpected error: %v", err)
	}
	a := address.IPv4{10, 0, 0, 1}
	b := address.IPv4{10, 0, 0, 2}
	c := address.IPv4{10, 0, 0, 3}

	n.Add(Neighbor{IP: a, MAC: address.MAC{1}, State: NeighborResolved})
	n.Add(Neighbor{IP: b, State: NeighborFailed})
	got, ok := n.Get(a)
	if !ok || got.MAC != (address.MAC{1}) || got.Updated.IsZero() {
		t.Errorf("Get(a) = %+v, %v", got, ok)
	}

	// reading a does not protect it from eviction
	n.Add(Neighbor{IP: c, State: NeighborStatic})
	if _, ok := n.Get(a); ok {
		t.Error("oldest neighbor not evicted")
	}
	if n.Len() != 2 {
		t.Errorf("Len() = %d, want 2", n.Len())
	}

	// updating b makes it the most recent
	stamp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	n.Add(Neighbor{IP: b, MAC: address.MAC{2}, State: NeighborResolved, Updated: stamp})
	list := n.List()
	if len(list) != 2 || list[0].IP != c || list[1].IP != b {
		t.Fatalf("List() = %+v, want c then b", list)
	}
	if !list[1].Updated.Equal(stamp) || list[1].State != NeighborResolved {
		t.Errorf("updated neighbor = %+v", list[1])
	}
}
