package base

import (
	"time"

	"github.com/COSAE-FR/riarp/address"
	lru "github.com/hashicorp/golang-lru"
)

type NeighborState string

const (
	NeighborResolved NeighborState = "resolved"
	NeighborStatic   NeighborState = "static"
	NeighborFailed   NeighborState = "failed"
)

// Neighbor is the last known resolution outcome for an address.
type Neighbor struct {
	IP      address.IPv4
	MAC     address.MAC
	State   NeighborState
	Updated time.Time
}

// Neighbors keeps the most recent resolution outcomes, evicting the least
// recently updated once full. It is safe for concurrent use.
type Neighbors struct {
	cache *lru.Cache
}

func NewNeighbors(size int) (*Neighbors, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Neighbors{cache: cache}, nil
}

func (n *Neighbors) Add(neighbor Neighbor) {
	if neighbor.Updated.IsZero() {
		neighbor.Updated = time.Now()
	}
	n.cache.Add(neighbor.IP, neighbor)
}

func (n *Neighbors) Get(ip address.IPv4) (Neighbor, bool) {
	v, ok := n.cache.Peek(ip)
	if !ok {
		return Neighbor{}, false
	}
	return v.(Neighbor), true
}

// List returns the neighbors from least to most recently updated.
func (n *Neighbors) List() []Neighbor {
	keys := n.cache.Keys()
	out := make([]Neighbor, 0, len(keys))
	for _, k := range keys {
		if v, ok := n.cache.Peek(k); ok {
			out = append(out, v.(Neighbor))
		}
	}
	return out
}

func (n *Neighbors) Len() int {
	return n.cache.Len()
}
