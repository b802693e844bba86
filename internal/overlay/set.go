// Package overlay implements the client-side optimistic reconciliation
// primitives. Each primitive records predicted effects of submitted
// transactions and prunes them against authoritative snapshots, so the
// merged view stays consistent without any success/failure callback from
// the engine.
//
// None of the types are safe for concurrent use. The owning session
// serializes all access, matching the single-threaded event model the
// primitives assume.
package overlay

// Set tracks optimistic membership toggles over an authoritative key set.
//
// A toggle moves the key into the pending-adds or pending-removes set
// depending on its effective membership at toggle time. Reconciliation
// drops an add once the base contains the key and a remove once the base
// no longer does, so the overlay self-heals from snapshots alone.
type Set[K comparable] struct {
	adds    map[K]struct{}
	removes map[K]struct{}
}

// NewSet creates an empty set overlay.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{
		adds:    make(map[K]struct{}),
		removes: make(map[K]struct{}),
	}
}

// Has reports effective membership: pending removes win over pending
// adds, pending adds win over the base.
func (s *Set[K]) Has(k K, base func(K) bool) bool {
	if _, ok := s.removes[k]; ok {
		return false
	}
	if _, ok := s.adds[k]; ok {
		return true
	}
	return base(k)
}

// Toggle flips the effective membership of k.
//
// A pending entry in the opposite direction is cancelled rather than
// stacked, so toggling twice restores the pre-toggle view.
func (s *Set[K]) Toggle(k K, base func(K) bool) {
	if s.Has(k, base) {
		delete(s.adds, k)
		if base(k) {
			s.removes[k] = struct{}{}
		}
		return
	}
	delete(s.removes, k)
	if !base(k) {
		s.adds[k] = struct{}{}
	}
}

// Reconcile prunes confirmed predictions against the latest base set.
func (s *Set[K]) Reconcile(base func(K) bool) {
	for k := range s.adds {
		if base(k) {
			delete(s.adds, k)
		}
	}
	for k := range s.removes {
		if !base(k) {
			delete(s.removes, k)
		}
	}
}

// PendingAdds returns the keys with unconfirmed additions, in no
// particular order. The merged view uses this to surface predicted
// memberships that have no authoritative row yet.
func (s *Set[K]) PendingAdds() []K {
	out := make([]K, 0, len(s.adds))
	for k := range s.adds {
		out = append(out, k)
	}
	return out
}

// PendingCount returns the number of unconfirmed toggles.
func (s *Set[K]) PendingCount() int {
	return len(s.adds) + len(s.removes)
}
