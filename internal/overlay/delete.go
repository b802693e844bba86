package overlay

// Deletion tracks keys the client has optimistically deleted.
//
// IsDeleted suppresses the row from the merged view while the deletion
// is in flight; the key is pruned once the authoritative snapshot no
// longer contains it.
type Deletion[K comparable] struct {
	keys map[K]struct{}
}

// NewDeletion creates an empty deletion overlay.
func NewDeletion[K comparable]() *Deletion[K] {
	return &Deletion[K]{keys: make(map[K]struct{})}
}

// Mark records a predicted deletion of k.
func (d *Deletion[K]) Mark(k K) {
	d.keys[k] = struct{}{}
}

// IsDeleted reports whether k is pending deletion.
func (d *Deletion[K]) IsDeleted(k K) bool {
	_, ok := d.keys[k]
	return ok
}

// Reconcile prunes keys the authoritative snapshot no longer contains.
func (d *Deletion[K]) Reconcile(present func(K) bool) {
	for k := range d.keys {
		if !present(k) {
			delete(d.keys, k)
		}
	}
}

// PendingCount returns the number of unconfirmed deletions.
func (d *Deletion[K]) PendingCount() int {
	return len(d.keys)
}
