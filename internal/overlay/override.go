package overlay

// Override tracks predicted scalar values keyed by entity id, typically
// an in-flight message edit.
//
// An entry is confirmed by value equality: it is pruned once the
// authoritative value at that key equals the prediction. Key absence
// does not prune, only equality does, so an override on a row that a
// snapshot has not yet delivered survives until the value lands.
type Override[K, V comparable] struct {
	values map[K]V
}

// NewOverride creates an empty override overlay.
func NewOverride[K, V comparable]() *Override[K, V] {
	return &Override[K, V]{values: make(map[K]V)}
}

// Set records a predicted value for k, replacing any earlier prediction.
func (o *Override[K, V]) Set(k K, v V) {
	o.values[k] = v
}

// Get returns the predicted value for k, if one is pending.
func (o *Override[K, V]) Get(k K) (V, bool) {
	v, ok := o.values[k]
	return v, ok
}

// Reconcile prunes entries whose authoritative value now equals the
// prediction.
func (o *Override[K, V]) Reconcile(lookup func(K) (V, bool)) {
	for k, predicted := range o.values {
		if actual, ok := lookup(k); ok && actual == predicted {
			delete(o.values, k)
		}
	}
}

// PendingCount returns the number of unconfirmed overrides.
func (o *Override[K, V]) PendingCount() int {
	return len(o.values)
}
