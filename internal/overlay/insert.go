package overlay

import "time"

// Insert tracks locally predicted insertions of type P awaiting their
// authoritative counterparts of type S.
//
// There is no correlation id: a caller-supplied predicate decides whether
// an authoritative row accounts for a prediction. Reconciliation runs a
// greedy one-to-one match per snapshot, so a single authoritative row
// never confirms two predictions and the merged view never shows a row
// twice. O(pending x rows) per snapshot, fine at chat scale.
type Insert[P, S any] struct {
	matches func(P, S) bool
	items   []insertion[P]
}

type insertion[P any] struct {
	item P
	at   time.Time
}

// NewInsert creates an insertion overlay with the given match predicate.
func NewInsert[P, S any](matches func(P, S) bool) *Insert[P, S] {
	return &Insert[P, S]{matches: matches}
}

// Add records a prediction. The timestamp feeds Expire, not matching.
func (o *Insert[P, S]) Add(item P, now time.Time) {
	o.items = append(o.items, insertion[P]{item: item, at: now})
}

// Reconcile drops every prediction matched by an authoritative row, each
// row confirming at most one prediction. A snapshot may confirm zero,
// one, or many predictions.
func (o *Insert[P, S]) Reconcile(rows []S) {
	if len(o.items) == 0 {
		return
	}

	claimed := make([]bool, len(rows))
	kept := o.items[:0]
	for _, p := range o.items {
		confirmed := false
		for i, row := range rows {
			if claimed[i] {
				continue
			}
			if o.matches(p.item, row) {
				claimed[i] = true
				confirmed = true
				break
			}
		}
		if !confirmed {
			kept = append(kept, p)
		}
	}
	o.items = kept
}

// Expire drops predictions older than maxAge. This is the escape hatch
// for predictions stranded by a silently rejected transaction, which no
// snapshot will ever confirm. maxAge <= 0 disables expiry.
func (o *Insert[P, S]) Expire(now time.Time, maxAge time.Duration) {
	if maxAge <= 0 || len(o.items) == 0 {
		return
	}
	kept := o.items[:0]
	for _, p := range o.items {
		if now.Sub(p.at) < maxAge {
			kept = append(kept, p)
		}
	}
	o.items = kept
}

// Pending returns unconfirmed predictions in insertion order.
func (o *Insert[P, S]) Pending() []P {
	out := make([]P, len(o.items))
	for i, p := range o.items {
		out[i] = p.item
	}
	return out
}

// PendingCount returns the number of unconfirmed predictions.
func (o *Insert[P, S]) PendingCount() int {
	return len(o.items)
}
