package domain

import "time"

// Hold represents a time-bounded reservation of qty units of a product.
// It transitions from fresh into exactly one of {Used, Released}; both
// flags are monotone-once-set and mutually exclusive.
type Hold struct {
	ID        int64
	ProductID int64
	Qty       int
	ExpiresAt time.Time
	Used      bool
	Released  bool
	CreatedAt time.Time
}

// Active reports whether the hold still counts as reserved: unused,
// unreleased, and not yet expired.
func (h Hold) Active(now time.Time) bool {
	return !h.Used && !h.Released && h.ExpiresAt.After(now)
}
