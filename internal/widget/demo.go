// ABOUTME: Demo widget configuration with a hard usage limit
// ABOUTME: A demo becomes read-only once its used count reaches the limit

package widget

import "time"

// Demo is a shareable widget preview with a usage quota.
type Demo struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId,omitempty"`
	Config     Config    `json:"config"`
	UsageLimit int       `json:"usageLimit"`
	UsedCount  int       `json:"usedCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// LimitReached reports whether no further turns are allowed.
// A zero or negative limit means unlimited.
func (d Demo) LimitReached() bool {
	return d.UsageLimit > 0 && d.UsedCount >= d.UsageLimit
}

// Remaining returns how many answered turns are left, or -1 when unlimited.
func (d Demo) Remaining() int {
	if d.UsageLimit <= 0 {
		return -1
	}
	if d.UsedCount >= d.UsageLimit {
		return 0
	}
	return d.UsageLimit - d.UsedCount
}
