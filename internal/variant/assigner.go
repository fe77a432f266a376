// Package variant assigns A/B content variants to recipients. Assignment is
// a stable hash, not a random draw, so re-running enrollment for the same
// campaign gives every subscriber the same variant again and per-variant
// counts stay consistent.
package variant

import (
	"fmt"
	"hash/fnv"

	"github.com/sendhawk/bulkmail-backend/internal/model"
)

const (
	VariantA = "A"
	VariantB = "B"
)

// Assign returns "A" or "B" for the subscriber within the campaign.
// Campaigns without A/B enabled always get "A". SplitRatio is the percentage
// routed to A, clamped to [0,100].
func Assign(c *model.Campaign, subscriberID int) string {
	if c == nil || !c.ABEnabled {
		return VariantA
	}

	ratio := c.SplitRatio
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 100 {
		ratio = 100
	}

	if bucket(c.ID, subscriberID) < ratio {
		return VariantA
	}
	return VariantB
}

// bucket maps (campaign, subscriber) onto [0,100).
func bucket(campaignID, subscriberID int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%d", campaignID, subscriberID)
	return int(h.Sum32() % 100)
}
