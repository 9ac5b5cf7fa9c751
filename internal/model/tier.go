package model

import "fmt"

// Tier classifies a job offer. It is a closed enum with a total priority order:
//
//	TIER_1 > DREAM > TIER_2 > TIER_3
//
// A placed student's highest tier only ever moves up this order.
type Tier string

const (
	TierNone  Tier = ""
	TierOne   Tier = "TIER_1"
	TierDream Tier = "DREAM"
	TierTwo   Tier = "TIER_2"
	TierThree Tier = "TIER_3"
)

// tierRank is the priority index of each tier; lower is better.
var tierRank = map[Tier]int{
	TierOne:   0,
	TierDream: 1,
	TierTwo:   2,
	TierThree: 3,
}

// unrankedPriority sits below every real tier, so any tier beats "none".
const unrankedPriority = 4

// ParseTier converts a raw string to a Tier. The empty string parses to TierNone.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if t == TierNone {
		return TierNone, nil
	}
	if _, ok := tierRank[t]; !ok {
		return TierNone, fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Priority returns the rank of t, 0 being the highest priority.
func (t Tier) Priority() int {
	if p, ok := tierRank[t]; ok {
		return p
	}
	return unrankedPriority
}

// Outranks reports whether t has strictly higher priority than other.
func (t Tier) Outranks(other Tier) bool {
	return t.Priority() < other.Priority()
}

// Valid reports whether t is one of the known tiers (TierNone excluded).
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// MergeTier returns the tier a student should hold after being selected into
// a job of tier incoming. It never downgrades.
func MergeTier(current, incoming Tier) Tier {
	if current == TierNone || incoming.Outranks(current) {
		return incoming
	}
	return current
}
