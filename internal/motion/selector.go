// Package motion selects tap-triggered motions from weighted groups.
package motion

import (
	"math/rand"
	"sort"
)

// WeightMap maps motion names to non-negative selection weights.
type WeightMap map[string]float64

// TapMap maps hit-area names to the weighted motion group played when
// that area is tapped.
type TapMap map[string]WeightMap

// Priority controls how a motion interacts with one already playing.
type Priority int

const (
	PriorityNone   Priority = 0
	PriorityIdle   Priority = 1
	PriorityNormal Priority = 2
	// PriorityForced interrupts any in-progress motion immediately.
	PriorityForced Priority = 3
)

// Selector picks motions. The zero value uses the shared math/rand source;
// tests inject a deterministic rand.
type Selector struct {
	rng *rand.Rand
}

// NewSelector returns a Selector drawing from the given source.
// A nil rng falls back to the package-level source.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

func (s *Selector) float64() float64 {
	if s != nil && s.rng != nil {
		return s.rng.Float64()
	}
	return rand.Float64()
}

// sortedKeys gives the deterministic iteration order used for both
// selection and merge computation (Go maps are unordered).
func sortedKeys(group WeightMap) []string {
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PickWeighted draws one motion from the group with probability
// proportional to its weight. Returns ("", false) for an empty group or a
// total weight of zero.
func (s *Selector) PickWeighted(group WeightMap) (string, bool) {
	var total float64
	for _, w := range group {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return "", false
	}

	remainder := s.float64() * total
	keys := sortedKeys(group)
	for _, name := range keys {
		w := group[name]
		if w <= 0 {
			continue
		}
		remainder -= w
		if remainder <= 0 {
			return name, true
		}
	}
	// Floating-point residue: fall back to the last positive entry.
	for i := len(keys) - 1; i >= 0; i-- {
		if group[keys[i]] > 0 {
			return keys[i], true
		}
	}
	return "", false
}

// ResolveTapMotion maps a hit-test result to a single motion. The first
// hit area with a configured group decides, in the order the hit test
// produced them; if that group draws nothing (all weights zero) the tap
// yields no motion. The merged fallback group only covers taps outside
// any configured area.
func (s *Selector) ResolveTapMotion(tapMotions TapMap, hitAreas []string) (string, bool) {
	for _, area := range hitAreas {
		group, ok := tapMotions[area]
		if !ok || len(group) == 0 {
			continue
		}
		return s.PickWeighted(group)
	}
	if len(tapMotions) == 0 {
		return "", false
	}
	return s.PickWeighted(MergeGroups(tapMotions))
}

// MergeGroups averages each motion's weight across every group. A group
// that lacks the motion still counts in the denominator, so a motion in
// one group of three carries a third of its configured weight.
func MergeGroups(tapMotions TapMap) WeightMap {
	if len(tapMotions) == 0 {
		return WeightMap{}
	}
	merged := make(WeightMap)
	groups := float64(len(tapMotions))
	for _, group := range tapMotions {
		for name, w := range group {
			merged[name] += w
		}
	}
	for name := range merged {
		merged[name] /= groups
	}
	return merged
}
