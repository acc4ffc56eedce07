package actorx

import (
	"fmt"
	"sort"
	"strings"
)

// MatchMode selects the name equality policy for MapBones.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchCaseInsensitive
)

// BoneCollision reports a source bone that matched a target bone
// already claimed by an earlier source bone.
type BoneCollision struct {
	SourceIndex int
	TargetIndex int
	// FirstSourceIndex is the source bone holding the claim.
	FirstSourceIndex int
}

// BoneMapping is the result of matching a source bone list against a
// target skeleton's bone names.
type BoneMapping struct {
	// TargetIndexes has one entry per source bone, -1 when unmapped.
	TargetIndexes []int
	Collisions    []BoneCollision
	// Unmapped lists source bone names absent from the target, sorted.
	Unmapped []string

	sourceNames []string
	targetNames []string
}

// MapBones matches each source bone against the target names in order.
// The first match under the selected policy wins and a target claimed
// by an earlier source bone stays claimed. The result is deterministic
// for fixed inputs.
func MapBones(sourceBones []Bone, targetNames []string, mode MatchMode) *BoneMapping {
	m := &BoneMapping{
		TargetIndexes: make([]int, len(sourceBones)),
		sourceNames:   make([]string, len(sourceBones)),
		targetNames:   targetNames,
	}
	claimed := map[int]int{}
	missing := map[string]bool{}
	for i, bone := range sourceBones {
		m.sourceNames[i] = bone.Name
		m.TargetIndexes[i] = -1
		target := findBoneName(targetNames, bone.Name, mode)
		if target < 0 {
			missing[bone.Name] = true
			continue
		}
		if first, ok := claimed[target]; ok {
			m.Collisions = append(m.Collisions, BoneCollision{SourceIndex: i, TargetIndex: target, FirstSourceIndex: first})
			continue
		}
		claimed[target] = i
		m.TargetIndexes[i] = target
	}
	for name := range missing {
		m.Unmapped = append(m.Unmapped, name)
	}
	sort.Strings(m.Unmapped)
	return m
}

func findBoneName(names []string, name string, mode MatchMode) int {
	for i, n := range names {
		if mode == MatchCaseInsensitive {
			if strings.EqualFold(n, name) {
				return i
			}
		} else if n == name {
			return i
		}
	}
	return -1
}

// Warnings renders the collisions and unmapped bones as messages for
// the caller to report. An empty slice means a clean mapping.
func (m *BoneMapping) Warnings() []string {
	var warnings []string
	for _, c := range m.Collisions {
		warnings = append(warnings, fmt.Sprintf(
			"bone %d (%s) could not be mapped to target bone %d (%s): already mapped to bone %d (%s)",
			c.SourceIndex, m.sourceNames[c.SourceIndex],
			c.TargetIndex, m.targetNames[c.TargetIndex],
			c.FirstSourceIndex, m.sourceNames[c.FirstSourceIndex]))
	}
	if len(m.Unmapped) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"the target skeleton is missing %d bones: %s", len(m.Unmapped), strings.Join(m.Unmapped, ", ")))
	}
	return warnings
}
