package binary

import "strings"

// Ability is a single capability tag.
type Ability uint8

const (
	AbilityCopy  Ability = 0x1
	AbilityDrop  Ability = 0x2
	AbilityStore Ability = 0x4
	AbilityKey   Ability = 0x8
)

// AbilitySet is a bitset of abilities.
type AbilitySet uint8

const (
	EmptyAbilities AbilitySet = 0
	AllAbilities   AbilitySet = AbilitySet(AbilityCopy | AbilityDrop | AbilityStore | AbilityKey)
)

// NewAbilitySet builds a set from individual abilities.
func NewAbilitySet(abilities ...Ability) AbilitySet {
	var s AbilitySet
	for _, a := range abilities {
		s |= AbilitySet(a)
	}
	return s
}

// Has reports whether a is in the set.
func (s AbilitySet) Has(a Ability) bool {
	return s&AbilitySet(a) != 0
}

// IsSubsetOf reports s ⊆ other.
func (s AbilitySet) IsSubsetOf(other AbilitySet) bool {
	return s&other == s
}

func (s AbilitySet) String() string {
	if s == EmptyAbilities {
		return "{}"
	}
	parts := make([]string, 0, 4)
	if s.Has(AbilityCopy) {
		parts = append(parts, "copy")
	}
	if s.Has(AbilityDrop) {
		parts = append(parts, "drop")
	}
	if s.Has(AbilityStore) {
		parts = append(parts, "store")
	}
	if s.Has(AbilityKey) {
		parts = append(parts, "key")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
