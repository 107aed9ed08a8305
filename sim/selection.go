package sim

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// SelectionPolicy picks one index out of n candidates.
type SelectionPolicy interface {
	// Select returns an index in [0, n). n <= 0 yields ErrInvalidCandidateSet.
	Select(n int) (int, error)
	Name() string
}

// Policy names accepted by NewSelectionPolicy.
const (
	PolicyRandom     = "random"
	PolicyRoundRobin = "round-robin"
)

// validSelectionPolicies maps accepted policy names. Empty means random.
var validSelectionPolicies = map[string]bool{
	"":               true,
	PolicyRandom:     true,
	PolicyRoundRobin: true,
}

// IsValidSelectionPolicy returns true if name is a recognized policy.
func IsValidSelectionPolicy(name string) bool {
	return validSelectionPolicies[name]
}

// ValidSelectionPolicyNames returns the accepted names, excluding the empty default.
func ValidSelectionPolicyNames() []string {
	return []string{PolicyRandom, PolicyRoundRobin}
}

// UniformRandom picks each of the n candidates with probability 1/n.
type UniformRandom struct {
	rng *rand.Rand
}

// NewUniformRandom creates a random policy drawing from rng.
// Panics if rng is nil.
func NewUniformRandom(rng *rand.Rand) *UniformRandom {
	if rng == nil {
		panic("NewUniformRandom: rng is nil")
	}
	return &UniformRandom{rng: rng}
}

// Select implements SelectionPolicy.
func (u *UniformRandom) Select(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n=%d", ErrInvalidCandidateSet, n)
	}
	return u.rng.Intn(n), nil
}

// Name implements SelectionPolicy.
func (u *UniformRandom) Name() string { return PolicyRandom }

// RoundRobin cycles through candidates in index order. The cursor is
// renormalized against the n of each call, so a change in candidate count
// never yields an out-of-range index.
//
// Thread-safety: NOT thread-safe.
type RoundRobin struct {
	cursor int
}

// NewRoundRobin creates a round-robin policy starting at cursor.
// Panics if cursor is negative.
func NewRoundRobin(cursor int) *RoundRobin {
	if cursor < 0 {
		panic(fmt.Sprintf("NewRoundRobin: cursor must be >= 0, got %d", cursor))
	}
	return &RoundRobin{cursor: cursor}
}

// Select implements SelectionPolicy.
func (rr *RoundRobin) Select(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n=%d", ErrInvalidCandidateSet, n)
	}
	index := rr.cursor % n
	rr.cursor = (rr.cursor + 1) % n
	return index, nil
}

// Name implements SelectionPolicy.
func (rr *RoundRobin) Name() string { return PolicyRoundRobin }

// Cursor returns the index the next selection starts from, before renormalization.
func (rr *RoundRobin) Cursor() int { return rr.cursor }

// NewSelectionPolicy creates a policy by name.
// Valid names: "" or "random", "round-robin".
// The cursor is used by round-robin only; rng by random only.
// Panics on unrecognized names; validate upstream with IsValidSelectionPolicy.
func NewSelectionPolicy(name string, cursor int, rng *rand.Rand) SelectionPolicy {
	if !IsValidSelectionPolicy(name) {
		logrus.Panicf("unknown selection policy %q", name)
	}
	switch name {
	case "", PolicyRandom:
		return NewUniformRandom(rng)
	case PolicyRoundRobin:
		return NewRoundRobin(cursor)
	default:
		panic(fmt.Sprintf("unhandled selection policy %q", name))
	}
}
