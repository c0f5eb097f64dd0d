package liveness

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// Challenge is one gesture the subject is asked to perform.
type Challenge string

const (
	ChallengeBlink     Challenge = "BLINK"
	ChallengeSmile     Challenge = "SMILE"
	ChallengeTurnLeft  Challenge = "TURN_LEFT"
	ChallengeTurnRight Challenge = "TURN_RIGHT"
)

// AllChallenges lists every challenge in a stable order.
var AllChallenges = []Challenge{ChallengeBlink, ChallengeSmile, ChallengeTurnLeft, ChallengeTurnRight}

var (
	ErrEmptyPlan        = errors.New("challenge plan is empty")
	ErrUnknownChallenge = errors.New("unknown challenge")
)

// Valid reports whether c is one of the known challenges.
func (c Challenge) Valid() bool {
	switch c {
	case ChallengeBlink, ChallengeSmile, ChallengeTurnLeft, ChallengeTurnRight:
		return true
	}
	return false
}

// ParseChallenge accepts names like "blink", "turn-left" or "TURN_RIGHT".
func ParseChallenge(s string) (Challenge, error) {
	c := Challenge(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChallenge, s)
	}
	return c, nil
}

// ParseChallenges parses a comma-separated plan such as "blink,turn_right".
func ParseChallenges(s string) ([]Challenge, error) {
	var plan []Challenge
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseChallenge(part)
		if err != nil {
			return nil, err
		}
		plan = append(plan, c)
	}
	if len(plan) == 0 {
		return nil, ErrEmptyPlan
	}
	return plan, nil
}

// ValidatePlan checks a plan before a session is built around it.
func ValidatePlan(plan []Challenge) error {
	if len(plan) == 0 {
		return ErrEmptyPlan
	}
	for i, c := range plan {
		if !c.Valid() {
			return fmt.Errorf("%w at position %d: %q", ErrUnknownChallenge, i, c)
		}
	}
	return nil
}

// NewPlan picks n distinct challenges in random order.
// A nil r uses the global source.
func NewPlan(r *rand.Rand, n int) ([]Challenge, error) {
	if n < 1 || n > len(AllChallenges) {
		return nil, fmt.Errorf("plan length must be between 1 and %d, got %d", len(AllChallenges), n)
	}
	var perm []int
	if r == nil {
		perm = rand.Perm(len(AllChallenges))
	} else {
		perm = r.Perm(len(AllChallenges))
	}
	plan := make([]Challenge, n)
	for i := range plan {
		plan[i] = AllChallenges[perm[i]]
	}
	return plan, nil
}

// FormatPlan renders a plan the way ParseChallenges reads it.
func FormatPlan(plan []Challenge) string {
	parts := make([]string, len(plan))
	for i, c := range plan {
		parts[i] = strings.ToLower(string(c))
	}
	return strings.Join(parts, ",")
}
