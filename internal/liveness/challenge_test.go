package liveness

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallenges(t *testing.T) {
	tests := []struct {
		input   string
		want    []Challenge
		wantErr error
	}{
		{"blink", []Challenge{ChallengeBlink}, nil},
		{"blink,turn_right", []Challenge{ChallengeBlink, ChallengeTurnRight}, nil},
		{" SMILE , turn-left ", []Challenge{ChallengeSmile, ChallengeTurnLeft}, nil},
		{"blink,,smile", []Challenge{ChallengeBlink, ChallengeSmile}, nil},
		{"", nil, ErrEmptyPlan},
		{"nod", nil, ErrUnknownChallenge},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChallenges(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatPlanRoundTrips(t *testing.T) {
	plan := []Challenge{ChallengeTurnLeft, ChallengeBlink}
	got, err := ParseChallenges(FormatPlan(plan))
	require.NoError(t, err)
	assert.Equal(t, plan, got)
}

func TestValidatePlan(t *testing.T) {
	require.ErrorIs(t, ValidatePlan(nil), ErrEmptyPlan)
	require.ErrorIs(t, ValidatePlan([]Challenge{ChallengeBlink, "WINK"}), ErrUnknownChallenge)
	require.NoError(t, ValidatePlan(AllChallenges))
}

func TestNewPlan(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for n := 1; n <= len(AllChallenges); n++ {
		plan, err := NewPlan(r, n)
		require.NoError(t, err)
		require.Len(t, plan, n)

		seen := map[Challenge]bool{}
		for _, c := range plan {
			assert.True(t, c.Valid())
			assert.False(t, seen[c], "duplicate challenge %s", c)
			seen[c] = true
		}
	}

	_, err := NewPlan(nil, 0)
	require.Error(t, err)
	_, err = NewPlan(nil, len(AllChallenges)+1)
	require.Error(t, err)
}

func TestNewPlanIsDeterministicForSeed(t *testing.T) {
	a, err := NewPlan(rand.New(rand.NewPCG(7, 7)), 3)
	require.NoError(t, err)
	b, err := NewPlan(rand.New(rand.NewPCG(7, 7)), 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
