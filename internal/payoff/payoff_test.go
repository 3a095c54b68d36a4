package payoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_Static_Monotone(t *testing.T) {
	assert := assert.New(t)

	p := DefaultParams(4)
	s, err := Generate(1, nil, p)
	assert.NoError(err)
	assert.Len(s.Cooperate, 4)
	assert.Len(s.Defect, 4)

	for k := 1; k < 4; k++ {
		assert.Greater(s.Cooperate[k], s.Cooperate[k-1], "cooperate payoff should rise with cooperators")
		assert.Greater(s.Defect[k], s.Defect[k-1], "defect payoff should rise with cooperators")
	}
	for k := 0; k < 4; k++ {
		assert.Greater(s.Defect[k], s.Cooperate[k], "defection should dominate pointwise")
	}
}

func TestGenerate_Static_WorkedExample(t *testing.T) {
	// 3 seats: A cooperates (0 others cooperate from A's view), B defects
	// (1 other cooperates from B's view). B's payoff must exceed A's.
	assert := assert.New(t)

	p := DefaultParams(3)
	s, err := Generate(1, nil, p)
	assert.NoError(err)

	payoffA := s.Cooperate[0]
	payoffB := s.Defect[1]
	assert.Greater(payoffB, payoffA)
	assert.Equal(p.OptOutPayoff, s.OptOut)
}

func TestGenerate_TooFewSeats(t *testing.T) {
	p := DefaultParams(1)
	_, err := Generate(1, nil, p)
	assert.Error(t, err)
}

func TestGenerate_UnknownStrategy(t *testing.T) {
	p := DefaultParams(3)
	p.Strategy = "quantum"
	_, err := Generate(1, nil, p)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestGenerate_BoundedNoise_WithinBoundsAndDeterministic(t *testing.T) {
	assert := assert.New(t)

	p := DefaultParams(4)
	p.Strategy = StrategyBoundedNoise
	p.NoisePct = 0.1
	p.Seed = 42

	base, err := Generate(3, nil, DefaultParams(4))
	assert.NoError(err)

	s1, err := Generate(3, nil, p)
	assert.NoError(err)
	s2, err := Generate(3, nil, p)
	assert.NoError(err)

	// Same seed and round, same schedule.
	assert.Equal(s1, s2)

	for k := range s1.Cooperate {
		assert.InDelta(base.Cooperate[k], s1.Cooperate[k], base.Cooperate[k]*p.NoisePct+1e-9)
		assert.InDelta(base.Defect[k], s1.Defect[k], base.Defect[k]*p.NoisePct+1e-9)
	}

	// Different rounds perturb differently.
	s3, err := Generate(4, nil, p)
	assert.NoError(err)
	assert.NotEqual(s1.Cooperate, s3.Cooperate)
}

func TestGenerate_Adaptive(t *testing.T) {
	assert := assert.New(t)

	p := DefaultParams(4)
	p.Strategy = StrategyAdaptive
	p.AdaptThreshold = 0.5
	p.AdaptPenalty = 2

	base, _ := Generate(2, nil, DefaultParams(4))

	// Below threshold: unchanged.
	calm := []RoundSummary{{Round: 1, Cooperators: 1, Participants: 4}}
	s, err := Generate(2, calm, p)
	assert.NoError(err)
	assert.Equal(base.Cooperate, s.Cooperate)

	// Above threshold: cooperation penalized, defection untouched.
	hot := []RoundSummary{{Round: 1, Cooperators: 3, Participants: 4}}
	s, err = Generate(2, hot, p)
	assert.NoError(err)
	for k := range s.Cooperate {
		assert.Equal(base.Cooperate[k]-2, s.Cooperate[k])
		assert.Equal(base.Defect[k], s.Defect[k])
	}

	// No history for the previous round: unchanged.
	s, err = Generate(2, nil, p)
	assert.NoError(err)
	assert.Equal(base.Cooperate, s.Cooperate)
}

func TestGenerate_Escalating(t *testing.T) {
	assert := assert.New(t)

	p := DefaultParams(3)
	p.Strategy = StrategyEscalating
	p.EscalationFactor = 0.5

	round1, err := Generate(1, nil, p)
	assert.NoError(err)
	round3, err := Generate(3, nil, p)
	assert.NoError(err)

	// Round 1 matches static; round 3 is scaled by 1 + 0.5*2 = 2.
	static, _ := Generate(1, nil, DefaultParams(3))
	assert.Equal(static.Cooperate, round1.Cooperate)
	for k := range round3.Cooperate {
		assert.InDelta(static.Cooperate[k]*2, round3.Cooperate[k], 1e-9)
		assert.InDelta(static.Defect[k]*2, round3.Defect[k], 1e-9)
	}
	assert.InDelta(static.OptOut*2, round3.OptOut, 1e-9)
}

func TestValidate_FlagsOutOfBounds(t *testing.T) {
	assert := assert.New(t)

	p := DefaultParams(3)
	s, _ := Generate(1, nil, p)
	assert.Empty(Validate(s, p))

	// Tighten the ceiling so the top defect entries fall out of bounds.
	p.MaxPayoff = 5
	violations := Validate(s, p)
	assert.NotEmpty(violations)
	for _, v := range violations {
		assert.Greater(v.Value, 5.0)
	}

	// Values are reported, not clamped.
	assert.Equal(9.0, s.Defect[2])
}

func TestCooperationRate(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(0.0, RoundSummary{}.CooperationRate())
	assert.Equal(0.75, RoundSummary{Cooperators: 3, Participants: 4}.CooperationRate())
}
