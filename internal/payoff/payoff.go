package payoff

import (
	"errors"
	"fmt"
	"math/rand"
)

// Strategy selects how a round's schedule is derived.
type Strategy string

const (
	StrategyStatic       Strategy = "static"
	StrategyBoundedNoise Strategy = "bounded_noise"
	StrategyAdaptive     Strategy = "adaptive"
	StrategyEscalating   Strategy = "escalating"
)

var ErrUnknownStrategy = errors.New("unknown payoff strategy")

// Params configures schedule generation for one experiment. Immutable for a
// session's lifetime.
type Params struct {
	Strategy Strategy `json:"strategy"`
	Seats    int      `json:"seats"`

	// Static schedule shape.
	BasePayoff          float64 `json:"base_payoff"`
	CooperationBonus    float64 `json:"cooperation_bonus"`
	DefectionTemptation float64 `json:"defection_temptation"`
	OptOutPayoff        float64 `json:"opt_out_payoff"`

	// bounded_noise: symmetric multiplicative noise, e.g. 0.1 = ±10%.
	NoisePct float64 `json:"noise_pct,omitempty"`
	Seed     int64   `json:"seed,omitempty"`

	// adaptive: if the previous round's cooperation rate exceeds the
	// threshold, cooperate payoffs are shifted down by the penalty.
	AdaptThreshold float64 `json:"adapt_threshold,omitempty"`
	AdaptPenalty   float64 `json:"adapt_penalty,omitempty"`

	// escalating: static schedule scaled by 1 + factor*(round-1).
	EscalationFactor float64 `json:"escalation_factor,omitempty"`

	// Bounds for Validate. Violations are surfaced, never clamped.
	MinPayoff float64 `json:"min_payoff"`
	MaxPayoff float64 `json:"max_payoff"`
}

// Schedule maps (own action, count of other cooperators) to a payoff.
// Cooperate and Defect are indexed by the number of *other* participants who
// cooperated, so both have length Seats (indices 0..Seats-1). Opting out
// pays a fixed amount regardless of others' actions.
type Schedule struct {
	Round     int       `json:"round"`
	Cooperate []float64 `json:"cooperate"`
	Defect    []float64 `json:"defect"`
	OptOut    float64   `json:"opt_out"`
}

// RoundSummary is the slice of history the generator consumes: how many of
// the participants cooperated in a prior round.
type RoundSummary struct {
	Round        int `json:"round"`
	Cooperators  int `json:"cooperators"`
	Participants int `json:"participants"`
}

func (r RoundSummary) CooperationRate() float64 {
	if r.Participants == 0 {
		return 0
	}
	return float64(r.Cooperators) / float64(r.Participants)
}

// Generate is a pure function of the round number, prior-round history and
// strategy parameters. Deterministic for a given seed.
func Generate(round int, history []RoundSummary, p Params) (Schedule, error) {
	if p.Seats < 2 {
		return Schedule{}, fmt.Errorf("payoff schedule needs at least 2 seats, got %d", p.Seats)
	}

	s := static(round, p)

	switch p.Strategy {
	case StrategyStatic, "":
		// done

	case StrategyBoundedNoise:
		// Seed mixed with the round number so each round perturbs
		// differently but reproducibly.
		rng := rand.New(rand.NewSource(p.Seed + int64(round)))
		for i := range s.Cooperate {
			s.Cooperate[i] *= 1 + (rng.Float64()*2-1)*p.NoisePct
		}
		for i := range s.Defect {
			s.Defect[i] *= 1 + (rng.Float64()*2-1)*p.NoisePct
		}

	case StrategyAdaptive:
		if prev, ok := previousRound(round, history); ok && prev.CooperationRate() > p.AdaptThreshold {
			for i := range s.Cooperate {
				s.Cooperate[i] -= p.AdaptPenalty
			}
		}

	case StrategyEscalating:
		scale := 1 + p.EscalationFactor*float64(round-1)
		for i := range s.Cooperate {
			s.Cooperate[i] *= scale
		}
		for i := range s.Defect {
			s.Defect[i] *= scale
		}
		s.OptOut *= scale

	default:
		return Schedule{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, p.Strategy)
	}

	return s, nil
}

// static builds the baseline schedule: payoffs increase with the number of
// other cooperators, and defection dominates cooperation pointwise.
func static(round int, p Params) Schedule {
	n := p.Seats
	s := Schedule{
		Round:     round,
		Cooperate: make([]float64, n),
		Defect:    make([]float64, n),
		OptOut:    p.OptOutPayoff,
	}
	for k := 0; k < n; k++ {
		s.Cooperate[k] = p.BasePayoff + p.CooperationBonus*float64(k)
		s.Defect[k] = p.BasePayoff + p.DefectionTemptation + p.CooperationBonus*float64(k)
	}
	return s
}

func previousRound(round int, history []RoundSummary) (RoundSummary, bool) {
	for _, h := range history {
		if h.Round == round-1 {
			return h, true
		}
	}
	return RoundSummary{}, false
}

// Violation reports a schedule entry outside the configured bounds.
type Violation struct {
	Entry string  `json:"entry"`
	Value float64 `json:"value"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s=%g", v.Entry, v.Value)
}

// Validate returns every entry outside [MinPayoff, MaxPayoff]. Out-of-bounds
// values are surfaced for the caller to log, not corrected: silent clamping
// could mask a misconfigured strategy.
func Validate(s Schedule, p Params) []Violation {
	var out []Violation
	check := func(entry string, v float64) {
		if v < p.MinPayoff || v > p.MaxPayoff {
			out = append(out, Violation{Entry: entry, Value: v})
		}
	}
	for k, v := range s.Cooperate {
		check(fmt.Sprintf("cooperate[%d]", k), v)
	}
	for k, v := range s.Defect {
		check(fmt.Sprintf("defect[%d]", k), v)
	}
	check("opt_out", s.OptOut)
	return out
}

// DefaultParams is a sane starting configuration for n seats.
func DefaultParams(n int) Params {
	return Params{
		Strategy:            StrategyStatic,
		Seats:               n,
		BasePayoff:          1,
		CooperationBonus:    2,
		DefectionTemptation: 4,
		OptOutPayoff:        1.5,
		MinPayoff:           0,
		MaxPayoff:           100,
	}
}
