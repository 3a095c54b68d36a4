package session

import (
	"context"
	"fmt"
	"math/rand"

	"dilemma-server/internal/payoff"
)

// ProviderView is the context handed to an action provider: everything a
// seated participant could legitimately see, nothing more.
type ProviderView struct {
	SessionID     string
	Identity      string
	Round         int
	Phase         Phase
	Schedule      payoff.Schedule
	RefusalBudget int
	History       []RoundRecord
	Participants  []ParticipantView
}

// Outgoing is a chat message a provider wants delivered.
type Outgoing struct {
	To      string
	Content string
}

// ActionProvider supplies decisions for automated and scripted seats. A
// provider that does not respond before the phase deadline is treated
// identically to a non-responsive human: the default action applies.
type ActionProvider interface {
	RequestAction(ctx context.Context, view ProviderView) (Action, error)
	RequestMessages(ctx context.Context, view ProviderView) ([]Outgoing, error)
}

// ScriptedProvider implements a handful of classical strategies for
// scripted seats.
type ScriptedProvider struct {
	Script string
	Seed   int64
}

const (
	ScriptAlwaysCooperate = "always_cooperate"
	ScriptAlwaysDefect    = "always_defect"
	ScriptTitForTat       = "tit_for_tat"
	ScriptRandom          = "random"
)

func (p *ScriptedProvider) RequestAction(ctx context.Context, view ProviderView) (Action, error) {
	switch p.Script {
	case ScriptAlwaysCooperate, "":
		return ActionCooperate, nil

	case ScriptAlwaysDefect:
		return ActionDefect, nil

	case ScriptTitForTat:
		prev, ok := lastRecord(view.History)
		if !ok {
			return ActionCooperate, nil
		}
		// Cooperate when at least half the other seats cooperated last
		// round, defect otherwise.
		coop, others := 0, 0
		for id, a := range prev.Actions {
			if id == view.Identity {
				continue
			}
			others++
			if a == ActionCooperate {
				coop++
			}
		}
		if others == 0 || coop*2 >= others {
			return ActionCooperate, nil
		}
		return ActionDefect, nil

	case ScriptRandom:
		rng := rand.New(rand.NewSource(p.Seed + int64(view.Round)))
		if rng.Intn(2) == 0 {
			return ActionCooperate, nil
		}
		return ActionDefect, nil

	default:
		return "", fmt.Errorf("unknown script %q", p.Script)
	}
}

func (p *ScriptedProvider) RequestMessages(ctx context.Context, view ProviderView) ([]Outgoing, error) {
	// Scripted seats don't talk.
	return nil, nil
}

func lastRecord(history []RoundRecord) (RoundRecord, bool) {
	if len(history) == 0 {
		return RoundRecord{}, false
	}
	return history[len(history)-1], true
}
