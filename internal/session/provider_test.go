package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptedProvider_Basics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	coop := &ScriptedProvider{Script: ScriptAlwaysCooperate}
	a, err := coop.RequestAction(ctx, ProviderView{Round: 1})
	assert.NoError(err)
	assert.Equal(ActionCooperate, a)

	defect := &ScriptedProvider{Script: ScriptAlwaysDefect}
	a, err = defect.RequestAction(ctx, ProviderView{Round: 1})
	assert.NoError(err)
	assert.Equal(ActionDefect, a)

	_, err = (&ScriptedProvider{Script: "nope"}).RequestAction(ctx, ProviderView{})
	assert.Error(err)
}

func TestScriptedProvider_TitForTat(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	p := &ScriptedProvider{Script: ScriptTitForTat}

	// No history: cooperate.
	a, err := p.RequestAction(ctx, ProviderView{Identity: "me", Round: 1})
	assert.NoError(err)
	assert.Equal(ActionCooperate, a)

	// Majority of others defected last round: defect.
	hostile := ProviderView{Identity: "me", Round: 2, History: []RoundRecord{{
		Round:   1,
		Actions: map[string]Action{"me": ActionCooperate, "x": ActionDefect, "y": ActionDefect},
	}}}
	a, err = p.RequestAction(ctx, hostile)
	assert.NoError(err)
	assert.Equal(ActionDefect, a)

	// Half or more cooperated: cooperate.
	friendly := ProviderView{Identity: "me", Round: 2, History: []RoundRecord{{
		Round:   1,
		Actions: map[string]Action{"me": ActionDefect, "x": ActionCooperate, "y": ActionDefect},
	}}}
	a, err = p.RequestAction(ctx, friendly)
	assert.NoError(err)
	assert.Equal(ActionCooperate, a)
}

func TestScriptedProvider_RandomIsSeedDeterministic(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p1 := &ScriptedProvider{Script: ScriptRandom, Seed: 7}
	p2 := &ScriptedProvider{Script: ScriptRandom, Seed: 7}
	for round := 1; round <= 5; round++ {
		a1, err := p1.RequestAction(ctx, ProviderView{Round: round})
		assert.NoError(err)
		a2, err := p2.RequestAction(ctx, ProviderView{Round: round})
		assert.NoError(err)
		assert.Equal(a1, a2)
	}
}

func TestScriptedProvider_NoMessages(t *testing.T) {
	p := &ScriptedProvider{Script: ScriptAlwaysCooperate}
	msgs, err := p.RequestMessages(context.Background(), ProviderView{})
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}
