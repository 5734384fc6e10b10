package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convsearch/internal/domain"
	"convsearch/internal/session"
	"convsearch/internal/sessionlog"
)

func TestPickTargets(t *testing.T) {
	docs := []domain.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	get := func(id string) (domain.Document, bool) {
		for _, d := range docs {
			if d.ID == id {
				return d, true
			}
		}
		return domain.Document{}, false
	}

	sampled, err := pickTargets(docs, nil, 2, 7, get)
	require.NoError(t, err)
	assert.Len(t, sampled, 2)
	again, err := pickTargets(docs, nil, 2, 7, get)
	require.NoError(t, err)
	assert.Equal(t, sampled, again)

	explicit, err := pickTargets(docs, []string{"c", "a"}, 1, 7, get)
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{{ID: "c"}, {ID: "a"}}, explicit)

	_, err = pickTargets(docs, []string{"zzz"}, 0, 0, get)
	assert.Error(t, err)
}

func TestTally_CountsOnlyTargetHits(t *testing.T) {
	var sum tally
	assert.Equal(t, "no sessions", sum.String())

	hit := sessionlog.Record{Result: session.Result{Mode: session.ModeSuccess, Selection: "t1", Turns: 2}, Target: "t1"}
	// a profile reader may accept whatever is shown first
	wrong := sessionlog.Record{Result: session.Result{Mode: session.ModeSuccess, Selection: "d07", Turns: 3}, Target: "t2"}
	miss := sessionlog.Record{Result: session.Result{Mode: session.ModeExhausted, Turns: 10}, Target: "t3"}
	for _, rec := range []sessionlog.Record{hit, wrong, miss} {
		sum.add(rec)
	}
	assert.Equal(t, 1, sum.found)
	assert.Equal(t, "1/3 found, 5.00 turns on average", sum.String())
}
