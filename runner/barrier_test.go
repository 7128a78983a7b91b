package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
)

func permutations(items []string) [][]string {
	if len(items) <= 1 {
		return [][]string{append([]string{}, items...)}
	}
	var out [][]string
	for i := range items {
		rest := make([]string, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{items[i]}, p...))
		}
	}
	return out
}

func TestBarrierJoinAllFiresOnceForEveryOrdering(t *testing.T) {
	sources := []string{"a", "b", "c"}

	for _, order := range permutations(sources) {
		b := newBarrier(graph.FanInGroup{Sources: sources, Target: "join", Policy: graph.JoinAll})

		fires := 0
		var joined []core.Message
		for _, src := range order {
			fire, msgs, err := b.deliver(src, core.NewMessage(src))
			require.NoError(t, err)
			if fire {
				fires++
				joined = msgs
			}
		}

		require.Equal(t, 1, fires, "ordering %v", order)
		require.Len(t, joined, 3)
		// joined messages follow arrival order
		for i, src := range order {
			assert.Equal(t, src, joined[i].Payload)
		}
	}
}

func TestBarrierThresholdFiresOnKthDistinctSource(t *testing.T) {
	group := graph.FanInGroup{
		Sources:   []string{"a", "b", "c"},
		Target:    "join",
		Policy:    graph.JoinThreshold,
		Threshold: 2,
	}

	b := newBarrier(group)

	fire, _, err := b.deliver("a", core.NewMessage("a"))
	require.NoError(t, err)
	assert.False(t, fire)

	fire, joined, err := b.deliver("c", core.NewMessage("c"))
	require.NoError(t, err)
	assert.True(t, fire)
	require.Len(t, joined, 2)
	assert.Equal(t, "a", joined[0].Payload)
	assert.Equal(t, "c", joined[1].Payload)

	// late arrival is recorded but never re-fires
	fire, _, err = b.deliver("b", core.NewMessage("b"))
	require.NoError(t, err)
	assert.False(t, fire)
}

func TestBarrierDuplicateDelivery(t *testing.T) {
	t.Run("before firing is an error", func(t *testing.T) {
		b := newBarrier(graph.FanInGroup{Sources: []string{"a", "b"}, Target: "join", Policy: graph.JoinAll})

		_, _, err := b.deliver("a", core.NewMessage("first"))
		require.NoError(t, err)

		_, _, err = b.deliver("a", core.NewMessage("second"))
		assert.ErrorIs(t, err, ErrDuplicateDelivery)
	})

	t.Run("after firing is ignored", func(t *testing.T) {
		b := newBarrier(graph.FanInGroup{Sources: []string{"a", "b"}, Target: "join", Policy: graph.JoinThreshold, Threshold: 1})

		fire, _, err := b.deliver("a", core.NewMessage("first"))
		require.NoError(t, err)
		require.True(t, fire)

		fire, _, err = b.deliver("a", core.NewMessage("again"))
		require.NoError(t, err)
		assert.False(t, fire)
	})
}
