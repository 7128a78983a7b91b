package runner

import (
	"errors"
	"fmt"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
)

// ErrDuplicateDelivery is reported when a fan-in source delivers a second
// message before its group has fired. Sources must deliver at most once per
// join cycle; a duplicate indicates a malformed topology or handler.
var ErrDuplicateDelivery = errors.New("duplicate fan-in delivery")

// barrier tracks arrivals for one fan-in group within one run. It is owned by
// the scheduler goroutine and needs no locking.
type barrier struct {
	group   graph.FanInGroup
	arrived map[string]core.Message
	order   []string
	fired   bool
}

func newBarrier(group graph.FanInGroup) *barrier {
	return &barrier{
		group:   group,
		arrived: make(map[string]core.Message, len(group.Sources)),
	}
}

// deliver records a message from the given source. It returns whether the
// group fires on this arrival and, if so, the joined messages in arrival
// order. A duplicate delivery from one source before firing is an error;
// arrivals after firing are recorded silently and never fire again.
func (b *barrier) deliver(source string, msg core.Message) (bool, []core.Message, error) {
	if _, dup := b.arrived[source]; dup {
		if b.fired {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("%w: source %q delivered twice before fan-in to %q fired",
			ErrDuplicateDelivery, source, b.group.Target)
	}

	b.arrived[source] = msg
	b.order = append(b.order, source)

	if b.fired {
		return false, nil, nil
	}

	if len(b.arrived) < b.group.RequiredArrivals() {
		return false, nil, nil
	}

	b.fired = true

	joined := make([]core.Message, 0, len(b.order))
	for _, src := range b.order {
		joined = append(joined, b.arrived[src])
	}

	return true, joined, nil
}
